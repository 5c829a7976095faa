package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/repaart/support-desk/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Support  SupportConfig
	SMTP     SMTPConfig
	Kafka    KafkaConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	FeedChannel string
	DialTimeout time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Service     string
	Development bool
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// SupportConfig tunes the support desk.
type SupportConfig struct {
	TicketWindow       int
	BatchLimit         int
	SLAWarningMinutes  int
	SLACriticalMinutes int
	SLASweepSpec       string
	DeskIdleMinutes    int
}

// SMTPConfig configures reply email delivery. Disabled means replies are
// only logged.
type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	From     string
	StartTLS bool
}

// KafkaConfig configures the domain event forwarder.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "repaart-support-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			FeedChannel: getEnv("REDIS_FEED_CHANNEL", "support:changes"),
			DialTimeout: time.Duration(getEnvAsInt("REDIS_DIAL_TIMEOUT_SECONDS", 2)) * time.Second,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Service:     getEnv("APP_NAME", "repaart-support-desk"),
			Development: getEnv("APP_ENV", "development") == "development",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Support: SupportConfig{
			TicketWindow:       getEnvAsInt("SUPPORT_TICKET_WINDOW", 50),
			BatchLimit:         getEnvAsInt("SUPPORT_BATCH_LIMIT", 500),
			SLAWarningMinutes:  getEnvAsInt("SUPPORT_SLA_WARNING_MINUTES", 120),
			SLACriticalMinutes: getEnvAsInt("SUPPORT_SLA_CRITICAL_MINUTES", 1440),
			SLASweepSpec:       getEnv("SUPPORT_SLA_SWEEP_SPEC", "@every 5m"),
			DeskIdleMinutes:    getEnvAsInt("SUPPORT_DESK_IDLE_MINUTES", 30),
		},
		SMTP: SMTPConfig{
			Enabled:  getEnvAsBool("SMTP_ENABLED", false),
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "soporte@repaart.es"),
			StartTLS: getEnvAsBool("SMTP_STARTTLS", true),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "repaart.support.events"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the support desk cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Support.TicketWindow <= 0 {
		errs = append(errs, errors.New("SUPPORT_TICKET_WINDOW must be positive"))
	}
	if c.Support.BatchLimit <= 0 {
		errs = append(errs, errors.New("SUPPORT_BATCH_LIMIT must be positive"))
	}
	if c.Support.SLAWarningMinutes <= 0 || c.Support.SLACriticalMinutes <= 0 {
		errs = append(errs, errors.New("SLA thresholds must be positive"))
	} else if c.Support.SLAWarningMinutes >= c.Support.SLACriticalMinutes {
		errs = append(errs, errors.New("SUPPORT_SLA_WARNING_MINUTES must be below SUPPORT_SLA_CRITICAL_MINUTES"))
	}
	if c.SMTP.Enabled && strings.TrimSpace(c.SMTP.Host) == "" {
		errs = append(errs, errors.New("SMTP_HOST required when SMTP_ENABLED"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SLAThresholds converts the configured minutes.
func (s SupportConfig) SLAThresholds() domain.SLAThresholds {
	return domain.SLAThresholds{
		Warning:  time.Duration(s.SLAWarningMinutes) * time.Minute,
		Critical: time.Duration(s.SLACriticalMinutes) * time.Minute,
	}
}

// DeskIdleTimeout returns how long an unobserved desk session survives.
func (s SupportConfig) DeskIdleTimeout() time.Duration {
	if s.DeskIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.DeskIdleMinutes) * time.Minute
}

// Addr returns the SMTP host:port.
func (s SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
