package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUPPORT_TICKET_WINDOW", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Support.TicketWindow)
	assert.Equal(t, 500, cfg.Support.BatchLimit)
	assert.Equal(t, 2*time.Hour, cfg.Support.SLAThresholds().Warning)
	assert.Equal(t, 24*time.Hour, cfg.Support.SLAThresholds().Critical)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SUPPORT_TICKET_WINDOW", "20")
	t.Setenv("SUPPORT_BATCH_LIMIT", "10")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("APP_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Support.TicketWindow)
	assert.Equal(t, 10, cfg.Support.BatchLimit)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "0.0.0.0:9000", cfg.App.Addr())
}

func TestValidateRejectsInvertedSLA(t *testing.T) {
	t.Setenv("SUPPORT_SLA_WARNING_MINUTES", "300")
	t.Setenv("SUPPORT_SLA_CRITICAL_MINUTES", "60")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPPORT_SLA_WARNING_MINUTES")
}

func TestValidateRejectsZeroBatchLimit(t *testing.T) {
	cfg := &Config{Support: SupportConfig{TicketWindow: 50, BatchLimit: 0, SLAWarningMinutes: 1, SLACriticalMinutes: 2}}
	assert.Error(t, cfg.Validate())
}

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), AppConfig{}.RequestTimeout())
	assert.Equal(t, 5*time.Second, AppConfig{RequestTimeoutSeconds: 5}.RequestTimeout())
}
