package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/config"
)

// Redis is the client behind the shared change feed. An unreachable server
// is not fatal: the API then runs on an in-process feed.
type Redis struct {
	Client      *redis.Client
	FeedChannel string
	reachable   bool
}

// NewRedis builds the client and probes the server once within the dial
// timeout.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		ClientName:  "support-desk",
		DialTimeout: dialTimeout,
	})
	r := &Redis{Client: client, FeedChannel: cfg.FeedChannel}

	probeCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(probeCtx).Err(); err != nil {
		logger.Warn("redis unreachable, change feed stays local", zap.String("addr", cfg.Addr), zap.Error(err))
		return r
	}
	r.reachable = true
	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.String("feed_channel", cfg.FeedChannel))
	return r
}

// Reachable reports whether the startup probe succeeded.
func (r *Redis) Reachable() bool {
	return r != nil && r.reachable
}

func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity for readiness checks.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
