package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisFeed shares changes between API instances over a Redis Pub/Sub
// channel. Published changes come back through the channel, including to
// the publishing instance, and are fanned out by a local MemoryFeed.
type RedisFeed struct {
	client  *redis.Client
	channel string
	local   *MemoryFeed
	logger  *zap.Logger

	retryDelay time.Duration
}

// NewRedisFeed builds a feed on client. Call Start before publishing.
func NewRedisFeed(client *redis.Client, channel string, logger *zap.Logger) *RedisFeed {
	return &RedisFeed{
		client:  client,
		channel: channel,
		local:   NewMemoryFeed(DefaultBuffer),
		logger:  logger,

		retryDelay: 500 * time.Millisecond,
	}
}

func (f *RedisFeed) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

func (f *RedisFeed) Subscribe() Subscription {
	return f.local.Subscribe()
}

// Start subscribes to the channel and relays messages until ctx is done.
func (f *RedisFeed) Start(ctx context.Context) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	go func() {
		defer pubsub.Close()
		f.receive(ctx, pubsub)
	}()

	f.logger.Info("change feed subscribed", zap.String("channel", f.channel))
	return nil
}

// receiver is the part of *redis.PubSub the relay loop reads from.
type receiver interface {
	Receive(ctx context.Context) (interface{}, error)
}

// receive relays messages until ctx is done. go-redis reconnects and
// resubscribes on its own, but whatever was published while the
// connection was down is gone, so local subscribers get a resync once the
// subscription is back.
func (f *RedisFeed) receive(ctx context.Context, r receiver) {
	lost := false
	for {
		msg, err := r.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !lost {
				f.logger.Warn("change feed connection lost", zap.String("channel", f.channel), zap.Error(err))
			}
			lost = true
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.retryDelay):
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				lost = false
				f.logger.Info("change feed resubscribed", zap.String("channel", f.channel))
				_ = f.local.Publish(ctx, Change{Kind: KindResync})
			}
		case *redis.Message:
			if lost {
				lost = false
				_ = f.local.Publish(ctx, Change{Kind: KindResync})
			}
			f.relay(ctx, m.Payload)
		}
	}
}
func (f *RedisFeed) relay(ctx context.Context, payload string) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		f.logger.Warn("dropping malformed change", zap.String("payload", payload), zap.Error(err))
		_ = f.local.Publish(ctx, Change{Kind: KindResync})
		return
	}
	_ = f.local.Publish(ctx, change)
}
