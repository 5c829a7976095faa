package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type scriptedReceiver struct {
	steps  []any
	cancel context.CancelFunc
}

func (r *scriptedReceiver) Receive(ctx context.Context) (interface{}, error) {
	if len(r.steps) == 0 {
		r.cancel()
		return nil, ctx.Err()
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	if err, ok := step.(error); ok {
		return nil, err
	}
	return step, nil
}

func TestRedisFeedResyncsAfterReconnect(t *testing.T) {
	f := NewRedisFeed(nil, "support:changes", zap.NewNop())
	f.retryDelay = time.Millisecond
	sub := f.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	down := errors.New("connection reset by peer")
	f.receive(ctx, &scriptedReceiver{cancel: cancel, steps: []any{
		&redis.Message{Payload: `{"kind":"tickets","ticket_id":"t1"}`},
		down,
		down,
		&redis.Subscription{Kind: "subscribe", Channel: "support:changes", Count: 1},
		&redis.Message{Payload: `{"kind":"messages","ticket_id":"t2"}`},
		&redis.Pong{},
	}})

	assert.Equal(t, []Change{
		{Kind: KindTickets, TicketID: "t1"},
		{Kind: KindResync},
		{Kind: KindMessages, TicketID: "t2"},
	}, drain(sub))
}

func TestRedisFeedResyncsWhenMessagesResumeAfterError(t *testing.T) {
	f := NewRedisFeed(nil, "support:changes", zap.NewNop())
	f.retryDelay = time.Millisecond
	sub := f.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.receive(ctx, &scriptedReceiver{cancel: cancel, steps: []any{
		errors.New("i/o timeout"),
		&redis.Message{Payload: `{"kind":"reset"}`},
		&redis.Message{Payload: `not json`},
	}})

	assert.Equal(t, []Change{
		{Kind: KindResync},
		{Kind: KindReset},
		{Kind: KindResync},
	}, drain(sub))
}
