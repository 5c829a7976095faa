package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/feed"
)

type stubLoader struct {
	mu       sync.Mutex
	tickets  []domain.Ticket
	messages map[string][]domain.TicketMessage
	err      error
	calls    int
}

func (l *stubLoader) ListRecent(context.Context) ([]domain.Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return append([]domain.Ticket(nil), l.tickets...), nil
}

func (l *stubLoader) ListMessages(_ context.Context, id string) ([]domain.TicketMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return append([]domain.TicketMessage(nil), l.messages[id]...), nil
}

func (l *stubLoader) set(fn func(l *stubLoader)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l)
}

func next[T any](t *testing.T, ch <-chan Snapshot[T]) Snapshot[T] {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "updates closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return Snapshot[T]{}
	}
}

func TestTicketWatcherReloadsOnChange(t *testing.T) {
	loader := &stubLoader{tickets: []domain.Ticket{{ID: "a"}}}
	f := feed.NewMemoryFeed(8)
	w := WatchTickets(context.Background(), loader, f, zap.NewNop())
	defer w.Close()

	first := next(t, w.Updates())
	assert.Len(t, first.Items, 1)
	assert.False(t, first.Loading)

	loader.set(func(l *stubLoader) { l.tickets = append(l.tickets, domain.Ticket{ID: "b"}) })
	require.NoError(t, f.Publish(context.Background(), feed.Change{Kind: feed.KindTickets, TicketID: "b"}))

	second := next(t, w.Updates())
	assert.Len(t, second.Items, 2)
}

func TestTicketWatcherReportsLoadError(t *testing.T) {
	loader := &stubLoader{err: errors.New("permission denied")}
	w := WatchTickets(context.Background(), loader, feed.NewMemoryFeed(8), zap.NewNop())
	defer w.Close()

	snap := next(t, w.Updates())
	assert.Empty(t, snap.Items)
	assert.False(t, snap.Loading)
	assert.EqualError(t, snap.Err, "permission denied")
}

func TestMessageWatcherIgnoresOtherTickets(t *testing.T) {
	loader := &stubLoader{messages: map[string][]domain.TicketMessage{"t1": {{ID: "m1"}}}}
	f := feed.NewMemoryFeed(8)
	w := WatchMessages(context.Background(), loader, f, "t1", zap.NewNop())
	defer w.Close()

	assert.Len(t, next(t, w.Updates()).Items, 1)

	ctx := context.Background()
	require.NoError(t, f.Publish(ctx, feed.Change{Kind: feed.KindMessages, TicketID: "t2"}))
	require.NoError(t, f.Publish(ctx, feed.Change{Kind: feed.KindTickets, TicketID: "t1"}))
	loader.set(func(l *stubLoader) { l.messages["t1"] = append(l.messages["t1"], domain.TicketMessage{ID: "m2"}) })
	require.NoError(t, f.Publish(ctx, feed.Change{Kind: feed.KindMessages, TicketID: "t1"}))

	assert.Len(t, next(t, w.Updates()).Items, 2)
}

func TestWatcherCloseStopsUpdatesAndUnsubscribes(t *testing.T) {
	f := feed.NewMemoryFeed(8)
	w := WatchTickets(context.Background(), &stubLoader{}, f, zap.NewNop())
	next(t, w.Updates())

	w.Close()
	w.Close()
	_, ok := <-w.Updates()
	assert.False(t, ok)
	assert.Zero(t, f.Subscribers())
}

func TestOfferLatestKeepsNewest(t *testing.T) {
	ch := make(chan int, 1)
	OfferLatest(ch, 1)
	OfferLatest(ch, 2)
	OfferLatest(ch, 3)
	assert.Equal(t, 3, <-ch)
}
