package live

import (
	"context"

	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/feed"
)

// Snapshot is one delivery of a live query. A failed load yields no items,
// Loading false and the error.
type Snapshot[T any] struct {
	Items   []T
	Loading bool
	Err     error
}

// TicketLoader loads the recent tickets window.
type TicketLoader interface {
	ListRecent(ctx context.Context) ([]domain.Ticket, error)
}

// MessageLoader loads the thread of one ticket.
type MessageLoader interface {
	ListMessages(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
}

// Watcher keeps a query result current by reloading it whenever the feed
// reports a relevant change. Deliveries are latest-wins: a slow consumer
// only ever sees the newest snapshot.
type Watcher[T any] struct {
	name    string
	load    func(ctx context.Context) ([]T, error)
	affects func(feed.Change) bool
	sub     feed.Subscription
	out     chan Snapshot[T]
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *zap.Logger
}

// WatchTickets starts a watcher over the recent tickets.
func WatchTickets(ctx context.Context, loader TicketLoader, f feed.Feed, logger *zap.Logger) *Watcher[domain.Ticket] {
	return start(ctx, "tickets", f, logger, loader.ListRecent, feed.Change.AffectsTickets)
}

// WatchMessages starts a watcher over the messages of ticketID.
func WatchMessages(ctx context.Context, loader MessageLoader, f feed.Feed, ticketID string, logger *zap.Logger) *Watcher[domain.TicketMessage] {
	load := func(ctx context.Context) ([]domain.TicketMessage, error) {
		return loader.ListMessages(ctx, ticketID)
	}
	affects := func(c feed.Change) bool { return c.AffectsMessages(ticketID) }
	if logger == nil {
		logger = zap.NewNop()
	}
	return start(ctx, "messages", f, logger.With(zap.String("ticket_id", ticketID)), load, affects)
}

func start[T any](ctx context.Context, name string, f feed.Feed, logger *zap.Logger, load func(context.Context) ([]T, error), affects func(feed.Change) bool) *Watcher[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher[T]{
		name:    name,
		load:    load,
		affects: affects,
		// Subscribe before the first load so no change slips in between.
		sub:    f.Subscribe(),
		out:    make(chan Snapshot[T], 1),
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.run(ctx)
	return w
}

// Updates delivers snapshots until the watcher is closed.
func (w *Watcher[T]) Updates() <-chan Snapshot[T] {
	return w.out
}

// Close stops the watcher and waits for it to exit. It is safe to call more
// than once.
func (w *Watcher[T]) Close() {
	w.cancel()
	<-w.done
}

func (w *Watcher[T]) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.out)
	defer w.sub.Close()

	w.reload(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-w.sub.C():
			if !ok {
				return
			}
			if w.pending(change) {
				w.reload(ctx)
			}
		}
	}
}

// pending folds every queued change into one reload decision.
func (w *Watcher[T]) pending(first feed.Change) bool {
	reload := w.affects(first)
	for {
		select {
		case c, ok := <-w.sub.C():
			if !ok {
				return reload
			}
			reload = reload || w.affects(c)
		default:
			return reload
		}
	}
}

func (w *Watcher[T]) reload(ctx context.Context) {
	items, err := w.load(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		w.logger.Error("live query failed", zap.String("query", w.name), zap.Error(err))
		OfferLatest(w.out, Snapshot[T]{Err: err})
		return
	}
	OfferLatest(w.out, Snapshot[T]{Items: items})
}

// OfferLatest replaces any undelivered value with v. The caller must be the
// only sender on ch.
func OfferLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
