package feed

import (
	"context"
	"sync"
)

// Kind classifies a change notification.
type Kind string

const (
	KindTickets       Kind = "tickets"
	KindMessages      Kind = "messages"
	KindTicketDeleted Kind = "ticket_deleted"
	KindReset         Kind = "reset"
	// KindResync tells a subscriber it missed changes and must reload.
	KindResync Kind = "resync"
)

// Change announces that stored data moved. It carries no payload: watchers
// reload from the store.
type Change struct {
	Kind     Kind   `json:"kind"`
	TicketID string `json:"ticket_id,omitempty"`
}

// AffectsTickets reports whether the recent-tickets view must reload.
func (c Change) AffectsTickets() bool {
	return c.Kind != KindMessages
}

// AffectsMessages reports whether the message list of ticketID must reload.
func (c Change) AffectsMessages(ticketID string) bool {
	switch c.Kind {
	case KindReset, KindResync:
		return true
	case KindMessages, KindTicketDeleted:
		return c.TicketID == ticketID
	default:
		return false
	}
}

// Feed distributes changes to subscribers.
type Feed interface {
	Publish(ctx context.Context, change Change) error
	Subscribe() Subscription
}

// Subscription is one consumer's view of a Feed.
type Subscription interface {
	C() <-chan Change
	Close()
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// MemoryFeed fans changes out to in-process subscribers. Publish never
// blocks: a subscriber whose queue is full loses its oldest change and
// receives a resync instead of the new one.
type MemoryFeed struct {
	mu     sync.Mutex
	subs   map[*memorySubscription]struct{}
	buffer int
}

// NewMemoryFeed creates a feed; a non-positive buffer uses DefaultBuffer.
func NewMemoryFeed(buffer int) *MemoryFeed {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &MemoryFeed{subs: make(map[*memorySubscription]struct{}), buffer: buffer}
}

func (f *MemoryFeed) Publish(ctx context.Context, change Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		sub.offer(change)
	}
	return nil
}

func (f *MemoryFeed) Subscribe() Subscription {
	sub := &memorySubscription{feed: f, ch: make(chan Change, f.buffer)}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

// Subscribers returns the number of open subscriptions.
func (f *MemoryFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type memorySubscription struct {
	feed   *MemoryFeed
	ch     chan Change
	closed bool
}

// offer runs with the feed lock held, so it is the only sender.
func (s *memorySubscription) offer(change Change) {
	select {
	case s.ch <- change:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- Change{Kind: KindResync}:
	default:
	}
}

func (s *memorySubscription) C() <-chan Change {
	return s.ch
}

func (s *memorySubscription) Close() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.feed.subs, s)
	close(s.ch)
}
