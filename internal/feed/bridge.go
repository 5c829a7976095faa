package feed

import (
	"context"

	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/events"
)

// Bridge turns committed domain events into feed changes.
type Bridge struct {
	feed   Feed
	logger *zap.Logger
}

func NewBridge(f Feed, logger *zap.Logger) *Bridge {
	return &Bridge{feed: f, logger: logger}
}

// RegisterHandlers subscribes the bridge to every event type.
func (b *Bridge) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.SubscribeAll(b.handle)
}

func (b *Bridge) handle(ctx context.Context, event events.Event) error {
	for _, change := range ChangesFor(event) {
		if err := b.feed.Publish(ctx, change); err != nil {
			b.logger.Warn("publish change failed",
				zap.String("kind", string(change.Kind)),
				zap.String("ticket_id", change.TicketID),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

// ChangesFor maps an event to the changes watchers need to see.
func ChangesFor(event events.Event) []Change {
	switch event.Type {
	case events.EventTicketStatusChanged, events.EventTicketReadChanged:
		return []Change{{Kind: KindTickets, TicketID: event.TicketID}}
	case events.EventTicketReplied, events.EventTicketNoteAdded:
		return []Change{
			{Kind: KindMessages, TicketID: event.TicketID},
			{Kind: KindTickets, TicketID: event.TicketID},
		}
	case events.EventTicketDeleted:
		return []Change{{Kind: KindTicketDeleted, TicketID: event.TicketID}}
	case events.EventSupportCenterReset:
		return []Change{{Kind: KindReset}}
	default:
		return nil
	}
}
