package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repaart/support-desk/internal/domain"
)

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var seen []string

	d.Subscribe(EventTicketReplied, func(context.Context, Event) error {
		seen = append(seen, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketReplied, func(context.Context, Event) error {
		seen = append(seen, "second")
		return nil
	})
	d.SubscribeAll(func(_ context.Context, e Event) error {
		seen = append(seen, "all:"+string(e.Type))
		return nil
	})
	d.Subscribe(EventTicketDeleted, func(context.Context, Event) error {
		seen = append(seen, "unrelated")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketReplied, TicketID: "t1"}))
	assert.Equal(t, []string{"first", "second", "all:ticket_replied"}, seen)
}

func TestActorFrom(t *testing.T) {
	assert.Equal(t, Actor{UID: domain.SystemActor}, ActorFrom(nil))
	assert.Equal(t, Actor{UID: "u1", Email: "a@repaart.es"}, ActorFrom(&domain.Admin{UID: "u1", Email: "a@repaart.es"}))
}
