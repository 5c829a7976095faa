package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/events"
)

func drain(sub Subscription) []Change {
	var out []Change
	for {
		select {
		case c := <-sub.C():
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestMemoryFeedFansOut(t *testing.T) {
	f := NewMemoryFeed(4)
	a, b := f.Subscribe(), f.Subscribe()
	defer a.Close()

	require.NoError(t, f.Publish(context.Background(), Change{Kind: KindTickets, TicketID: "t1"}))
	assert.Equal(t, []Change{{Kind: KindTickets, TicketID: "t1"}}, drain(a))
	assert.Equal(t, []Change{{Kind: KindTickets, TicketID: "t1"}}, drain(b))

	b.Close()
	b.Close()
	assert.Equal(t, 1, f.Subscribers())
	_, open := <-b.C()
	assert.False(t, open)
}

func TestMemoryFeedOverflowSendsResync(t *testing.T) {
	f := NewMemoryFeed(2)
	sub := f.Subscribe()
	defer sub.Close()

	ctx := context.Background()
	require.NoError(t, f.Publish(ctx, Change{Kind: KindTickets, TicketID: "1"}))
	require.NoError(t, f.Publish(ctx, Change{Kind: KindTickets, TicketID: "2"}))
	require.NoError(t, f.Publish(ctx, Change{Kind: KindTickets, TicketID: "3"}))

	got := drain(sub)
	assert.Equal(t, []Change{{Kind: KindTickets, TicketID: "2"}, {Kind: KindResync}}, got)
}

func TestChangeScopes(t *testing.T) {
	assert.True(t, Change{Kind: KindTicketDeleted, TicketID: "x"}.AffectsTickets())
	assert.False(t, Change{Kind: KindMessages, TicketID: "x"}.AffectsTickets())

	assert.True(t, Change{Kind: KindMessages, TicketID: "x"}.AffectsMessages("x"))
	assert.False(t, Change{Kind: KindMessages, TicketID: "y"}.AffectsMessages("x"))
	assert.True(t, Change{Kind: KindReset}.AffectsMessages("x"))
	assert.False(t, Change{Kind: KindTickets, TicketID: "x"}.AffectsMessages("x"))
}

func TestBridgeTranslatesEvents(t *testing.T) {
	f := NewMemoryFeed(8)
	sub := f.Subscribe()
	defer sub.Close()

	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	NewBridge(f, zap.NewNop()).RegisterHandlers(dispatcher)

	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTicketReplied, TicketID: "t1"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTicketDeleted, TicketID: "t2"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventSupportCenterReset}))

	assert.Equal(t, []Change{
		{Kind: KindMessages, TicketID: "t1"},
		{Kind: KindTickets, TicketID: "t1"},
		{Kind: KindTicketDeleted, TicketID: "t2"},
		{Kind: KindReset},
	}, drain(sub))
}
