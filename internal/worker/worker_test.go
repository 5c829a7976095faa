package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/config"
	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/events"
	"github.com/repaart/support-desk/internal/observability"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestEventForwarderKeysByTicket(t *testing.T) {
	writer := &recordingWriter{}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	forwarder := NewEventForwarder(writer, zap.NewNop())
	forwarder.RegisterHandlers(dispatcher)

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketStatusChanged,
		TicketID: "t-1",
		Payload:  events.TicketStatusChangedPayload{OldStatus: domain.TicketStatusOpen, NewStatus: domain.TicketStatusResolved},
	}))

	require.Len(t, writer.msgs, 1)
	msg := writer.msgs[0]
	assert.Equal(t, "t-1", string(msg.Key))
	assert.Equal(t, string(events.EventTicketStatusChanged), string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "evt-1", decoded["id"])

	require.NoError(t, forwarder.Close())
	assert.True(t, writer.closed)
}

func TestEventForwarderReportsWriteFailure(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	forwarder := NewEventForwarder(writer, zap.NewNop())
	err := forwarder.forward(context.Background(), events.Event{ID: "evt-1", Type: events.EventTicketDeleted})
	assert.EqualError(t, err, "broker down")
}

func TestNewKafkaWriterNeedsBrokers(t *testing.T) {
	assert.Nil(t, NewKafkaWriter(config.KafkaConfig{Topic: "support"}, zap.NewNop()))

	w := NewKafkaWriter(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "support"}, zap.NewNop())
	require.NotNil(t, w)
	assert.Equal(t, "support", w.Topic)
	assert.True(t, w.Async)
}

type ticketsStub struct {
	tickets []domain.Ticket
	err     error
}

func (s ticketsStub) ListRecent(context.Context) ([]domain.Ticket, error) {
	return s.tickets, s.err
}

func TestSLASweeperPublishesGauge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	metrics := observability.NewMetrics()
	sweeper := NewSLASweeper(ticketsStub{tickets: []domain.Ticket{
		{ID: "a", Status: domain.TicketStatusOpen, CreatedAt: now.Add(-30 * time.Minute)},
		{ID: "b", Status: domain.TicketStatusOpen, CreatedAt: now.Add(-48 * time.Hour)},
	}}, metrics, domain.DefaultSLAThresholds, zap.NewNop())
	sweeper.now = func() time.Time { return now }

	sweeper.Run(context.Background())

	expected := `
# HELP support_tickets_sla Recent tickets by SLA severity.
# TYPE support_tickets_sla gauge
support_tickets_sla{severity="critical"} 1
support_tickets_sla{severity="ok"} 1
support_tickets_sla{severity="warning"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "support_tickets_sla"))
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	assert.Error(t, s.Add("broken", "not a spec", func(context.Context) {}))
	require.NoError(t, s.Add("sweep", "@every 1m", func(context.Context) {}))
	assert.Equal(t, 1, s.Len())
	s.Start()
	s.Stop()
}
