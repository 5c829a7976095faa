package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/config"
	"github.com/repaart/support-desk/internal/events"
)

// MessageWriter is the part of kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns an async writer for the configured topic, or nil
// when no brokers are configured.
func NewKafkaWriter(cfg config.KafkaConfig, logger *zap.Logger) *kafka.Writer {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
}

// EventForwarder copies every domain event to Kafka, keyed by ticket id so
// the events of one ticket stay ordered.
type EventForwarder struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewEventForwarder constructs a forwarder.
func NewEventForwarder(writer MessageWriter, logger *zap.Logger) *EventForwarder {
	return &EventForwarder{writer: writer, logger: logger}
}

// RegisterHandlers subscribes the forwarder to every event type.
func (f *EventForwarder) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.SubscribeAll(f.forward)
}

func (f *EventForwarder) forward(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(event.TicketID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Warn("event forward failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		return err
	}
	return nil
}

// Close flushes pending messages.
func (f *EventForwarder) Close() error {
	return f.writer.Close()
}
