// Package stream publishes a firehose of ingestion events to Kafka for
// downstream consumers (analytics, archival). The firehose is strictly
// best-effort: the ingestion pipeline never fails a request because a
// broker write failed.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/vitalwatch/vitalwatch/internal/platform/realtime"
)

// Producer wraps a Kafka writer that carries realtime events.
type Producer struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewProducer creates a producer for the given brokers and topic. Messages
// are keyed by patient id so one patient's events stay in partition order.
func NewProducer(brokers []string, topic string, logger zerolog.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		logger: logger,
	}
}

// Publish implements realtime.EventPublisher. Write failures are logged and
// swallowed so the caller's request path is unaffected.
func (p *Producer) Publish(ctx context.Context, event realtime.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.PatientID),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn().
			Err(err).
			Str("topic", p.writer.Topic).
			Str("event_type", event.Type).
			Msg("firehose publish failed")
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
