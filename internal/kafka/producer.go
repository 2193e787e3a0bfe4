// Package kafka wraps the segmentio writer and reader behind small
// service-facing types.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/finlend/loan-service/internal/domain"
)

// Producer publishes outbox entries to Kafka. The destination topic is carried
// on each entry, so a single producer serves both the main and the dead-letter
// topic.
type Producer struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewProducer creates a Kafka producer for the given brokers.
func NewProducer(brokers []string, logger zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		logger: logger.With().Str("component", "kafka_producer").Logger(),
	}
}

// Publish writes a single outbox entry to its topic. The loan ID is the
// message key, so all events of one loan land on the same partition and keep
// their relative order.
func (p *Producer) Publish(ctx context.Context, event domain.OutboxEvent) error {
	msg := kafka.Message{
		Topic: event.Topic,
		Key:   []byte(event.Key),
		Value: []byte(event.Payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to %s: %w", event.Topic, err)
	}

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	p.logger.Info().Msg("closing kafka producer")
	return p.writer.Close()
}
