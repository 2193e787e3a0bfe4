// Package notifier consumes loan events from Kafka and emits customer-facing
// notifications. The current sink is the structured log; the listener is the
// place a mail or push gateway would hang off.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/finlend/loan-service/internal/domain"
)

// eventTypeHeader is the Kafka message header carrying the event type tag.
const eventTypeHeader = "event_type"

// loanEventEnvelope is the subset of every loan event payload the notifier
// needs. Individual event types carry more fields; the envelope ignores them.
type loanEventEnvelope struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id,omitempty"`
}

// Listener consumes loan events from Kafka and logs a notification per event.
type Listener struct {
	reader *kafka.Reader
	logger zerolog.Logger
}

// Config holds configuration for the loan event listener.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic loan events are published to.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// NewListener creates a new loan event listener.
func NewListener(cfg Config, logger zerolog.Logger) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})

	return &Listener{
		reader: reader,
		logger: logger.With().Str("component", "loan_notifier").Logger(),
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting loan notifier")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("loan notifier stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received loan event")

		if err := l.handleMessage(msg); err != nil {
			l.logger.Error().Err(err).
				Str("key", string(msg.Key)).
				Str("raw_value", string(msg.Value)).
				Msg("failed to handle loan event")
		}
	}
}

// handleMessage decodes a loan event message and logs the notification.
func (l *Listener) handleMessage(msg kafka.Message) error {
	eventType := eventTypeOf(msg)
	if eventType == "" {
		return fmt.Errorf("message %s carries no event type", string(msg.Key))
	}

	var envelope loanEventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("unmarshal %s event: %w", eventType, err)
	}

	l.logger.Info().
		Str("event_type", eventType).
		Str("loan_id", envelope.ID).
		Str("customer_id", envelope.CustomerID).
		Str("notification", notificationFor(eventType)).
		Msg("loan event notification")

	return nil
}

// eventTypeOf returns the event type tag from the message headers.
func eventTypeOf(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == eventTypeHeader {
			return string(h.Value)
		}
	}
	return ""
}

// notificationFor maps an event type to the customer-facing notification text.
func notificationFor(eventType string) string {
	switch eventType {
	case domain.EventTypeLoanSimulated:
		return "your loan simulation has been created"
	case domain.EventTypeLoanPendingApproval:
		return "your loan is awaiting manual review"
	case domain.EventTypeLoanApproved:
		return "your loan has been approved"
	case domain.EventTypeLoanRejected:
		return "your loan application was rejected"
	case domain.EventTypeLoanContracted:
		return "your loan contract has been signed"
	case domain.EventTypeLoanDisbursed:
		return "your loan has been disbursed"
	case domain.EventTypeLoanPaymentMade:
		return "your payment has been received"
	default:
		return "your loan has been updated"
	}
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing loan notifier")
	return l.reader.Close()
}
