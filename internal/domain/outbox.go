package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one durable entry awaiting delivery to Kafka. Entries are
// written in the same transaction as the loan mutation that caused them and
// flipped to sent exactly once by the poller.
type OutboxEvent struct {
	ID        uuid.UUID
	Topic     string
	Key       string
	EventType string
	Payload   string
	CreatedAt time.Time
	Sent      bool
}

// NewOutboxEvent creates an unsent entry keyed by the loan id.
func NewOutboxEvent(topic, key, eventType, payload string, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:        uuid.New(),
		Topic:     topic,
		Key:       key,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: now,
		Sent:      false,
	}
}
