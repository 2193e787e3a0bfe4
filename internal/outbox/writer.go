package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finlend/loan-service/internal/domain"
	"github.com/finlend/loan-service/internal/repository"
)

// Writer builds outbox entries from domain events and stores them through a
// transaction-scoped repository. The caller passes the repository per call
// because each entry must be written by the same transaction that mutates the
// loan.
type Writer struct {
	topic string
}

// NewWriter creates a Writer that targets the given topic.
func NewWriter(topic string) *Writer {
	return &Writer{topic: topic}
}

// Write serializes the event and inserts it as an unsent outbox entry keyed by
// the loan ID.
func (w *Writer) Write(ctx context.Context, repo repository.OutboxRepository, loanID uuid.UUID, event domain.Event, now time.Time) error {
	if event == nil {
		return domain.NewValidationError("event", "event cannot be nil")
	}

	eventType, payload, err := domain.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("encode %T: %w", event, err)
	}

	entry := domain.NewOutboxEvent(w.topic, loanID.String(), eventType, payload, now)
	if err := repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("store outbox entry: %w", err)
	}

	return nil
}
