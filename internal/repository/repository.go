// Package repository provides data access interfaces and PostgreSQL
// implementations for the loan service.
//
// Repositories accept a DBTX so the same code runs against the pool or inside
// a transaction. State-machine operations create transactional repository
// instances via database.DB.WithTransaction, which is what guarantees that a
// loan mutation and the outbox entries it produces commit atomically.
//
// All methods return domain-specific errors from the domain package; database
// errors are wrapped with context using fmt.Errorf with the %w verb.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/finlend/loan-service/internal/database"
	"github.com/finlend/loan-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// LoanRepository manages loan persistence.
type LoanRepository interface {
	// Create inserts a new loan record.
	Create(ctx context.Context, loan *domain.Loan) error
	// GetByID fetches a loan, returning domain.ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	// GetByIDForUpdate fetches a loan and locks its row for the duration of
	// the enclosing transaction, serializing concurrent operations against
	// the same loan.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	// Update persists the mutable fields of a loan.
	Update(ctx context.Context, loan *domain.Loan) error
	// CountByStatus returns the number of loans per status, for gauge reporting.
	CountByStatus(ctx context.Context) (map[domain.LoanStatus]int64, error)
}

// OutboxRepository manages outbox entry persistence.
type OutboxRepository interface {
	// Insert appends an unsent entry. Callable only from inside an open
	// transaction owned by the caller; durability comes from that
	// transaction, not from this call.
	Insert(ctx context.Context, event *domain.OutboxEvent) error
	// SelectUnsent returns up to limit unsent entries ordered by creation
	// time ascending.
	SelectUnsent(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	// MarkSent flips an entry to sent. Marking an already-sent entry has no
	// further effect.
	MarkSent(ctx context.Context, id uuid.UUID) error
}
