// Package service implements the loan lifecycle state machine. Every mutating
// operation runs inside a single database transaction that locks the loan row,
// applies the guarded transition, and records the resulting events in the
// outbox, so a committed state change can never lose its event.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/finlend/loan-service/internal/domain"
	"github.com/finlend/loan-service/internal/observability"
	"github.com/finlend/loan-service/internal/outbox"
	"github.com/finlend/loan-service/internal/repository"
)

// Operation names used in invalid-state errors and logs.
const (
	opApprove  = "approve"
	opReject   = "reject"
	opContract = "contract"
	opDisburse = "disburse"
	opPay      = "pay"
)

// DefaultRejectionReason is recorded when a reviewer rejects without giving a
// reason.
const DefaultRejectionReason = "unspecified"

// TxRunner executes a function within a database transaction. *database.DB
// satisfies it.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// LoanService drives loans through their lifecycle.
type LoanService struct {
	db        TxRunner
	loans     repository.LoanRepository
	writer    *outbox.Writer
	threshold domain.Decimal
	metrics   *observability.Metrics
	logger    zerolog.Logger

	// now is swapped in tests for deterministic timestamps.
	now func() time.Time
}

// NewLoanService creates the loan service. The pool handle serves lock-free
// reads; every mutation opens its own transaction through db.
func NewLoanService(
	db TxRunner,
	pool repository.DBTX,
	writer *outbox.Writer,
	approvalThreshold domain.Decimal,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *LoanService {
	return &LoanService{
		db:        db,
		loans:     repository.NewPgLoanRepository(pool),
		writer:    writer,
		threshold: approvalThreshold,
		metrics:   metrics,
		logger:    logger.With().Str("component", "loan_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SimulateInput carries the parameters of a loan simulation. The caller
// resolves the manual-approval flag and threads it in explicitly, so the
// routing decision is reproducible from the input alone.
type SimulateInput struct {
	Amount                domain.Decimal
	TermMonths            int
	InterestRate          domain.Decimal
	CustomerID            string
	ManualApprovalEnabled bool
}

func (in SimulateInput) validate() error {
	if !in.Amount.IsPositive() {
		return domain.NewValidationError("amount", "amount must be positive")
	}
	if in.TermMonths <= 0 {
		return domain.NewValidationError("term_months", "term must be positive")
	}
	if !in.InterestRate.IsPositive() {
		return domain.NewValidationError("interest_rate", "interest rate must be positive")
	}
	if in.CustomerID == "" {
		return domain.NewValidationError("customer_id", "customer ID is required")
	}
	return nil
}

// Simulate creates a loan and immediately decides its routing: amounts above
// the approval threshold go to manual review when the manual-approval flag is
// on, everything else is auto-approved by the system actor. Both steps commit
// atomically together with their events, so no loan is ever observable in the
// transient SIMULATED state.
func (s *LoanService) Simulate(ctx context.Context, in SimulateInput) (*domain.Loan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	loan := domain.NewLoan(in.Amount, in.TermMonths, in.InterestRate, in.CustomerID, now)

	target := domain.LoanStatusApproved
	if in.ManualApprovalEnabled && in.Amount.GreaterThan(s.threshold.Decimal) {
		target = domain.LoanStatusPendingApproval
	}

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		loans := repository.NewPgLoanRepository(tx)
		box := repository.NewPgOutboxRepository(tx)

		if err := loans.Create(ctx, loan); err != nil {
			return err
		}

		simulated := domain.LoanSimulatedEvent{
			ID:           loan.ID,
			Amount:       loan.Amount,
			TermMonths:   loan.TermMonths,
			InterestRate: loan.InterestRate,
			CustomerID:   loan.CustomerID,
			SimulatedAt:  now,
			Status:       domain.LoanStatusSimulated,
		}
		if err := s.writer.Write(ctx, box, loan.ID, simulated, now); err != nil {
			return err
		}

		loan.Status = target

		var decision domain.Event
		if target == domain.LoanStatusApproved {
			loan.ApprovedAt = &now
			decision = domain.LoanApprovedEvent{
				ID:         loan.ID,
				ApprovedBy: domain.SystemActor,
				ApprovedAt: now,
			}
		} else {
			decision = domain.LoanPendingApprovalEvent{
				ID:         loan.ID,
				Amount:     loan.Amount,
				CustomerID: loan.CustomerID,
				At:         now,
			}
		}

		if err := loans.Update(ctx, loan); err != nil {
			return err
		}
		return s.writer.Write(ctx, box, loan.ID, decision, now)
	})
	if err != nil {
		return nil, err
	}

	s.observeTransition(loan.Status)
	logger := observability.WithLoanContext(s.logger, loan.ID.String(), loan.CustomerID)
	logger.Info().
		Str("status", string(loan.Status)).
		Str("amount", loan.Amount.Canonical()).
		Msg("loan simulated")

	return loan, nil
}

// GetLoan fetches a loan without locking.
func (s *LoanService) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return s.loans.GetByID(ctx, id)
}

// Approve moves a pending loan to APPROVED, recording the acting reviewer.
func (s *LoanService) Approve(ctx context.Context, id uuid.UUID, actor string) (*domain.Loan, error) {
	return s.transition(ctx, id, opApprove, func(loan *domain.Loan, now time.Time) (domain.Event, error) {
		if loan.Status != domain.LoanStatusPendingApproval {
			return nil, domain.NewInvalidStateError(loan.ID.String(), loan.Status, opApprove)
		}
		loan.Status = domain.LoanStatusApproved
		loan.ApprovedAt = &now
		return domain.LoanApprovedEvent{
			ID:         loan.ID,
			ApprovedBy: actor,
			ApprovedAt: now,
		}, nil
	})
}

// Reject moves a pending loan to REJECTED. An empty reason is recorded as
// DefaultRejectionReason.
func (s *LoanService) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.Loan, error) {
	if reason == "" {
		reason = DefaultRejectionReason
	}
	return s.transition(ctx, id, opReject, func(loan *domain.Loan, now time.Time) (domain.Event, error) {
		if loan.Status != domain.LoanStatusPendingApproval {
			return nil, domain.NewInvalidStateError(loan.ID.String(), loan.Status, opReject)
		}
		loan.Status = domain.LoanStatusRejected
		return domain.LoanRejectedEvent{
			ID:         loan.ID,
			RejectedBy: actor,
			Reason:     reason,
			RejectedAt: now,
		}, nil
	})
}

// Contract moves an approved loan to CONTRACTED.
func (s *LoanService) Contract(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return s.transition(ctx, id, opContract, func(loan *domain.Loan, now time.Time) (domain.Event, error) {
		if !loan.Status.CanTransitionTo(domain.LoanStatusContracted) {
			return nil, domain.NewInvalidStateError(loan.ID.String(), loan.Status, opContract)
		}
		loan.Status = domain.LoanStatusContracted
		loan.ContractedAt = &now
		return domain.LoanContractedEvent{
			ID:           loan.ID,
			ContractedAt: now,
		}, nil
	})
}

// Disburse moves a contracted loan to DISBURSED, opening it for repayment.
func (s *LoanService) Disburse(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return s.transition(ctx, id, opDisburse, func(loan *domain.Loan, now time.Time) (domain.Event, error) {
		if loan.Status != domain.LoanStatusContracted {
			return nil, domain.NewInvalidStateError(loan.ID.String(), loan.Status, opDisburse)
		}
		loan.Status = domain.LoanStatusDisbursed
		loan.DisbursedAt = &now
		return domain.LoanDisbursedEvent{
			ID:          loan.ID,
			DisbursedAt: now,
		}, nil
	})
}

// Pay applies a payment to a disbursed loan. The balance decreases by exactly
// the paid amount; a payment that brings it to zero settles the loan as PAID.
// Overpayment is refused rather than clamped.
func (s *LoanService) Pay(ctx context.Context, id uuid.UUID, amount domain.Decimal) (*domain.Loan, error) {
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "payment amount must be positive")
	}

	return s.transition(ctx, id, opPay, func(loan *domain.Loan, now time.Time) (domain.Event, error) {
		if loan.Status != domain.LoanStatusDisbursed {
			return nil, domain.NewInvalidStateError(loan.ID.String(), loan.Status, opPay)
		}
		if amount.GreaterThan(loan.RemainingBalance.Decimal) {
			return nil, domain.NewValidationError("amount", "payment exceeds remaining balance")
		}

		loan.RemainingBalance = domain.Dec(loan.RemainingBalance.Sub(amount.Decimal))
		loan.LastPaymentAt = &now
		if loan.RemainingBalance.IsZero() {
			loan.Status = domain.LoanStatusPaid
		}

		return domain.LoanPaymentMadeEvent{
			ID:               loan.ID,
			Amount:           amount,
			RemainingBalance: loan.RemainingBalance,
			PaidAt:           now,
		}, nil
	})
}

// transition runs one guarded state change: lock the row, let apply mutate the
// loan and produce its event, then persist both inside the same transaction.
// apply returning an error rolls everything back and leaves the loan untouched.
func (s *LoanService) transition(
	ctx context.Context,
	id uuid.UUID,
	operation string,
	apply func(loan *domain.Loan, now time.Time) (domain.Event, error),
) (*domain.Loan, error) {
	now := s.now()
	var result *domain.Loan

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		loans := repository.NewPgLoanRepository(tx)
		box := repository.NewPgOutboxRepository(tx)

		loan, err := loans.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		event, err := apply(loan, now)
		if err != nil {
			return err
		}

		if err := loans.Update(ctx, loan); err != nil {
			return err
		}
		if err := s.writer.Write(ctx, box, loan.ID, event, now); err != nil {
			return err
		}

		result = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.observeTransition(result.Status)
	logger := observability.WithLoanContext(s.logger, result.ID.String(), result.CustomerID)
	logger.Info().
		Str("operation", operation).
		Str("status", string(result.Status)).
		Msg("loan transition applied")

	return result, nil
}

func (s *LoanService) observeTransition(status domain.LoanStatus) {
	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(status)).Inc()
	}
}
