package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finlend/loan-service/internal/domain"
)

// Compile-time interface verification.
var _ LoanRepository = (*PgLoanRepository)(nil)

// loanColumns lists the selected columns. Decimal columns are cast to text so
// they scan losslessly into exact decimals instead of floats.
const loanColumns = `id, amount::text, term_months, interest_rate::text, remaining_balance::text,
		status, customer_id, simulated_at, approved_at, contracted_at, disbursed_at,
		last_payment_at, created_at, updated_at`

// PgLoanRepository is a PostgreSQL implementation of LoanRepository.
type PgLoanRepository struct {
	db DBTX
}

// NewPgLoanRepository creates a new PostgreSQL loan repository.
func NewPgLoanRepository(db DBTX) *PgLoanRepository {
	return &PgLoanRepository{db: db}
}

// Create inserts a new loan record.
func (r *PgLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	if loan == nil {
		return domain.NewValidationError("loan", "loan cannot be nil")
	}
	if loan.ID == uuid.Nil {
		return domain.NewValidationError("id", "loan ID is required")
	}

	query := `
		INSERT INTO loans (
			id, amount, term_months, interest_rate, remaining_balance,
			status, customer_id, simulated_at, approved_at, contracted_at,
			disbursed_at, last_payment_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14
		)`

	_, err := r.db.Exec(ctx, query,
		loan.ID, loan.Amount.Canonical(), loan.TermMonths, loan.InterestRate.Canonical(), loan.RemainingBalance.Canonical(),
		loan.Status, loan.CustomerID, loan.SimulatedAt, loan.ApprovedAt, loan.ContractedAt,
		loan.DisbursedAt, loan.LastPaymentAt, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}

	return nil
}

// GetByID fetches a loan by id.
func (r *PgLoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	return r.scanLoan(r.db.QueryRow(ctx, query, id), id)
}

// GetByIDForUpdate fetches a loan by id and locks its row until the enclosing
// transaction ends. Two concurrent operations against the same loan serialize
// here, which is what prevents a lost update between concurrent payments.
func (r *PgLoanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	return r.scanLoan(r.db.QueryRow(ctx, query, id), id)
}

// Update persists the mutable fields of a loan.
func (r *PgLoanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	if loan == nil {
		return domain.NewValidationError("loan", "loan cannot be nil")
	}

	query := `
		UPDATE loans SET
			remaining_balance = $2,
			status = $3,
			approved_at = $4,
			contracted_at = $5,
			disbursed_at = $6,
			last_payment_at = $7,
			updated_at = $8
		WHERE id = $1`

	loan.UpdatedAt = time.Now().UTC()

	tag, err := r.db.Exec(ctx, query,
		loan.ID,
		loan.RemainingBalance.Canonical(),
		loan.Status,
		loan.ApprovedAt,
		loan.ContractedAt,
		loan.DisbursedAt,
		loan.LastPaymentAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("loan", loan.ID.String())
	}

	return nil
}

// CountByStatus returns the number of loans per status.
func (r *PgLoanRepository) CountByStatus(ctx context.Context) (map[domain.LoanStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM loans GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count loans by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.LoanStatus]int64, len(domain.AllLoanStatuses))
	for rows.Next() {
		var status domain.LoanStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

// scanLoan scans a single loan row, mapping pgx.ErrNoRows to a not-found error.
func (r *PgLoanRepository) scanLoan(row pgx.Row, id uuid.UUID) (*domain.Loan, error) {
	var (
		loan             domain.Loan
		amount           string
		interestRate     string
		remainingBalance string
	)

	err := row.Scan(
		&loan.ID, &amount, &loan.TermMonths, &interestRate, &remainingBalance,
		&loan.Status, &loan.CustomerID, &loan.SimulatedAt, &loan.ApprovedAt, &loan.ContractedAt,
		&loan.DisbursedAt, &loan.LastPaymentAt, &loan.CreatedAt, &loan.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("loan", id.String())
		}
		return nil, fmt.Errorf("scan loan: %w", err)
	}

	if loan.Amount, err = domain.DecFromString(amount); err != nil {
		return nil, fmt.Errorf("parse loan amount: %w", err)
	}
	if loan.InterestRate, err = domain.DecFromString(interestRate); err != nil {
		return nil, fmt.Errorf("parse loan interest rate: %w", err)
	}
	if loan.RemainingBalance, err = domain.DecFromString(remainingBalance); err != nil {
		return nil, fmt.Errorf("parse loan remaining balance: %w", err)
	}

	return &loan, nil
}
