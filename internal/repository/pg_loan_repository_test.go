package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlend/loan-service/internal/domain"
)

// Helper to create a valid loan for testing.
func newTestLoan() *domain.Loan {
	now := time.Now().UTC()
	return domain.NewLoan(
		domain.MustDec("5000.00"),
		24,
		domain.MustDec("0.035000"),
		"cust-123",
		now,
	)
}

var loanTestColumns = []string{
	"id", "amount", "term_months", "interest_rate", "remaining_balance",
	"status", "customer_id", "simulated_at", "approved_at", "contracted_at",
	"disbursed_at", "last_payment_at", "created_at", "updated_at",
}

// Helper to create mock rows for a loan SELECT.
func loanRows(loan *domain.Loan) *pgxmock.Rows {
	return pgxmock.NewRows(loanTestColumns).AddRow(
		loan.ID, loan.Amount.Canonical(), loan.TermMonths, loan.InterestRate.Canonical(), loan.RemainingBalance.Canonical(),
		loan.Status, loan.CustomerID, loan.SimulatedAt, loan.ApprovedAt, loan.ContractedAt,
		loan.DisbursedAt, loan.LastPaymentAt, loan.CreatedAt, loan.UpdatedAt,
	)
}

func TestNewPgLoanRepository(t *testing.T) {
	t.Run("creates repository with nil db", func(t *testing.T) {
		repo := NewPgLoanRepository(nil)
		assert.NotNil(t, repo)
		assert.Nil(t, repo.db)
	})

	t.Run("creates repository with mock db", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		assert.NotNil(t, repo)
		assert.NotNil(t, repo.db)
	})
}

func TestPgLoanRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates loan successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		loan := newTestLoan()

		mock.ExpectExec("INSERT INTO loans").
			WithArgs(
				loan.ID, "5000.00", loan.TermMonths, "0.035000", "5000.00",
				loan.Status, loan.CustomerID, loan.SimulatedAt, loan.ApprovedAt, loan.ContractedAt,
				loan.DisbursedAt, loan.LastPaymentAt, loan.CreatedAt, loan.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.Create(ctx, loan)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns validation error for nil loan", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		err = repo.Create(ctx, nil)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "loan", validationErr.Field)
	})

	t.Run("returns validation error for missing ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		loan := newTestLoan()
		loan.ID = uuid.Nil

		err = repo.Create(ctx, loan)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "id", validationErr.Field)
	})

	t.Run("wraps database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		loan := newTestLoan()

		mock.ExpectExec("INSERT INTO loans").
			WithArgs(
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnError(errors.New("database error"))

		err = repo.Create(ctx, loan)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "insert loan")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgLoanRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns loan when found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		loan := newTestLoan()

		mock.ExpectQuery("SELECT .* FROM loans WHERE id = \\$1").
			WithArgs(loan.ID).
			WillReturnRows(loanRows(loan))

		result, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, loan.ID, result.ID)
		assert.Equal(t, loan.CustomerID, result.CustomerID)
		assert.Equal(t, domain.LoanStatusSimulated, result.Status)
		assert.Equal(t, "5000.00", result.Amount.Canonical())
		assert.Equal(t, "0.035000", result.InterestRate.Canonical())
		assert.Equal(t, "5000.00", result.RemainingBalance.Canonical())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found error when not exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("SELECT .* FROM loans WHERE id = \\$1").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		result, err := repo.GetByID(ctx, id)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgLoanRepository_GetByIDForUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("locks and returns loan", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		loan := newTestLoan()

		mock.ExpectQuery("SELECT .* FROM loans WHERE id = \\$1 FOR UPDATE").
			WithArgs(loan.ID).
			WillReturnRows(loanRows(loan))

		result, err := repo.GetByIDForUpdate(ctx, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, loan.ID, result.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found error when not exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("SELECT .* FROM loans WHERE id = \\$1 FOR UPDATE").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		result, err := repo.GetByIDForUpdate(ctx, id)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgLoanRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("updates loan successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		loan := newTestLoan()
		loan.Status = domain.LoanStatusApproved
		now := time.Now().UTC()
		loan.ApprovedAt = &now

		mock.ExpectExec("UPDATE loans SET").
			WithArgs(
				loan.ID, "5000.00", domain.LoanStatusApproved,
				loan.ApprovedAt, loan.ContractedAt, loan.DisbursedAt, loan.LastPaymentAt,
				pgxmock.AnyArg(), // updated_at is stamped inside Update
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.Update(ctx, loan)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns validation error for nil loan", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		err = repo.Update(ctx, nil)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "loan", validationErr.Field)
	})

	t.Run("returns not found error when no rows affected", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)
		loan := newTestLoan()

		mock.ExpectExec("UPDATE loans SET").
			WithArgs(
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.Update(ctx, loan)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgLoanRepository_CountByStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("returns counts per status", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)

		rows := pgxmock.NewRows([]string{"status", "count"}).
			AddRow(domain.LoanStatusSimulated, int64(3)).
			AddRow(domain.LoanStatusApproved, int64(2)).
			AddRow(domain.LoanStatusPaid, int64(7))

		mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM loans GROUP BY status").
			WillReturnRows(rows)

		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), counts[domain.LoanStatusSimulated])
		assert.Equal(t, int64(2), counts[domain.LoanStatusApproved])
		assert.Equal(t, int64(7), counts[domain.LoanStatusPaid])
		assert.NotContains(t, counts, domain.LoanStatusRejected)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns empty map when no loans exist", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)

		mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM loans GROUP BY status").
			WillReturnRows(pgxmock.NewRows([]string{"status", "count"}))

		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Empty(t, counts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns error when query fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgLoanRepository(mock)

		mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM loans GROUP BY status").
			WillReturnError(errors.New("database error"))

		counts, err := repo.CountByStatus(ctx)
		assert.Nil(t, counts)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "count loans by status")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
