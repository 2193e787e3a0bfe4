package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlend/loan-service/internal/domain"
	"github.com/finlend/loan-service/internal/flags"
	"github.com/finlend/loan-service/internal/service"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockLoanService implements LoanService for HTTP handler tests.
type mockLoanService struct {
	simulateFn func(ctx context.Context, in service.SimulateInput) (*domain.Loan, error)
	getFn      func(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	approveFn  func(ctx context.Context, id uuid.UUID, actor string) (*domain.Loan, error)
	rejectFn   func(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.Loan, error)
	contractFn func(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	disburseFn func(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	payFn      func(ctx context.Context, id uuid.UUID, amount domain.Decimal) (*domain.Loan, error)
}

func (m *mockLoanService) Simulate(ctx context.Context, in service.SimulateInput) (*domain.Loan, error) {
	if m.simulateFn != nil {
		return m.simulateFn(ctx, in)
	}
	return nil, errors.New("unexpected call")
}

func (m *mockLoanService) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockLoanService) Approve(ctx context.Context, id uuid.UUID, actor string) (*domain.Loan, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, id, actor)
	}
	return nil, errors.New("unexpected call")
}

func (m *mockLoanService) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.Loan, error) {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, id, actor, reason)
	}
	return nil, errors.New("unexpected call")
}

func (m *mockLoanService) Contract(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	if m.contractFn != nil {
		return m.contractFn(ctx, id)
	}
	return nil, errors.New("unexpected call")
}

func (m *mockLoanService) Disburse(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	if m.disburseFn != nil {
		return m.disburseFn(ctx, id)
	}
	return nil, errors.New("unexpected call")
}

func (m *mockLoanService) Pay(ctx context.Context, id uuid.UUID, amount domain.Decimal) (*domain.Loan, error) {
	if m.payFn != nil {
		return m.payFn(ctx, id, amount)
	}
	return nil, errors.New("unexpected call")
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestHTTPServer creates a Server configured for testing with a mocked
// loan service.
func newTestHTTPServer(loans LoanService) *Server {
	s := &Server{
		loans:  loans,
		logger: zerolog.Nop(),
	}
	s.router = s.buildRouter()
	return s
}

func testLoan(status domain.LoanStatus) *domain.Loan {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	return &domain.Loan{
		ID:               uuid.New(),
		Amount:           domain.MustDec("5000.00"),
		TermMonths:       24,
		InterestRate:     domain.MustDec("0.035000"),
		RemainingBalance: domain.MustDec("5000.00"),
		Status:           status,
		CustomerID:       "cust-123",
		SimulatedAt:      &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func doRequest(s *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ---------------------------------------------------------------------------
// Simulate
// ---------------------------------------------------------------------------

func TestSimulateLoan(t *testing.T) {
	t.Run("creates loan and returns decided status", func(t *testing.T) {
		loan := testLoan(domain.LoanStatusApproved)
		mock := &mockLoanService{
			simulateFn: func(_ context.Context, in service.SimulateInput) (*domain.Loan, error) {
				assert.Equal(t, "5000.00", in.Amount.Canonical())
				assert.Equal(t, 24, in.TermMonths)
				assert.Equal(t, "0.035000", in.InterestRate.Canonical())
				assert.Equal(t, "cust-123", in.CustomerID)
				return loan, nil
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/simulate", map[string]interface{}{
			"amount":        "5000.00",
			"term_months":   24,
			"interest_rate": "0.035000",
			"customer_id":   "cust-123",
		}, nil)

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp loanResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, loan.ID.String(), resp.ID)
		assert.Equal(t, "5000.00", resp.Amount)
		assert.Equal(t, "5000.00", resp.RemainingBalance)
		assert.Equal(t, string(domain.LoanStatusApproved), resp.Status)
	})

	t.Run("threads the manual-approval flag into the input", func(t *testing.T) {
		loan := testLoan(domain.LoanStatusPendingApproval)
		mock := &mockLoanService{
			simulateFn: func(_ context.Context, in service.SimulateInput) (*domain.Loan, error) {
				assert.True(t, in.ManualApprovalEnabled)
				return loan, nil
			},
		}
		s := &Server{
			loans:  mock,
			flags:  flags.NewStaticProvider(map[string]bool{flags.ManualApproval: true}),
			logger: zerolog.Nop(),
		}
		s.router = s.buildRouter()

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/simulate", map[string]interface{}{
			"amount":        "15000.00",
			"term_months":   36,
			"interest_rate": "0.040000",
			"customer_id":   "cust-123",
		}, nil)

		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("flag defaults to off without a provider", func(t *testing.T) {
		loan := testLoan(domain.LoanStatusApproved)
		mock := &mockLoanService{
			simulateFn: func(_ context.Context, in service.SimulateInput) (*domain.Loan, error) {
				assert.False(t, in.ManualApprovalEnabled)
				return loan, nil
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/simulate", map[string]interface{}{
			"amount":        "15000.00",
			"term_months":   36,
			"interest_rate": "0.040000",
			"customer_id":   "cust-123",
		}, nil)

		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("rejects missing amount", func(t *testing.T) {
		s := newTestHTTPServer(&mockLoanService{})

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/simulate", map[string]interface{}{
			"term_months": 24,
			"customer_id": "cust-123",
		}, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeErrorResponse(t, rec)
		assert.Equal(t, "bad_request", resp.Error)
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.False(t, resp.Timestamp.IsZero())
	})

	t.Run("rejects non-decimal amount", func(t *testing.T) {
		s := newTestHTTPServer(&mockLoanService{})

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/simulate", map[string]interface{}{
			"amount":        "lots",
			"term_months":   24,
			"interest_rate": "0.035000",
			"customer_id":   "cust-123",
		}, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decodeErrorResponse(t, rec).Error)
	})

	t.Run("rejects invalid JSON body", func(t *testing.T) {
		s := newTestHTTPServer(&mockLoanService{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/simulate", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decodeErrorResponse(t, rec).Error)
	})

	t.Run("maps validation error from the service", func(t *testing.T) {
		mock := &mockLoanService{
			simulateFn: func(_ context.Context, _ service.SimulateInput) (*domain.Loan, error) {
				return nil, domain.NewValidationError("amount", "amount must be positive")
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/simulate", map[string]interface{}{
			"amount":        "-1",
			"term_months":   24,
			"interest_rate": "0.035000",
			"customer_id":   "cust-123",
		}, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeErrorResponse(t, rec)
		assert.Equal(t, "bad_request", resp.Error)
		assert.Contains(t, resp.Message, "amount must be positive")
	})
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestGetLoan(t *testing.T) {
	t.Run("returns loan", func(t *testing.T) {
		loan := testLoan(domain.LoanStatusDisbursed)
		mock := &mockLoanService{
			getFn: func(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
				assert.Equal(t, loan.ID, id)
				return loan, nil
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodGet, "/api/v1/loans/"+loan.ID.String(), nil, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp loanResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(domain.LoanStatusDisbursed), resp.Status)
	})

	t.Run("unknown loan returns 404", func(t *testing.T) {
		mock := &mockLoanService{
			getFn: func(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
				return nil, domain.NewNotFoundError("loan", id.String())
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodGet, "/api/v1/loans/"+uuid.New().String(), nil, nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeErrorResponse(t, rec).Error)
	})

	t.Run("malformed id returns 400", func(t *testing.T) {
		s := newTestHTTPServer(&mockLoanService{})

		rec := doRequest(s, http.MethodGet, "/api/v1/loans/not-a-uuid", nil, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeErrorResponse(t, rec)
		assert.Equal(t, "bad_request", resp.Error)
		assert.Contains(t, resp.Message, "loan_id")
	})
}

// ---------------------------------------------------------------------------
// Approve / Reject
// ---------------------------------------------------------------------------

func TestApproveLoan(t *testing.T) {
	t.Run("passes the acting user from the header", func(t *testing.T) {
		loan := testLoan(domain.LoanStatusApproved)
		mock := &mockLoanService{
			approveFn: func(_ context.Context, id uuid.UUID, actor string) (*domain.Loan, error) {
				assert.Equal(t, loan.ID, id)
				assert.Equal(t, "reviewer-7", actor)
				return loan, nil
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/approve", nil,
			map[string]string{"X-User": "reviewer-7"})

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("defaults the actor without a header", func(t *testing.T) {
		loan := testLoan(domain.LoanStatusApproved)
		mock := &mockLoanService{
			approveFn: func(_ context.Context, _ uuid.UUID, actor string) (*domain.Loan, error) {
				assert.Equal(t, "backoffice", actor)
				return loan, nil
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/approve", nil, nil)

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid state returns 409", func(t *testing.T) {
		id := uuid.New()
		mock := &mockLoanService{
			approveFn: func(_ context.Context, _ uuid.UUID, _ string) (*domain.Loan, error) {
				return nil, domain.NewInvalidStateError(id.String(), domain.LoanStatusRejected, "approve")
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+id.String()+"/approve", nil, nil)

		require.Equal(t, http.StatusConflict, rec.Code)
		resp := decodeErrorResponse(t, rec)
		assert.Equal(t, "conflict", resp.Error)
		assert.Contains(t, resp.Message, "cannot approve")
	})
}

func TestRejectLoan(t *testing.T) {
	t.Run("passes the reason from the body", func(t *testing.T) {
		loan := testLoan(domain.LoanStatusRejected)
		mock := &mockLoanService{
			rejectFn: func(_ context.Context, _ uuid.UUID, actor, reason string) (*domain.Loan, error) {
				assert.Equal(t, "reviewer-7", actor)
				assert.Equal(t, "income not verified", reason)
				return loan, nil
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/reject",
			map[string]string{"reason": "income not verified"},
			map[string]string{"X-User": "reviewer-7"})

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty body passes an empty reason through", func(t *testing.T) {
		loan := testLoan(domain.LoanStatusRejected)
		mock := &mockLoanService{
			rejectFn: func(_ context.Context, _ uuid.UUID, _, reason string) (*domain.Loan, error) {
				assert.Empty(t, reason)
				return loan, nil
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/reject", nil, nil)

		require.Equal(t, http.StatusOK, rec.Code)
	})
}

// ---------------------------------------------------------------------------
// Contract / Disburse / Pay
// ---------------------------------------------------------------------------

func TestContractLoan(t *testing.T) {
	loan := testLoan(domain.LoanStatusContracted)
	mock := &mockLoanService{
		contractFn: func(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
			assert.Equal(t, loan.ID, id)
			return loan, nil
		},
	}
	s := newTestHTTPServer(mock)

	rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/contract", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp loanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.LoanStatusContracted), resp.Status)
}

func TestDisburseLoan(t *testing.T) {
	loan := testLoan(domain.LoanStatusDisbursed)
	mock := &mockLoanService{
		disburseFn: func(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
			return loan, nil
		},
	}
	s := newTestHTTPServer(mock)

	rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/disburse", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPayLoan(t *testing.T) {
	t.Run("applies payment", func(t *testing.T) {
		loan := testLoan(domain.LoanStatusDisbursed)
		loan.RemainingBalance = domain.MustDec("4900.00")
		mock := &mockLoanService{
			payFn: func(_ context.Context, id uuid.UUID, amount domain.Decimal) (*domain.Loan, error) {
				assert.Equal(t, loan.ID, id)
				assert.Equal(t, "100.00", amount.Canonical())
				return loan, nil
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/pay",
			map[string]string{"amount": "100.00"}, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp loanResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "4900.00", resp.RemainingBalance)
	})

	t.Run("missing amount returns 400", func(t *testing.T) {
		s := newTestHTTPServer(&mockLoanService{})

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+uuid.New().String()+"/pay",
			map[string]string{}, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeErrorResponse(t, rec).Message, "amount")
	})

	t.Run("overpayment surfaces as 400", func(t *testing.T) {
		mock := &mockLoanService{
			payFn: func(_ context.Context, _ uuid.UUID, _ domain.Decimal) (*domain.Loan, error) {
				return nil, domain.NewValidationError("amount", "payment exceeds remaining balance")
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+uuid.New().String()+"/pay",
			map[string]string{"amount": "10000.00"}, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeErrorResponse(t, rec).Message, "exceeds remaining balance")
	})

	t.Run("unexpected service error returns 500 without details", func(t *testing.T) {
		mock := &mockLoanService{
			payFn: func(_ context.Context, _ uuid.UUID, _ domain.Decimal) (*domain.Loan, error) {
				return nil, errors.New("connection refused to db-internal-host:5432")
			},
		}
		s := newTestHTTPServer(mock)

		rec := doRequest(s, http.MethodPost, "/api/v1/loans/"+uuid.New().String()+"/pay",
			map[string]string{"amount": "100.00"}, nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decodeErrorResponse(t, rec)
		assert.Equal(t, "internal_error", resp.Error)
		assert.NotContains(t, resp.Message, "db-internal-host")
	})
}
