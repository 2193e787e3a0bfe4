package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/finlend/loan-service/internal/domain"
)

// Error categories returned in the "error" field of error responses.
const (
	errBadRequest    = "bad_request"
	errConflict      = "conflict"
	errNotFound      = "not_found"
	errInternalError = "internal_error"
)

// errorResponse is the JSON body for all error responses.
type errorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
}

// loanResponse is the JSON representation of a loan.
type loanResponse struct {
	ID               string     `json:"id"`
	Amount           string     `json:"amount"`
	TermMonths       int        `json:"term_months"`
	InterestRate     string     `json:"interest_rate"`
	RemainingBalance string     `json:"remaining_balance"`
	Status           string     `json:"status"`
	CustomerID       string     `json:"customer_id"`
	SimulatedAt      *time.Time `json:"simulated_at,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	ContractedAt     *time.Time `json:"contracted_at,omitempty"`
	DisbursedAt      *time.Time `json:"disbursed_at,omitempty"`
	LastPaymentAt    *time.Time `json:"last_payment_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func domainLoanToResponse(l *domain.Loan) loanResponse {
	return loanResponse{
		ID:               l.ID.String(),
		Amount:           l.Amount.Canonical(),
		TermMonths:       l.TermMonths,
		InterestRate:     l.InterestRate.Canonical(),
		RemainingBalance: l.RemainingBalance.Canonical(),
		Status:           string(l.Status),
		CustomerID:       l.CustomerID,
		SimulatedAt:      l.SimulatedAt,
		ApprovedAt:       l.ApprovedAt,
		ContractedAt:     l.ContractedAt,
		DisbursedAt:      l.DisbursedAt,
		LastPaymentAt:    l.LastPaymentAt,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response with the given category and message.
func writeError(w http.ResponseWriter, statusCode int, category, message string) {
	writeJSON(w, statusCode, errorResponse{
		Timestamp: time.Now().UTC(),
		Status:    statusCode,
		Error:     category,
		Message:   message,
	})
}

// writeDomainError maps domain errors to HTTP status codes and writes a JSON
// error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		var nfe *domain.NotFoundError
		if errors.As(err, &nfe) {
			writeError(w, http.StatusNotFound, errNotFound, nfe.Error())
		} else {
			writeError(w, http.StatusNotFound, errNotFound, "resource not found")
		}
	case errors.Is(err, domain.ErrInvalidState):
		var ise *domain.InvalidStateError
		if errors.As(err, &ise) {
			writeError(w, http.StatusConflict, errConflict, ise.Error())
		} else {
			writeError(w, http.StatusConflict, errConflict, "operation not allowed in current state")
		}
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, errBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, errBadRequest, "invalid input")
		}
	default:
		writeError(w, http.StatusInternalServerError, errInternalError, "internal server error")
	}
}
