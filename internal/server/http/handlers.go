package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/finlend/loan-service/internal/domain"
	"github.com/finlend/loan-service/internal/flags"
	"github.com/finlend/loan-service/internal/service"
)

const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies

	// userHeader carries the acting back-office user for review decisions.
	userHeader = "X-User"
	// defaultActor is recorded when no user header is supplied.
	defaultActor = "backoffice"
)

var validate = validator.New()

// simulateLoanRequest is the JSON request body for simulating a loan.
type simulateLoanRequest struct {
	Amount       string `json:"amount" validate:"required"`
	TermMonths   int    `json:"term_months" validate:"required,gt=0"`
	InterestRate string `json:"interest_rate" validate:"required"`
	CustomerID   string `json:"customer_id" validate:"required"`
}

// rejectLoanRequest is the JSON request body for rejecting a loan.
type rejectLoanRequest struct {
	Reason string `json:"reason,omitempty"`
}

// payLoanRequest is the JSON request body for a loan payment.
type payLoanRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// simulateLoan handles POST /loans/simulate. It creates the loan and applies
// the routing decision atomically; the response already carries the decided
// status, never SIMULATED.
func (s *Server) simulateLoan(w http.ResponseWriter, r *http.Request) {
	var req simulateLoanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, validationMessage(err))
		return
	}

	amount, err := domain.DecFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, "amount must be a decimal number")
		return
	}
	rate, err := domain.DecFromString(req.InterestRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, "interest_rate must be a decimal number")
		return
	}

	loan, err := s.loans.Simulate(r.Context(), service.SimulateInput{
		Amount:                amount,
		TermMonths:            req.TermMonths,
		InterestRate:          rate,
		CustomerID:            req.CustomerID,
		ManualApprovalEnabled: s.manualApprovalEnabled(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, domainLoanToResponse(loan))
}

// getLoan handles GET /loans/{loanID}.
func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseUUID(w, chi.URLParam(r, "loanID"), "loan_id")
	if !ok {
		return
	}

	loan, err := s.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainLoanToResponse(loan))
}

// approveLoan handles POST /loans/{loanID}/approve.
func (s *Server) approveLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseUUID(w, chi.URLParam(r, "loanID"), "loan_id")
	if !ok {
		return
	}

	loan, err := s.loans.Approve(r.Context(), loanID, actorFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainLoanToResponse(loan))
}

// rejectLoan handles POST /loans/{loanID}/reject. The body and its reason are
// optional; an omitted reason is recorded as "unspecified".
func (s *Server) rejectLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseUUID(w, chi.URLParam(r, "loanID"), "loan_id")
	if !ok {
		return
	}

	var req rejectLoanRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	loan, err := s.loans.Reject(r.Context(), loanID, actorFromRequest(r), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainLoanToResponse(loan))
}

// contractLoan handles POST /loans/{loanID}/contract.
func (s *Server) contractLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseUUID(w, chi.URLParam(r, "loanID"), "loan_id")
	if !ok {
		return
	}

	loan, err := s.loans.Contract(r.Context(), loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainLoanToResponse(loan))
}

// disburseLoan handles POST /loans/{loanID}/disburse.
func (s *Server) disburseLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseUUID(w, chi.URLParam(r, "loanID"), "loan_id")
	if !ok {
		return
	}

	loan, err := s.loans.Disburse(r.Context(), loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainLoanToResponse(loan))
}

// payLoan handles POST /loans/{loanID}/pay.
func (s *Server) payLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseUUID(w, chi.URLParam(r, "loanID"), "loan_id")
	if !ok {
		return
	}

	var req payLoanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, validationMessage(err))
		return
	}

	amount, err := domain.DecFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, "amount must be a decimal number")
		return
	}

	loan, err := s.loans.Pay(r.Context(), loanID, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainLoanToResponse(loan))
}

// decodeBody reads and unmarshals the request body into v, writing a 400
// response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// manualApprovalEnabled resolves the manual-approval flag at request time, so
// a flipped flag takes effect without a restart.
func (s *Server) manualApprovalEnabled() bool {
	return s.flags != nil && s.flags.Enabled(flags.ManualApproval)
}

// actorFromRequest returns the acting user from the X-User header, falling
// back to the shared back-office identity.
func actorFromRequest(r *http.Request) string {
	if user := r.Header.Get(userHeader); user != "" {
		return user
	}
	return defaultActor
}

// parseUUID parses a UUID from a string, writing a 400 error response if
// invalid. The parse error details are not echoed back.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// validationMessage flattens a validator error into a single client-facing
// message naming the first offending field.
func validationMessage(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", jsonFieldName(fe.Field()))
		case "gt":
			return fmt.Sprintf("%s must be greater than %s", jsonFieldName(fe.Field()), fe.Param())
		default:
			return fmt.Sprintf("%s is invalid", jsonFieldName(fe.Field()))
		}
	}
	return "invalid request body"
}

// jsonFieldName maps a struct field name to its snake_case JSON name.
func jsonFieldName(field string) string {
	switch field {
	case "Amount":
		return "amount"
	case "TermMonths":
		return "term_months"
	case "InterestRate":
		return "interest_rate"
	case "CustomerID":
		return "customer_id"
	default:
		return field
	}
}
