// Package domain contains the loan lifecycle model, the domain events it
// emits, and the outbox entry that carries those events to Kafka.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// LoanStatus represents the lifecycle state of a loan.
type LoanStatus string

// Loan lifecycle states. A loan only ever moves forward through these;
// REJECTED and PAID are terminal.
const (
	LoanStatusSimulated       LoanStatus = "SIMULATED"
	LoanStatusPendingApproval LoanStatus = "PENDING_APPROVAL"
	LoanStatusApproved        LoanStatus = "APPROVED"
	LoanStatusRejected        LoanStatus = "REJECTED"
	LoanStatusContracted      LoanStatus = "CONTRACTED"
	LoanStatusDisbursed       LoanStatus = "DISBURSED"
	LoanStatusPaid            LoanStatus = "PAID"
)

// AllLoanStatuses lists every lifecycle state, used for gauge reporting.
var AllLoanStatuses = []LoanStatus{
	LoanStatusSimulated,
	LoanStatusPendingApproval,
	LoanStatusApproved,
	LoanStatusRejected,
	LoanStatusContracted,
	LoanStatusDisbursed,
	LoanStatusPaid,
}

// validStatusTransitions defines the allowed status transitions for loans.
// Package-level to avoid re-allocating on every call. The SIMULATED branch is
// only ever taken inside the simulate operation itself; both decision outcomes
// are listed here.
var validStatusTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusSimulated: {
		LoanStatusPendingApproval,
		LoanStatusApproved,
	},
	LoanStatusPendingApproval: {
		LoanStatusApproved,
		LoanStatusRejected,
	},
	LoanStatusApproved: {
		LoanStatusContracted,
	},
	LoanStatusContracted: {
		LoanStatusDisbursed,
	},
	LoanStatusDisbursed: {
		LoanStatusPaid,
	},
}

// CanTransitionTo reports whether a loan may move from s to target.
func (s LoanStatus) CanTransitionTo(target LoanStatus) bool {
	for _, allowed := range validStatusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no operation transitions out of s.
func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusRejected || s == LoanStatusPaid
}

// Loan is the aggregate tracked through the lifecycle. Monetary fields use
// exact decimals; remaining balance starts equal to the amount and is
// monotonically non-increasing once disbursed.
type Loan struct {
	ID               uuid.UUID  `json:"id"`
	Amount           Decimal    `json:"amount"`
	TermMonths       int        `json:"term_months"`
	InterestRate     Decimal    `json:"interest_rate"`
	RemainingBalance Decimal    `json:"remaining_balance"`
	Status           LoanStatus `json:"status"`
	CustomerID       string     `json:"customer_id"`
	SimulatedAt      *time.Time `json:"simulated_at,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	ContractedAt     *time.Time `json:"contracted_at,omitempty"`
	DisbursedAt      *time.Time `json:"disbursed_at,omitempty"`
	LastPaymentAt    *time.Time `json:"last_payment_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewLoan creates a loan in the SIMULATED state with the balance equal to the
// principal amount.
func NewLoan(amount Decimal, termMonths int, rate Decimal, customerID string, now time.Time) *Loan {
	return &Loan{
		ID:               uuid.New(),
		Amount:           amount,
		TermMonths:       termMonths,
		InterestRate:     rate,
		RemainingBalance: amount,
		Status:           LoanStatusSimulated,
		CustomerID:       customerID,
		SimulatedAt:      &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
