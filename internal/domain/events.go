package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event type tags carried on outbox entries and Kafka messages.
const (
	EventTypeLoanSimulated       = "LoanSimulated"
	EventTypeLoanPendingApproval = "LoanPendingApproval"
	EventTypeLoanApproved        = "LoanApproved"
	EventTypeLoanRejected        = "LoanRejected"
	EventTypeLoanContracted      = "LoanContracted"
	EventTypeLoanDisbursed       = "LoanDisbursed"
	EventTypeLoanPaymentMade     = "LoanPaymentMade"
)

// SystemActor is the actor recorded when the simulate operation auto-approves
// a loan below the approval threshold.
const SystemActor = "system"

// Event is a typed domain event produced by a loan state transition.
type Event interface {
	// EventType returns the tag stored on the outbox entry.
	EventType() string
}

// EncodeEvent serializes an event to its canonical JSON payload. Decimal
// fields marshal as exact-precision strings, so a payment of 100.00 stays
// "100.00" on the wire. An encoding failure aborts the enclosing transition.
func EncodeEvent(e Event) (eventType, payload string, err error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", "", fmt.Errorf("encode %s event: %w", e.EventType(), err)
	}
	return e.EventType(), string(raw), nil
}

// LoanSimulatedEvent is emitted when a loan is created by simulate.
type LoanSimulatedEvent struct {
	ID           uuid.UUID  `json:"id"`
	Amount       Decimal    `json:"amount"`
	TermMonths   int        `json:"term_months"`
	InterestRate Decimal    `json:"interest_rate"`
	CustomerID   string     `json:"customer_id"`
	SimulatedAt  time.Time  `json:"simulated_at"`
	Status       LoanStatus `json:"status"`
}

// EventType implements Event.
func (LoanSimulatedEvent) EventType() string { return EventTypeLoanSimulated }

// LoanPendingApprovalEvent is emitted when simulate routes a loan above the
// approval threshold to manual review.
type LoanPendingApprovalEvent struct {
	ID         uuid.UUID `json:"id"`
	Amount     Decimal   `json:"amount"`
	CustomerID string    `json:"customer_id"`
	At         time.Time `json:"at"`
}

// EventType implements Event.
func (LoanPendingApprovalEvent) EventType() string { return EventTypeLoanPendingApproval }

// LoanApprovedEvent is emitted on approval, whether by the system during
// simulate or by a reviewer.
type LoanApprovedEvent struct {
	ID         uuid.UUID `json:"id"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// EventType implements Event.
func (LoanApprovedEvent) EventType() string { return EventTypeLoanApproved }

// LoanRejectedEvent is emitted when a reviewer rejects a pending loan.
type LoanRejectedEvent struct {
	ID         uuid.UUID `json:"id"`
	RejectedBy string    `json:"rejected_by"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}

// EventType implements Event.
func (LoanRejectedEvent) EventType() string { return EventTypeLoanRejected }

// LoanContractedEvent is emitted when an approved loan is contracted.
type LoanContractedEvent struct {
	ID           uuid.UUID `json:"id"`
	ContractedAt time.Time `json:"contracted_at"`
}

// EventType implements Event.
func (LoanContractedEvent) EventType() string { return EventTypeLoanContracted }

// LoanDisbursedEvent is emitted when a contracted loan is disbursed.
type LoanDisbursedEvent struct {
	ID          uuid.UUID `json:"id"`
	DisbursedAt time.Time `json:"disbursed_at"`
}

// EventType implements Event.
func (LoanDisbursedEvent) EventType() string { return EventTypeLoanDisbursed }

// LoanPaymentMadeEvent is emitted for every accepted payment, including the
// final one that settles the loan.
type LoanPaymentMadeEvent struct {
	ID               uuid.UUID `json:"id"`
	Amount           Decimal   `json:"amount"`
	RemainingBalance Decimal   `json:"remaining_balance"`
	PaidAt           time.Time `json:"paid_at"`
}

// EventType implements Event.
func (LoanPaymentMadeEvent) EventType() string { return EventTypeLoanPaymentMade }
