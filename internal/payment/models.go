// Package payment owns the premium schedule: idempotent generation of
// upcoming payments, settlement with late fees, and collection statistics.
package payment

import (
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
)

// Status is the premium payment state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a status literal.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded, StatusCancelled:
		return st, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown payment status %q", s)
	}
}

// transitions is the authoritative edge table. A failed collection can be
// retried until it settles or the installment is voided; only completed
// payments refund.
var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:    {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {StatusRefunded},
}

// CanTransitionTo reports whether the edge from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payment is one premium installment. The (contract_id, due_date) pair is
// unique per tenant; schedule generation leans on that for idempotence.
type Payment struct {
	ID         id.PaymentID
	TenantID   id.TenantID
	ContractID id.ContractID

	DueDate  time.Time
	Amount   decimal.Decimal
	Currency string

	Status        Status
	PaymentDate   *time.Time
	Method        string
	TransactionID string
	LateFee       decimal.Decimal
	DaysLate      int

	// GracePeriodUsed marks a settlement that landed after the due date but
	// inside the grace window, so the contract did not lapse over it.
	GracePeriodUsed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overdue reports whether the installment is pending past its due date.
func (p *Payment) Overdue(today time.Time) bool {
	return p.Status == StatusPending && p.DueDate.Before(truncateDay(today))
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Stats aggregates a tenant's collection position.
type Stats struct {
	TotalPayments  int64
	TotalCollected decimal.Decimal
	TotalLateFees  decimal.Decimal
	OverdueCount   int64
	// CollectionRate is (total - overdue) / total, zero when no payments
	// exist.
	CollectionRate decimal.Decimal
}
