// Package order owns the application workflow between a converted quote and
// an issued contract: a reviewed state machine with an append-only status
// history.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
)

// Status is the order workflow state.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
)

// ParseStatus validates a status literal.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusCancelled:
		return st, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown order status %q", s)
	}
}

// transitions is the authoritative edge table. approved, rejected and
// cancelled are terminal.
var transitions = map[Status][]Status{
	StatusDraft:       {StatusSubmitted, StatusCancelled},
	StatusSubmitted:   {StatusUnderReview, StatusCancelled},
	StatusUnderReview: {StatusApproved, StatusRejected, StatusCancelled},
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

// Terminal reports whether the workflow can leave s.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// StatusChange is one append-only history row. Rows are strictly ordered by
// ChangedAt within an order.
type StatusChange struct {
	PreviousStatus Status
	NewStatus      Status
	Actor          string
	Reason         string
	ChangedAt      time.Time
}

// Order is an insurance application under review.
type Order struct {
	ID          id.OrderID
	TenantID    id.TenantID
	OrderNumber string
	// QuoteID is nil-valued for orders created directly, without a quote.
	QuoteID    id.QuoteID
	CustomerID id.CustomerID
	ProductID  id.ProductID

	CoverageAmount   decimal.Decimal
	PremiumAmount    decimal.Decimal
	PremiumFrequency id.PremiumFrequency
	PaymentMethod    string

	ApplicationDate time.Time
	// EffectiveDate, when set, overrides the contract's issue date as the
	// coverage start.
	EffectiveDate *time.Time

	DocumentsReceived    bool
	MedicalExamRequired  bool
	MedicalExamCompleted bool

	Status          Status
	ApprovalDate    *time.Time
	RejectionReason string

	History []StatusChange

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttentionReasons derives the triage signal: why a reviewer should look at
// this order today. Empty means nothing is blocking.
func (o *Order) AttentionReasons(today time.Time) []string {
	var reasons []string
	if !o.DocumentsReceived {
		reasons = append(reasons, "documents not received")
	}
	if o.MedicalExamRequired && !o.MedicalExamCompleted {
		reasons = append(reasons, "medical exam pending")
	}
	if (o.Status == StatusSubmitted || o.Status == StatusUnderReview) &&
		today.Sub(o.ApplicationDate) > 7*24*time.Hour {
		reasons = append(reasons, "application older than 7 days")
	}
	return reasons
}

// appendHistory records a transition row. Callers hold whatever lock protects
// the order.
func (o *Order) appendHistory(previous, next Status, actor, reason string, at time.Time) {
	o.History = append(o.History, StatusChange{
		PreviousStatus: previous,
		NewStatus:      next,
		Actor:          actor,
		Reason:         reason,
		ChangedAt:      at,
	})
}
