// Package quote owns the quote lifecycle: generation with eligibility
// gating, expiry, and conversion into orders.
package quote

import (
	"time"

	"github.com/shopspring/decimal"

	"assurly/internal/pricing"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
)

// Status is the quote lifecycle state. active is the only non-terminal
// state; there is no way back once a quote leaves it.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
	StatusCancelled Status = "cancelled"
)

// transitions is the single authoritative edge table.
var transitions = map[Status][]Status{
	StatusActive: {StatusExpired, StatusConverted, StatusCancelled},
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

// Quote is a priced offer with a validity window. Immutable after leaving
// active, except for administrative cancellation (which is itself a
// transition out of active).
type Quote struct {
	ID          id.QuoteID
	TenantID    id.TenantID
	QuoteNumber string
	CustomerID  id.CustomerID
	ProductID   id.ProductID

	CoverageAmount   decimal.Decimal
	PremiumFrequency id.PremiumFrequency

	BasePremium       decimal.Decimal
	AdjustedPremium   decimal.Decimal
	AdditionalPremium decimal.Decimal
	FinalPremium      decimal.Decimal
	AnnualPremium     decimal.Decimal
	Currency          string
	// AppliedFactors snapshots the multipliers in force at pricing time so
	// the breakdown survives later product changes.
	AppliedFactors     []pricing.AppliedFactor
	SelectedFeatureIDs []string

	QuoteDate  time.Time
	ExpiryDate time.Time

	Eligible            bool
	Conditions          []string
	MedicalExamRequired bool

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Convertible reports whether the quote can still become an order at the
// given date. The returned error names the specific obstacle.
func (q *Quote) Convertible(today time.Time) error {
	if q.Status != StatusActive {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"quote %s is %s, only active quotes convert", q.QuoteNumber, q.Status)
	}
	if !q.Eligible {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"quote %s was issued ineligible", q.QuoteNumber)
	}
	if q.ExpiryDate.Before(truncateDay(today)) {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"quote %s expired on %s", q.QuoteNumber, q.ExpiryDate.Format("2006-01-02"))
	}
	return nil
}

// ExpiredAt reports whether the validity window has lapsed.
func (q *Quote) ExpiredAt(today time.Time) bool {
	return q.ExpiryDate.Before(truncateDay(today))
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
