// Package contract owns issued policies: lifecycle state, renewal windows,
// beneficiaries and the premium due pointer the payment scheduler walks.
package contract

import (
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
)

// Status is the contract lifecycle state. Only suspended can return to
// active; every other exit from active is terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusLapsed    Status = "lapsed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusClaimed   Status = "claimed"
)

// ParseStatus validates a status literal.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusSuspended, StatusLapsed, StatusCancelled, StatusExpired, StatusClaimed:
		return st, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown contract status %q", s)
	}
}

var transitions = map[Status][]Status{
	StatusActive:    {StatusSuspended, StatusLapsed, StatusCancelled, StatusExpired, StatusClaimed},
	StatusSuspended: {StatusActive, StatusLapsed, StatusCancelled, StatusExpired},
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

// Terminal reports whether the lifecycle can leave s.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// BeneficiaryType distinguishes primary beneficiaries, whose active
// percentages must sum to at most 100, from contingent ones.
type BeneficiaryType string

const (
	BeneficiaryPrimary    BeneficiaryType = "primary"
	BeneficiaryContingent BeneficiaryType = "contingent"
)

// BeneficiaryStatus marks revocation as an explicit state.
type BeneficiaryStatus string

const (
	BeneficiaryActive  BeneficiaryStatus = "active"
	BeneficiaryRevoked BeneficiaryStatus = "revoked"
)

// Beneficiary is a designated recipient of contract benefits.
type Beneficiary struct {
	ID           string
	Name         string
	Relationship string
	Type         BeneficiaryType
	Percentage   decimal.Decimal
	Status       BeneficiaryStatus
	AddedAt      time.Time
}

// StatusChange is one append-only history row, strictly ordered by ChangedAt
// within a contract.
type StatusChange struct {
	PreviousStatus Status
	NewStatus      Status
	Actor          string
	Reason         string
	ChangedAt      time.Time
}

// Contract is an issued policy.
type Contract struct {
	ID           id.ContractID
	TenantID     id.TenantID
	PolicyNumber string
	OrderID      id.OrderID
	CustomerID   id.CustomerID
	ProductID    id.ProductID

	CoverageAmount   decimal.Decimal
	PremiumAmount    decimal.Decimal
	PremiumFrequency id.PremiumFrequency
	Currency         string

	IssueDate     time.Time
	EffectiveDate time.Time
	ExpiryDate    time.Time
	// NextRenewalDate opens the renewal window 30 days before expiry.
	NextRenewalDate     time.Time
	NextPremiumDueDate  time.Time
	LastPremiumPaidDate *time.Time

	// CashValue, SurrenderValue and LoanValue track the savings component
	// of life policies, growing as premiums settle. Nil for products
	// without one.
	CashValue      *decimal.Decimal
	SurrenderValue *decimal.Decimal
	LoanValue      *decimal.Decimal

	Status        Status
	Beneficiaries []Beneficiary
	History       []StatusChange

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrimaryPercentageWith sums active primary beneficiary percentages as if
// candidate were appended. Callers reject the write when the sum exceeds 100.
func (c *Contract) PrimaryPercentageWith(candidate Beneficiary) decimal.Decimal {
	total := decimal.Zero
	if candidate.Type == BeneficiaryPrimary && candidate.Status == BeneficiaryActive {
		total = candidate.Percentage
	}
	for _, b := range c.Beneficiaries {
		if b.Type == BeneficiaryPrimary && b.Status == BeneficiaryActive {
			total = total.Add(b.Percentage)
		}
	}
	return total
}

func (c *Contract) appendHistory(previous, next Status, actor, reason string, at time.Time) {
	c.History = append(c.History, StatusChange{
		PreviousStatus: previous,
		NewStatus:      next,
		Actor:          actor,
		Reason:         reason,
		ChangedAt:      at,
	})
}

// RenewalStatus describes where a contract stands in its renewal window.
type RenewalStatus struct {
	PolicyNumber      string
	Eligible          bool
	NextRenewalDate   time.Time
	ExpiryDate        time.Time
	RequiredDocuments []string
}
