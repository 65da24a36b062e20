// Package claims owns the claims workflow: submission against an active
// contract, adjuster investigation, decision, payout and closure.
package claims

import (
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
)

// Status is the claim workflow state.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusInvestigating Status = "investigating"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusPaid          Status = "paid"
	StatusClosed        Status = "closed"
)

// ParseStatus validates a status literal.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusSubmitted, StatusInvestigating, StatusApproved, StatusRejected, StatusPaid, StatusClosed:
		return st, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown claim status %q", s)
	}
}

// transitions is the authoritative edge table. A submitted claim may be
// rejected without investigation. Only approved claims reach paid: a payout
// must trace back to a recorded approval with an approval amount, so a
// rejected claim closes without one.
var transitions = map[Status][]Status{
	StatusSubmitted:     {StatusInvestigating, StatusRejected},
	StatusInvestigating: {StatusApproved, StatusRejected},
	StatusApproved:      {StatusPaid},
	StatusRejected:      {StatusClosed},
	StatusPaid:          {StatusClosed},
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

// ClaimType classifies the loss event.
type ClaimType string

const (
	ClaimDeath      ClaimType = "death"
	ClaimDisability ClaimType = "disability"
	ClaimMedical    ClaimType = "medical"
	ClaimAccident   ClaimType = "accident"
	ClaimTheft      ClaimType = "theft"
	ClaimDamage     ClaimType = "damage"
)

// ParseClaimType validates a claim type literal.
func ParseClaimType(s string) (ClaimType, error) {
	switch c := ClaimType(s); c {
	case ClaimDeath, ClaimDisability, ClaimMedical, ClaimAccident, ClaimTheft, ClaimDamage:
		return c, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown claim type %q", s)
	}
}

// Claim is a reported loss against a contract.
type Claim struct {
	ID          id.ClaimID
	TenantID    id.TenantID
	ClaimNumber string
	ContractID  id.ContractID
	CustomerID  id.CustomerID

	ClaimType     ClaimType
	ClaimedAmount decimal.Decimal
	Currency      string
	IncidentDate  time.Time
	ReportDate    time.Time
	Description   string

	AdjusterID      string
	Status          Status
	ApprovalAmount  *decimal.Decimal
	RejectionReason string
	Notes           string
	PaymentDate     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats aggregates a tenant's claims position.
type Stats struct {
	CountsByStatus map[Status]int64
	TotalClaimed   decimal.Decimal
	TotalApproved  decimal.Decimal
	// ApprovalRate is approved outcomes over decided claims, zero when
	// nothing has been decided.
	ApprovalRate decimal.Decimal
	// ReportedLast30Days counts claims with a report date in the trailing
	// 30 days.
	ReportedLast30Days int64
}
