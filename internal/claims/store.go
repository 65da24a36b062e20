package claims

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
)

// Amounts is the money side of the claims statistics.
type Amounts struct {
	TotalClaimed  decimal.Decimal
	TotalApproved decimal.Decimal
}

// Store persists claims. Execute follows the same atomic
// validate-then-mutate contract as the other stores.
type Store interface {
	Create(ctx context.Context, c *Claim) error
	FindByID(ctx context.Context, tenantID id.TenantID, claimID id.ClaimID) (*Claim, error)
	Execute(ctx context.Context, tenantID id.TenantID, claimID id.ClaimID,
		validate func(*Claim) error, mutate func(*Claim)) (*Claim, error)
	CountsByStatus(ctx context.Context, tenantID id.TenantID) (map[Status]int64, error)
	Amounts(ctx context.Context, tenantID id.TenantID) (Amounts, error)
	CountReportedSince(ctx context.Context, tenantID id.TenantID, since time.Time) (int64, error)
}
