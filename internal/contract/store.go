package contract

import (
	"context"

	id "assurly/pkg/domain"
)

// Store persists contracts with their beneficiaries and status history.
//
// Execute re-reads the contract under the store's concurrency control, runs
// validate against the current state, applies mutate and persists status,
// due-date pointers and any beneficiary or history rows mutate appended.
type Store interface {
	Create(ctx context.Context, c *Contract) error
	FindByID(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*Contract, error)
	FindByPolicyNumber(ctx context.Context, tenantID id.TenantID, policyNumber string) (*Contract, error)
	Execute(ctx context.Context, tenantID id.TenantID, contractID id.ContractID,
		validate func(*Contract) error, mutate func(*Contract)) (*Contract, error)
}
