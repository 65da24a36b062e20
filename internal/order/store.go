package order

import (
	"context"
	"time"

	id "assurly/pkg/domain"
)

// Store persists orders with their status history.
//
// Execute re-reads the order under the store's concurrency control (row lock
// or mutex), runs validate against the current state, applies mutate and
// persists the result, including any history rows mutate appended. It
// returns the mutated order.
type Store interface {
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, tenantID id.TenantID, orderID id.OrderID) (*Order, error)
	Execute(ctx context.Context, tenantID id.TenantID, orderID id.OrderID,
		validate func(*Order) error, mutate func(*Order)) (*Order, error)
	// ListPending returns the tenant's non-terminal orders, oldest first.
	ListPending(ctx context.Context, tenantID id.TenantID, asOf time.Time) ([]*Order, error)
}
