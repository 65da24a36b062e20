package catalog

import (
	"context"

	id "assurly/pkg/domain"
)

// CustomerStore persists customers, tenant-scoped. Implementations return
// sentinel.ErrNotFound for missing or cross-tenant IDs and
// sentinel.ErrConflict on uniqueness violations.
type CustomerStore interface {
	Create(ctx context.Context, c *Customer) error
	FindByID(ctx context.Context, tenantID id.TenantID, customerID id.CustomerID) (*Customer, error)
	Update(ctx context.Context, c *Customer) error
}

// ProductStore persists products with their pricing configuration.
type ProductStore interface {
	Create(ctx context.Context, p *Product) error
	FindByID(ctx context.Context, tenantID id.TenantID, productID id.ProductID) (*Product, error)
}
