package quote

import (
	"context"
	"time"

	id "assurly/pkg/domain"
)

// Store persists quotes, tenant-scoped.
//
// Execute atomically re-reads the quote, runs validate, applies mutate and
// writes back — under a per-entity lock (memory) or SELECT ... FOR UPDATE
// (postgres). When validate fails because the status moved under a
// concurrent caller, the service surfaces StaleStateConflict.
type Store interface {
	Create(ctx context.Context, q *Quote) error
	FindByID(ctx context.Context, tenantID id.TenantID, quoteID id.QuoteID) (*Quote, error)
	Execute(ctx context.Context, tenantID id.TenantID, quoteID id.QuoteID,
		validate func(*Quote) error, mutate func(*Quote)) (*Quote, error)
	// ExpireStale flips every active quote whose expiry_date predates today
	// to expired and returns how many rows changed. Idempotent.
	ExpireStale(ctx context.Context, tenantID id.TenantID, today time.Time) (int64, error)
}
