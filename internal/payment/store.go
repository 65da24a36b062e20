package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
)

// CollectedTotals is the settled side of the collection statistics.
type CollectedTotals struct {
	TotalPayments  int64
	TotalCollected decimal.Decimal
	TotalLateFees  decimal.Decimal
}

// Store persists premium payments.
//
// CreateIfAbsent inserts unless a payment with the same
// (contract_id, due_date) already exists; it reports whether a row was
// created. Execute follows the same atomic validate-then-mutate contract as
// the other stores.
type Store interface {
	CreateIfAbsent(ctx context.Context, p *Payment) (bool, error)
	FindByID(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID) (*Payment, error)
	ListByContract(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) ([]*Payment, error)
	Execute(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID,
		validate func(*Payment) error, mutate func(*Payment)) (*Payment, error)
	CollectedTotals(ctx context.Context, tenantID id.TenantID) (CollectedTotals, error)
	OverdueCount(ctx context.Context, tenantID id.TenantID, today time.Time) (int64, error)
}
