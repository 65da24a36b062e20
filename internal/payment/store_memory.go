package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
)

type key struct {
	tenant  id.TenantID
	payment id.PaymentID
}

// InMemoryStore holds payments behind one mutex.
type InMemoryStore struct {
	mu       sync.Mutex
	payments map[key]Payment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{payments: make(map[key]Payment)}
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, p *Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.TenantID == p.TenantID && existing.ContractID == p.ContractID &&
			existing.DueDate.Equal(p.DueDate) {
			return false, nil
		}
	}
	s.payments[key{tenant: p.TenantID, payment: p.ID}] = clonePayment(p)
	return true, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, paymentID id.PaymentID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[key{tenant: tenantID, payment: paymentID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := clonePayment(&p)
	return &copied, nil
}

func (s *InMemoryStore) ListByContract(_ context.Context, tenantID id.TenantID, contractID id.ContractID) ([]*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Payment
	for k, p := range s.payments {
		if k.tenant != tenantID || p.ContractID != contractID {
			continue
		}
		copied := clonePayment(&p)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, tenantID id.TenantID, paymentID id.PaymentID,
	validate func(*Payment) error, mutate func(*Payment)) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant: tenantID, payment: paymentID}
	p, ok := s.payments[k]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(&p); err != nil {
		return nil, err
	}
	mutate(&p)
	s.payments[k] = clonePayment(&p)
	copied := clonePayment(&p)
	return &copied, nil
}

func (s *InMemoryStore) CollectedTotals(_ context.Context, tenantID id.TenantID) (CollectedTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := CollectedTotals{
		TotalCollected: decimal.Zero,
		TotalLateFees:  decimal.Zero,
	}
	for k, p := range s.payments {
		if k.tenant != tenantID {
			continue
		}
		totals.TotalPayments++
		if p.Status == StatusCompleted {
			totals.TotalCollected = totals.TotalCollected.Add(p.Amount)
			totals.TotalLateFees = totals.TotalLateFees.Add(p.LateFee)
		}
	}
	return totals, nil
}

func (s *InMemoryStore) OverdueCount(_ context.Context, tenantID id.TenantID, today time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, p := range s.payments {
		if k.tenant == tenantID && p.Overdue(today) {
			count++
		}
	}
	return count, nil
}

func clonePayment(p *Payment) Payment {
	copied := *p
	if p.PaymentDate != nil {
		d := *p.PaymentDate
		copied.PaymentDate = &d
	}
	return copied
}
