package order

import (
	"context"
	"sort"
	"sync"
	"time"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
)

type key struct {
	tenant id.TenantID
	order  id.OrderID
}

// InMemoryStore holds orders behind one mutex; Execute's callbacks run under
// the lock.
type InMemoryStore struct {
	mu     sync.Mutex
	orders map[key]Order
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orders: make(map[key]Order)}
}

func (s *InMemoryStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant: o.TenantID, order: o.ID}
	if _, exists := s.orders[k]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.orders {
		if existing.TenantID == o.TenantID && existing.OrderNumber == o.OrderNumber {
			return sentinel.ErrConflict
		}
	}
	s.orders[k] = cloneOrder(o)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, orderID id.OrderID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[key{tenant: tenantID, order: orderID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := cloneOrder(&o)
	return &copied, nil
}

func (s *InMemoryStore) Execute(_ context.Context, tenantID id.TenantID, orderID id.OrderID,
	validate func(*Order) error, mutate func(*Order)) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant: tenantID, order: orderID}
	o, ok := s.orders[k]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(&o); err != nil {
		return nil, err
	}
	mutate(&o)
	s.orders[k] = cloneOrder(&o)
	copied := cloneOrder(&o)
	return &copied, nil
}

func (s *InMemoryStore) ListPending(_ context.Context, tenantID id.TenantID, _ time.Time) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for k, o := range s.orders {
		if k.tenant != tenantID || o.Status.Terminal() {
			continue
		}
		copied := cloneOrder(&o)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ApplicationDate.Before(out[j].ApplicationDate)
	})
	return out, nil
}

func cloneOrder(o *Order) Order {
	copied := *o
	copied.History = append([]StatusChange(nil), o.History...)
	if o.EffectiveDate != nil {
		d := *o.EffectiveDate
		copied.EffectiveDate = &d
	}
	if o.ApprovalDate != nil {
		d := *o.ApprovalDate
		copied.ApprovalDate = &d
	}
	return copied
}
