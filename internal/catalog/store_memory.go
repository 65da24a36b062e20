package catalog

import (
	"context"
	"strings"
	"sync"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
)

type customerKey struct {
	tenant   id.TenantID
	customer id.CustomerID
}

type productKey struct {
	tenant  id.TenantID
	product id.ProductID
}

// InMemoryStore backs both catalog stores for tests and storeless runs.
type InMemoryStore struct {
	mu        sync.RWMutex
	customers map[customerKey]Customer
	products  map[productKey]Product
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		customers: make(map[customerKey]Customer),
		products:  make(map[productKey]Product),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, c *Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := customerKey{tenant: c.TenantID, customer: c.ID}
	if _, exists := s.customers[key]; exists {
		return sentinel.ErrConflict
	}
	if c.Email != "" {
		for k, existing := range s.customers {
			if k.tenant == c.TenantID && strings.EqualFold(existing.Email, c.Email) {
				return sentinel.ErrConflict
			}
		}
	}
	s.customers[key] = *c
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, tenantID id.TenantID, customerID id.CustomerID) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[customerKey{tenant: tenantID, customer: customerID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := c
	return &copied, nil
}

func (s *InMemoryStore) Update(ctx context.Context, c *Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := customerKey{tenant: c.TenantID, customer: c.ID}
	if _, ok := s.customers[key]; !ok {
		return sentinel.ErrNotFound
	}
	s.customers[key] = *c
	return nil
}

// CreateProduct satisfies ProductStore via the Products view below.

// Products exposes the store's ProductStore face. Both faces share one lock
// so seeding customers and products from one fixture stays race-free.
func (s *InMemoryStore) Products() ProductStore { return (*inMemoryProducts)(s) }

type inMemoryProducts InMemoryStore

func (s *inMemoryProducts) Create(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := productKey{tenant: p.TenantID, product: p.ID}
	if _, exists := s.products[key]; exists {
		return sentinel.ErrConflict
	}
	s.products[key] = cloneProduct(p)
	return nil
}

func (s *inMemoryProducts) FindByID(ctx context.Context, tenantID id.TenantID, productID id.ProductID) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productKey{tenant: tenantID, product: productID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := cloneProduct(&p)
	return &copied, nil
}

func cloneProduct(p *Product) Product {
	copied := *p
	copied.Tiers = append([]PricingTier(nil), p.Tiers...)
	copied.Factors = append([]PricingFactor(nil), p.Factors...)
	copied.Features = append([]ProductFeature(nil), p.Features...)
	return copied
}
