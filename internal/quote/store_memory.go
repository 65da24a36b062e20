package quote

import (
	"context"
	"sync"
	"time"

	"assurly/internal/pricing"
	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
)

type key struct {
	tenant id.TenantID
	quote  id.QuoteID
}

// InMemoryStore holds quotes behind one mutex. Execute runs its callbacks
// under the lock, which gives the same atomic validate-then-mutate
// semantics the postgres store gets from row locks.
type InMemoryStore struct {
	mu     sync.Mutex
	quotes map[key]Quote
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{quotes: make(map[key]Quote)}
}

func (s *InMemoryStore) Create(_ context.Context, q *Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant: q.TenantID, quote: q.ID}
	if _, exists := s.quotes[k]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.quotes {
		if existing.TenantID == q.TenantID && existing.QuoteNumber == q.QuoteNumber {
			return sentinel.ErrConflict
		}
	}
	s.quotes[k] = cloneQuote(q)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, quoteID id.QuoteID) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[key{tenant: tenantID, quote: quoteID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := cloneQuote(&q)
	return &copied, nil
}

func (s *InMemoryStore) Execute(_ context.Context, tenantID id.TenantID, quoteID id.QuoteID,
	validate func(*Quote) error, mutate func(*Quote)) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant: tenantID, quote: quoteID}
	q, ok := s.quotes[k]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(&q); err != nil {
		return nil, err
	}
	mutate(&q)
	s.quotes[k] = cloneQuote(&q)
	copied := cloneQuote(&q)
	return &copied, nil
}

func (s *InMemoryStore) ExpireStale(_ context.Context, tenantID id.TenantID, today time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired int64
	for k, q := range s.quotes {
		if k.tenant != tenantID || q.Status != StatusActive {
			continue
		}
		if q.ExpiredAt(today) {
			q.Status = StatusExpired
			q.UpdatedAt = today
			s.quotes[k] = q
			expired++
		}
	}
	return expired, nil
}

func cloneQuote(q *Quote) Quote {
	copied := *q
	copied.AppliedFactors = append([]pricing.AppliedFactor(nil), q.AppliedFactors...)
	copied.SelectedFeatureIDs = append([]string(nil), q.SelectedFeatureIDs...)
	copied.Conditions = append([]string(nil), q.Conditions...)
	return copied
}
