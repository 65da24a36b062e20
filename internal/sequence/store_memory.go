package sequence

import (
	"context"
	"sync"
	"time"

	id "assurly/pkg/domain"
)

type scopeKey struct {
	tenant id.TenantID
	prefix string
	day    string
}

// InMemoryStore keeps counters behind a mutex. Used in tests and when no
// Postgres/Redis backend is configured.
type InMemoryStore struct {
	mu       sync.Mutex
	counters map[scopeKey]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{counters: make(map[scopeKey]int64)}
}

func (s *InMemoryStore) Increment(_ context.Context, tenantID id.TenantID, prefix string, day time.Time) (int64, error) {
	key := scopeKey{tenant: tenantID, prefix: prefix, day: day.Format("20060102")}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}
