package claims

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
)

type key struct {
	tenant id.TenantID
	claim  id.ClaimID
}

// InMemoryStore holds claims behind one mutex.
type InMemoryStore struct {
	mu     sync.Mutex
	claims map[key]Claim
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{claims: make(map[key]Claim)}
}

func (s *InMemoryStore) Create(_ context.Context, c *Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant: c.TenantID, claim: c.ID}
	if _, exists := s.claims[k]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.claims {
		if existing.TenantID == c.TenantID && existing.ClaimNumber == c.ClaimNumber {
			return sentinel.ErrConflict
		}
	}
	s.claims[k] = cloneClaim(c)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, claimID id.ClaimID) (*Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[key{tenant: tenantID, claim: claimID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := cloneClaim(&c)
	return &copied, nil
}

func (s *InMemoryStore) Execute(_ context.Context, tenantID id.TenantID, claimID id.ClaimID,
	validate func(*Claim) error, mutate func(*Claim)) (*Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant: tenantID, claim: claimID}
	c, ok := s.claims[k]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	mutate(&c)
	s.claims[k] = cloneClaim(&c)
	copied := cloneClaim(&c)
	return &copied, nil
}

func (s *InMemoryStore) CountsByStatus(_ context.Context, tenantID id.TenantID) (map[Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[Status]int64)
	for k, c := range s.claims {
		if k.tenant == tenantID {
			counts[c.Status]++
		}
	}
	return counts, nil
}

func (s *InMemoryStore) Amounts(_ context.Context, tenantID id.TenantID) (Amounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amounts := Amounts{TotalClaimed: decimal.Zero, TotalApproved: decimal.Zero}
	for k, c := range s.claims {
		if k.tenant != tenantID {
			continue
		}
		amounts.TotalClaimed = amounts.TotalClaimed.Add(c.ClaimedAmount)
		if c.ApprovalAmount != nil {
			amounts.TotalApproved = amounts.TotalApproved.Add(*c.ApprovalAmount)
		}
	}
	return amounts, nil
}

func (s *InMemoryStore) CountReportedSince(_ context.Context, tenantID id.TenantID, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, c := range s.claims {
		if k.tenant == tenantID && !c.ReportDate.Before(since) {
			count++
		}
	}
	return count, nil
}

func cloneClaim(c *Claim) Claim {
	copied := *c
	if c.ApprovalAmount != nil {
		d := *c.ApprovalAmount
		copied.ApprovalAmount = &d
	}
	if c.PaymentDate != nil {
		d := *c.PaymentDate
		copied.PaymentDate = &d
	}
	return copied
}
