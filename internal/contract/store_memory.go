package contract

import (
	"context"
	"sync"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
)

type key struct {
	tenant   id.TenantID
	contract id.ContractID
}

// InMemoryStore holds contracts behind one mutex; Execute's callbacks run
// under the lock.
type InMemoryStore struct {
	mu        sync.Mutex
	contracts map[key]Contract
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{contracts: make(map[key]Contract)}
}

func (s *InMemoryStore) Create(_ context.Context, c *Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant: c.TenantID, contract: c.ID}
	if _, exists := s.contracts[k]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.contracts {
		if existing.TenantID == c.TenantID && existing.PolicyNumber == c.PolicyNumber {
			return sentinel.ErrConflict
		}
	}
	s.contracts[k] = cloneContract(c)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, contractID id.ContractID) (*Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[key{tenant: tenantID, contract: contractID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := cloneContract(&c)
	return &copied, nil
}

func (s *InMemoryStore) FindByPolicyNumber(_ context.Context, tenantID id.TenantID, policyNumber string) (*Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.contracts {
		if k.tenant == tenantID && c.PolicyNumber == policyNumber {
			copied := cloneContract(&c)
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Execute(_ context.Context, tenantID id.TenantID, contractID id.ContractID,
	validate func(*Contract) error, mutate func(*Contract)) (*Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{tenant: tenantID, contract: contractID}
	c, ok := s.contracts[k]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	mutate(&c)
	s.contracts[k] = cloneContract(&c)
	copied := cloneContract(&c)
	return &copied, nil
}

func cloneContract(c *Contract) Contract {
	copied := *c
	copied.Beneficiaries = append([]Beneficiary(nil), c.Beneficiaries...)
	copied.History = append([]StatusChange(nil), c.History...)
	if c.LastPremiumPaidDate != nil {
		d := *c.LastPremiumPaidDate
		copied.LastPremiumPaidDate = &d
	}
	if c.CashValue != nil {
		v := *c.CashValue
		copied.CashValue = &v
	}
	if c.SurrenderValue != nil {
		v := *c.SurrenderValue
		copied.SurrenderValue = &v
	}
	if c.LoanValue != nil {
		v := *c.LoanValue
		copied.LoanValue = &v
	}
	return copied
}
