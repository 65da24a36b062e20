package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/sentinel"
	"assurly/pkg/requestcontext"
)

// Service manages the customer and product catalog the lifecycle engine
// references. Customer mutation is restricted once contracts reference the
// customer; that gate lives in ContractLifecycle, which owns the reference.
type Service struct {
	customers CustomerStore
	products  ProductStore
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(customers CustomerStore, products ProductStore, opts ...Option) *Service {
	s := &Service{customers: customers, products: products, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CustomerInput carries validated request fields for customer creation.
type CustomerInput struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      string
	Occupation  string
	RiskProfile string
	Email       string
	Phone       string
	Address     string
}

// CreateCustomer registers a customer with KYC pending.
func (s *Service) CreateCustomer(ctx context.Context, tenantID id.TenantID, in CustomerInput) (*Customer, error) {
	now := requestcontext.Now(ctx)
	c, err := NewCustomer(tenantID, in.FirstName, in.LastName, in.DateOfBirth, now)
	if err != nil {
		return nil, err
	}
	if in.RiskProfile != "" {
		profile, err := ParseRiskProfile(in.RiskProfile)
		if err != nil {
			return nil, err
		}
		c.RiskProfile = profile
	}
	c.Gender = in.Gender
	c.Occupation = in.Occupation
	c.Email = in.Email
	c.Phone = in.Phone
	c.Address = in.Address

	if err := s.customers.Create(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "customer already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create customer")
	}
	s.logger.InfoContext(ctx, "customer created",
		"tenant_id", tenantID.String(), "customer_id", c.ID.String())
	return c, nil
}

// GetCustomer fetches a customer within the tenant's scope.
func (s *Service) GetCustomer(ctx context.Context, tenantID id.TenantID, customerID id.CustomerID) (*Customer, error) {
	c, err := s.customers.FindByID(ctx, tenantID, customerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "customer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load customer")
	}
	return c, nil
}

// SetKYCStatus records the outcome of identity verification.
func (s *Service) SetKYCStatus(ctx context.Context, tenantID id.TenantID, customerID id.CustomerID, status string) (*Customer, error) {
	kyc, err := ParseKYCStatus(status)
	if err != nil {
		return nil, err
	}
	c, err := s.GetCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	c.KYCStatus = kyc
	c.UpdatedAt = requestcontext.Now(ctx)
	if err := s.customers.Update(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update kyc status")
	}
	return c, nil
}

// UpdateContact changes the customer's contact fields. Contact fields stay
// mutable for the life of the customer, unlike identity fields.
func (s *Service) UpdateContact(ctx context.Context, tenantID id.TenantID, customerID id.CustomerID, email, phone, address string) (*Customer, error) {
	c, err := s.GetCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	c.Email = email
	c.Phone = phone
	c.Address = address
	c.UpdatedAt = requestcontext.Now(ctx)
	if err := s.customers.Update(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update contact")
	}
	return c, nil
}

// CreateProduct registers a product with its pricing configuration.
func (s *Service) CreateProduct(ctx context.Context, p *Product) (*Product, error) {
	if p == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "product is required")
	}
	if p.MinCoverage.GreaterThan(p.MaxCoverage) && !p.MaxCoverage.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "min coverage exceeds max coverage")
	}
	if p.MinAge > p.MaxAge {
		return nil, dErrors.New(dErrors.CodeValidation, "min age exceeds max age")
	}
	if err := s.products.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "product already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create product")
	}
	return p, nil
}

// GetProduct fetches a product with its tiers, factors and features.
func (s *Service) GetProduct(ctx context.Context, tenantID id.TenantID, productID id.ProductID) (*Product, error) {
	p, err := s.products.FindByID(ctx, tenantID, productID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "product not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load product")
	}
	return p, nil
}
