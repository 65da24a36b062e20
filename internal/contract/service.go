package contract

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"assurly/internal/audit"
	"assurly/internal/catalog"
	"assurly/internal/order"
	"assurly/internal/platform/metrics"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/sentinel"
	stringsutil "assurly/pkg/platform/strings"
	"assurly/pkg/requestcontext"
)

// NumberPrefix is the document prefix for policy numbers.
const NumberPrefix = "POL"

// defaultTermYears applies when the product does not specify a policy term.
const defaultTermYears = 1

// renewalWindowDays is how far ahead of the renewal date a contract becomes
// renewal-eligible.
const renewalWindowDays = 60

// medicalExamAge is the customer age from which renewal requires an exam.
const medicalExamAge = 65

// cashValueAccrualRatio is the share of each settled premium that feeds the
// cash value of a life policy.
var cashValueAccrualRatio = decimal.NewFromFloat(0.30)

// surrenderValueRatio is the cash value fraction paid out on surrender.
var surrenderValueRatio = decimal.NewFromFloat(0.75)

// loanValueRatio caps policy loans at this fraction of the cash value.
var loanValueRatio = decimal.NewFromFloat(0.90)

// NumberSource issues document numbers.
type NumberSource interface {
	Next(ctx context.Context, tenantID id.TenantID, prefix string, scopeDate time.Time) (string, error)
}

// Service owns the contract lifecycle. All contract_status changes go
// through it and append exactly one history row.
type Service struct {
	contracts Store
	customers catalog.CustomerStore
	products  catalog.ProductStore
	numbers   NumberSource
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher audit.Publisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(contracts Store, customers catalog.CustomerStore, products catalog.ProductStore,
	numbers NumberSource, opts ...Option) *Service {
	s := &Service{
		contracts: contracts,
		customers: customers,
		products:  products,
		numbers:   numbers,
		logger:    slog.Default(),
		publisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueFromOrder issues a policy from an approved order. Runs inside the
// order approval's transaction; the contract inherits the order's coverage,
// premium and frequency.
func (s *Service) IssueFromOrder(ctx context.Context, tenantID id.TenantID, o *order.Order) (id.ContractID, string, error) {
	if o.Status != order.StatusApproved {
		return id.ContractID{}, "", dErrors.Newf(dErrors.CodeInvalidTransition,
			"order %s is %s, only approved orders issue contracts", o.OrderNumber, o.Status)
	}

	product, err := s.products.FindByID(ctx, tenantID, o.ProductID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.ContractID{}, "", dErrors.New(dErrors.CodeNotFound, "product not found")
		}
		return id.ContractID{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load product")
	}
	termYears := product.PolicyTermYears
	if termYears <= 0 {
		termYears = defaultTermYears
	}

	now := requestcontext.Now(ctx)
	effective := now
	if o.EffectiveDate != nil {
		effective = *o.EffectiveDate
	}
	expiry := effective.AddDate(termYears, 0, 0)

	number, err := s.numbers.Next(ctx, tenantID, NumberPrefix, now)
	if err != nil {
		return id.ContractID{}, "", err
	}

	c := &Contract{
		ID:                 id.NewContractID(),
		TenantID:           tenantID,
		PolicyNumber:       number,
		OrderID:            o.ID,
		CustomerID:         o.CustomerID,
		ProductID:          o.ProductID,
		CoverageAmount:     o.CoverageAmount,
		PremiumAmount:      o.PremiumAmount,
		PremiumFrequency:   o.PremiumFrequency,
		Currency:           product.Currency,
		IssueDate:          now,
		EffectiveDate:      effective,
		ExpiryDate:         expiry,
		NextRenewalDate:    expiry.AddDate(0, 0, -30),
		NextPremiumDueDate: effective.AddDate(0, 0, o.PremiumFrequency.IntervalDays()),
		Status:             StatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if product.ProductType == catalog.ProductLife {
		cash, surrender, loan := decimal.Zero, decimal.Zero, decimal.Zero
		c.CashValue = &cash
		c.SurrenderValue = &surrender
		c.LoanValue = &loan
	}
	c.appendHistory("", StatusActive, requestcontext.ActorID(ctx), "issued from order "+o.OrderNumber, now)
	if err := s.contracts.Create(ctx, c); err != nil {
		return id.ContractID{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist contract")
	}

	if s.metrics != nil {
		s.metrics.ContractsIssued.Inc()
	}
	s.emit(ctx, c, "contract.issued", "", StatusActive, "order "+o.OrderNumber)
	return c.ID, c.PolicyNumber, nil
}

// Get fetches a contract within the tenant's scope.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*Contract, error) {
	c, err := s.contracts.FindByID(ctx, tenantID, contractID)
	if err != nil {
		return nil, translateLoad(err)
	}
	return c, nil
}

// GetByPolicyNumber fetches a contract by its policy number.
func (s *Service) GetByPolicyNumber(ctx context.Context, tenantID id.TenantID, policyNumber string) (*Contract, error) {
	c, err := s.contracts.FindByPolicyNumber(ctx, tenantID, policyNumber)
	if err != nil {
		return nil, translateLoad(err)
	}
	return c, nil
}

// RenewalStatus reports whether the policy sits in its renewal window and
// which documents renewal requires.
func (s *Service) RenewalStatus(ctx context.Context, tenantID id.TenantID, policyNumber string) (*RenewalStatus, error) {
	c, err := s.GetByPolicyNumber(ctx, tenantID, policyNumber)
	if err != nil {
		return nil, err
	}
	customer, err := s.customers.FindByID(ctx, tenantID, c.CustomerID)
	if err != nil {
		return nil, translateLoad(err)
	}

	today := requestcontext.Now(ctx)
	eligible := c.Status == StatusActive &&
		!c.NextRenewalDate.After(today.AddDate(0, 0, renewalWindowDays))

	docs := []string{"renewal form"}
	if customer.AgeAt(today) >= medicalExamAge {
		docs = append(docs, "medical exam")
	}
	docs = stringsutil.DedupeAndTrim(docs)
	return &RenewalStatus{
		PolicyNumber:      c.PolicyNumber,
		Eligible:          eligible,
		NextRenewalDate:   c.NextRenewalDate,
		ExpiryDate:        c.ExpiryDate,
		RequiredDocuments: docs,
	}, nil
}

// SetStatus moves the contract along an allowed edge. suspended → active is
// the reinstatement path; terminal states never leave.
func (s *Service) SetStatus(ctx context.Context, tenantID id.TenantID, contractID id.ContractID,
	next Status, reason string) (*Contract, error) {
	if _, err := ParseStatus(string(next)); err != nil {
		return nil, err
	}
	expected, err := s.Get(ctx, tenantID, contractID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	c, err := s.contracts.Execute(ctx, tenantID, contractID,
		func(current *Contract) error {
			if current.Status != expected.Status {
				return dErrors.Newf(dErrors.CodeStaleState,
					"contract %s moved to %s concurrently", current.PolicyNumber, current.Status)
			}
			if !current.Status.CanTransitionTo(next) {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"contract cannot move from %s to %s", current.Status, next)
			}
			return nil
		},
		func(current *Contract) {
			previous := current.Status
			current.Status = next
			current.UpdatedAt = now
			current.appendHistory(previous, next, actor, reason, now)
		})
	if err != nil {
		return nil, translateLoad(err)
	}
	s.emit(ctx, c, "contract.status_changed", expected.Status, next, reason)
	return c, nil
}

// BeneficiaryInput describes a beneficiary to append.
type BeneficiaryInput struct {
	Name         string
	Relationship string
	Type         BeneficiaryType
	Percentage   decimal.Decimal
}

// AddBeneficiary appends a beneficiary. Active primary percentages are
// re-validated against the stored set inside the same critical section, so
// concurrent additions cannot push the sum past 100.
func (s *Service) AddBeneficiary(ctx context.Context, tenantID id.TenantID, contractID id.ContractID,
	in BeneficiaryInput) (*Contract, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "beneficiary name is required")
	}
	if in.Type != BeneficiaryPrimary && in.Type != BeneficiaryContingent {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown beneficiary type %q", in.Type)
	}
	if in.Percentage.LessThanOrEqual(decimal.Zero) || in.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return nil, dErrors.New(dErrors.CodeValidation, "beneficiary percentage must be in (0, 100]")
	}

	now := requestcontext.Now(ctx)
	candidate := Beneficiary{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Relationship: in.Relationship,
		Type:         in.Type,
		Percentage:   in.Percentage,
		Status:       BeneficiaryActive,
		AddedAt:      now,
	}

	c, err := s.contracts.Execute(ctx, tenantID, contractID,
		func(current *Contract) error {
			if current.Status.Terminal() {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"contract %s is %s and can no longer change", current.PolicyNumber, current.Status)
			}
			if total := current.PrimaryPercentageWith(candidate); total.GreaterThan(decimal.NewFromInt(100)) {
				return dErrors.Newf(dErrors.CodeInvariantViolation,
					"primary beneficiary percentages would sum to %s", total)
			}
			return nil
		},
		func(current *Contract) {
			current.Beneficiaries = append(current.Beneficiaries, candidate)
			current.UpdatedAt = now
		})
	if err != nil {
		return nil, translateLoad(err)
	}
	return c, nil
}

// RecordPremiumPayment advances the paid/due pointers after a settlement and
// grows the cash value of life policies. Called by the payment scheduler
// inside the settlement transaction.
func (s *Service) RecordPremiumPayment(ctx context.Context, tenantID id.TenantID, contractID id.ContractID,
	paidDate time.Time) error {
	now := requestcontext.Now(ctx)
	_, err := s.contracts.Execute(ctx, tenantID, contractID,
		func(current *Contract) error { return nil },
		func(current *Contract) {
			d := paidDate
			current.LastPremiumPaidDate = &d
			if current.CashValue != nil {
				cash := current.CashValue.Add(id.Round2(current.PremiumAmount.Mul(cashValueAccrualRatio)))
				surrender := id.Round2(cash.Mul(surrenderValueRatio))
				loan := id.Round2(cash.Mul(loanValueRatio))
				current.CashValue = &cash
				current.SurrenderValue = &surrender
				current.LoanValue = &loan
			}
			current.UpdatedAt = now
		})
	if err != nil {
		return translateLoad(err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, c *Contract, action string, previous, next Status, reason string) {
	event := audit.Event{
		Timestamp:      requestcontext.Now(ctx),
		TenantID:       c.TenantID.String(),
		Entity:         "contract",
		EntityID:       c.ID.String(),
		DocumentNumber: c.PolicyNumber,
		Action:         action,
		PreviousState:  string(previous),
		NewState:       string(next),
		Actor:          requestcontext.ActorID(ctx),
		Reason:         reason,
		RequestID:      requestcontext.RequestID(ctx),
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

func translateLoad(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "contract not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "contract store failure")
}
