package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"assurly/internal/audit"
	"assurly/internal/catalog"
	"assurly/internal/platform/metrics"
	"assurly/internal/pricing"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/sentinel"
	stringsutil "assurly/pkg/platform/strings"
	"assurly/pkg/platform/tx"
	"assurly/pkg/requestcontext"
)

// NumberPrefix is the document prefix for quote numbers ("devis").
const NumberPrefix = "DEV"

// validityDays is the quote validity window.
const validityDays = 30

// NumberSource issues document numbers.
type NumberSource interface {
	Next(ctx context.Context, tenantID id.TenantID, prefix string, scopeDate time.Time) (string, error)
}

// Pricer computes premium breakdowns.
type Pricer interface {
	Price(ctx context.Context, product *catalog.Product, coverage decimal.Decimal,
		customer *catalog.Customer, frequency id.PremiumFrequency, featureIDs []string) (pricing.Result, error)
}

// ConvertedQuote carries the fields an order inherits from a quote.
type ConvertedQuote struct {
	QuoteID             id.QuoteID
	CustomerID          id.CustomerID
	ProductID           id.ProductID
	CoverageAmount      decimal.Decimal
	PremiumAmount       decimal.Decimal
	PremiumFrequency    id.PremiumFrequency
	PaymentMethod       string
	MedicalExamRequired bool
}

// OrderCreator is implemented by the order workflow. The quote service
// creates the order inside the same transaction that marks the quote
// converted.
type OrderCreator interface {
	CreateFromQuote(ctx context.Context, tenantID id.TenantID, in ConvertedQuote) (id.OrderID, string, error)
}

// EligibilityRefusal is a business outcome, not an error: the customer does
// not qualify for the product and no quote was persisted. Callers branch on
// it without exception handling.
type EligibilityRefusal struct {
	Reasons []string
}

// Reason renders a single displayable refusal string.
func (r *EligibilityRefusal) Reason() string {
	return strings.Join(r.Reasons, "; ")
}

// GenerateOutcome is either a persisted quote or a refusal, never both.
type GenerateOutcome struct {
	Quote   *Quote
	Refusal *EligibilityRefusal
}

// ConversionResult reports the order created from a quote.
type ConversionResult struct {
	Quote       *Quote
	OrderID     id.OrderID
	OrderNumber string
}

// Service owns the quote lifecycle. All quote_status changes go through it.
type Service struct {
	quotes    Store
	customers catalog.CustomerStore
	products  catalog.ProductStore
	pricer    Pricer
	numbers   NumberSource
	orders    OrderCreator
	runner    tx.Runner
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

func WithOrderCreator(oc OrderCreator) Option {
	return func(s *Service) { s.orders = oc }
}

func NewService(quotes Store, customers catalog.CustomerStore, products catalog.ProductStore,
	pricer Pricer, numbers NumberSource, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		quotes:    quotes,
		customers: customers,
		products:  products,
		pricer:    pricer,
		numbers:   numbers,
		runner:    runner,
		logger:    slog.Default(),
		publisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateInput is a validated quote request.
type GenerateInput struct {
	CustomerID         id.CustomerID
	ProductID          id.ProductID
	CoverageAmount     decimal.Decimal
	PremiumFrequency   id.PremiumFrequency
	SelectedFeatureIDs []string
}

// Generate runs eligibility, prices the request, and persists an active
// quote valid for 30 days. An ineligible customer yields a refusal outcome;
// nothing is persisted.
func (s *Service) Generate(ctx context.Context, tenantID id.TenantID, in GenerateInput) (*GenerateOutcome, error) {
	now := requestcontext.Now(ctx)

	customer, err := s.loadCustomer(ctx, tenantID, in.CustomerID)
	if err != nil {
		return nil, err
	}
	product, err := s.loadProduct(ctx, tenantID, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product.Status != catalog.ProductActive {
		return nil, dErrors.Newf(dErrors.CodeValidation, "product %s is retired", product.Name)
	}
	if in.CoverageAmount.LessThan(product.MinCoverage) ||
		(!product.MaxCoverage.IsZero() && in.CoverageAmount.GreaterThan(product.MaxCoverage)) {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"coverage must be between %s and %s", product.MinCoverage, product.MaxCoverage)
	}

	if refusal := checkEligibility(customer, product, now); refusal != nil {
		if s.metrics != nil {
			s.metrics.QuotesRefused.Inc()
		}
		s.logger.InfoContext(ctx, "quote refused",
			"tenant_id", tenantID.String(),
			"customer_id", in.CustomerID.String(),
			"reason", refusal.Reason())
		return &GenerateOutcome{Refusal: refusal}, nil
	}

	conditions, medicalExam := underwritingConditions(customer, product)

	priced, err := s.pricer.Price(ctx, product, in.CoverageAmount, customer, in.PremiumFrequency, in.SelectedFeatureIDs)
	if err != nil {
		return nil, err
	}

	var q *Quote
	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		number, err := s.numbers.Next(txCtx, tenantID, NumberPrefix, now)
		if err != nil {
			return err
		}
		q = &Quote{
			ID:                  id.NewQuoteID(),
			TenantID:            tenantID,
			QuoteNumber:         number,
			CustomerID:          in.CustomerID,
			ProductID:           in.ProductID,
			CoverageAmount:      in.CoverageAmount,
			PremiumFrequency:    in.PremiumFrequency,
			BasePremium:         priced.BasePremium,
			AdjustedPremium:     priced.AdjustedPremium,
			AdditionalPremium:   priced.AdditionalPremium,
			FinalPremium:        priced.FinalPremium,
			AnnualPremium:       priced.AnnualPremium,
			Currency:            priced.Currency,
			AppliedFactors:      priced.AppliedFactors,
			SelectedFeatureIDs:  in.SelectedFeatureIDs,
			QuoteDate:           now,
			ExpiryDate:          now.AddDate(0, 0, validityDays),
			Eligible:            true,
			Conditions:          conditions,
			MedicalExamRequired: medicalExam,
			Status:              StatusActive,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.quotes.Create(txCtx, q); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist quote")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.QuotesGenerated.Inc()
	}
	s.emit(ctx, audit.Event{
		TenantID:       tenantID.String(),
		Entity:         "quote",
		EntityID:       q.ID.String(),
		DocumentNumber: q.QuoteNumber,
		Action:         "quote.generated",
		NewState:       string(StatusActive),
	})
	return &GenerateOutcome{Quote: q}, nil
}

// Get fetches a quote within the tenant's scope.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, quoteID id.QuoteID) (*Quote, error) {
	q, err := s.quotes.FindByID(ctx, tenantID, quoteID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "quote not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load quote")
	}
	return q, nil
}

// ExpireStale transitions every active quote past its expiry date to
// expired. Safe to run repeatedly; a second run finds nothing to do.
func (s *Service) ExpireStale(ctx context.Context, tenantID id.TenantID) (int64, error) {
	today := requestcontext.Now(ctx)
	expired, err := s.quotes.ExpireStale(ctx, tenantID, today)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire quotes")
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired stale quotes",
			"tenant_id", tenantID.String(), "count", expired)
	}
	return expired, nil
}

// Cancel administratively cancels an active quote.
func (s *Service) Cancel(ctx context.Context, tenantID id.TenantID, quoteID id.QuoteID, reason string) (*Quote, error) {
	now := requestcontext.Now(ctx)
	q, err := s.quotes.Execute(ctx, tenantID, quoteID,
		func(current *Quote) error {
			if !current.Status.CanTransitionTo(StatusCancelled) {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"cannot cancel quote in state %s", current.Status)
			}
			return nil
		},
		func(current *Quote) {
			current.Status = StatusCancelled
			current.UpdatedAt = now
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "quote not found")
		}
		return nil, err
	}
	s.emit(ctx, audit.Event{
		TenantID:       tenantID.String(),
		Entity:         "quote",
		EntityID:       q.ID.String(),
		DocumentNumber: q.QuoteNumber,
		Action:         "quote.cancelled",
		PreviousState:  string(StatusActive),
		NewState:       string(StatusCancelled),
		Actor:          requestcontext.ActorID(ctx),
		Reason:         reason,
	})
	return q, nil
}

// ConvertToOrder turns an active, eligible, unexpired quote into an order.
// The quote flips to converted and the order is created in one transaction;
// the status check makes a second conversion impossible.
func (s *Service) ConvertToOrder(ctx context.Context, tenantID id.TenantID, quoteID id.QuoteID, paymentMethod string) (*ConversionResult, error) {
	if s.orders == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "order workflow not wired")
	}
	now := requestcontext.Now(ctx)

	var result ConversionResult
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		q, err := s.quotes.Execute(txCtx, tenantID, quoteID,
			func(current *Quote) error {
				if err := current.Convertible(now); err != nil {
					return dErrors.Wrap(err, dErrors.CodeInvalidTransition, "quote not convertible")
				}
				return nil
			},
			func(current *Quote) {
				current.Status = StatusConverted
				current.UpdatedAt = now
			})
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "quote not found")
			}
			return err
		}

		orderID, orderNumber, err := s.orders.CreateFromQuote(txCtx, tenantID, ConvertedQuote{
			QuoteID:             q.ID,
			CustomerID:          q.CustomerID,
			ProductID:           q.ProductID,
			CoverageAmount:      q.CoverageAmount,
			PremiumAmount:       q.FinalPremium,
			PremiumFrequency:    q.PremiumFrequency,
			PaymentMethod:       paymentMethod,
			MedicalExamRequired: q.MedicalExamRequired,
		})
		if err != nil {
			return err
		}
		result = ConversionResult{Quote: q, OrderID: orderID, OrderNumber: orderNumber}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.Event{
		TenantID:       tenantID.String(),
		Entity:         "quote",
		EntityID:       result.Quote.ID.String(),
		DocumentNumber: result.Quote.QuoteNumber,
		Action:         "quote.converted",
		PreviousState:  string(StatusActive),
		NewState:       string(StatusConverted),
		Actor:          requestcontext.ActorID(ctx),
		Reason:         fmt.Sprintf("order %s", result.OrderNumber),
	})
	return &result, nil
}

// checkEligibility returns a refusal when the customer cannot hold the
// product at all. High risk on life/health is not a refusal; it adds
// conditions (see underwritingConditions).
func checkEligibility(customer *catalog.Customer, product *catalog.Product, now time.Time) *EligibilityRefusal {
	var reasons []string
	age := customer.AgeAt(now)
	if age < product.MinAge || age > product.MaxAge {
		reasons = append(reasons, fmt.Sprintf(
			"customer age %d is outside the product's %d-%d range", age, product.MinAge, product.MaxAge))
	}
	if customer.KYCStatus != catalog.KYCVerified {
		reasons = append(reasons, fmt.Sprintf(
			"customer identity is not verified (kyc status %s)", customer.KYCStatus))
	}
	if len(reasons) == 0 {
		return nil
	}
	return &EligibilityRefusal{Reasons: reasons}
}

func underwritingConditions(customer *catalog.Customer, product *catalog.Product) ([]string, bool) {
	var conditions []string
	if customer.RiskProfile == catalog.RiskHigh &&
		(product.ProductType == catalog.ProductLife || product.ProductType == catalog.ProductHealth) {
		conditions = append(conditions, "medical exam required")
	}
	if product.RequiresMedicalExam {
		conditions = append(conditions, "medical exam required")
	}
	conditions = stringsutil.DedupeAndTrim(conditions)
	return conditions, len(conditions) > 0
}

func (s *Service) loadCustomer(ctx context.Context, tenantID id.TenantID, customerID id.CustomerID) (*catalog.Customer, error) {
	c, err := s.customers.FindByID(ctx, tenantID, customerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "customer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load customer")
	}
	return c, nil
}

func (s *Service) loadProduct(ctx context.Context, tenantID id.TenantID, productID id.ProductID) (*catalog.Product, error) {
	p, err := s.products.FindByID(ctx, tenantID, productID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "product not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load product")
	}
	return p, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Actor == "" {
		event.Actor = requestcontext.ActorID(ctx)
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
