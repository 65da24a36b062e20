package order

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"assurly/internal/audit"
	"assurly/internal/platform/metrics"
	"assurly/internal/quote"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/sentinel"
	"assurly/pkg/platform/tx"
	"assurly/pkg/requestcontext"
)

// NumberPrefix is the document prefix for order numbers.
const NumberPrefix = "ORD"

// NumberSource issues document numbers.
type NumberSource interface {
	Next(ctx context.Context, tenantID id.TenantID, prefix string, scopeDate time.Time) (string, error)
}

// ContractIssuer is implemented by the contract lifecycle. Approval and
// issuance share one transaction so an approved order always has a contract.
type ContractIssuer interface {
	IssueFromOrder(ctx context.Context, tenantID id.TenantID, o *Order) (id.ContractID, string, error)
}

// IssuedContract pairs an approved order with the contract it produced.
type IssuedContract struct {
	Order        *Order
	ContractID   id.ContractID
	PolicyNumber string
}

// Triaged is an order with the reasons it needs a reviewer's attention.
type Triaged struct {
	Order   *Order
	Reasons []string
}

// Service owns the order workflow. All order_status changes go through it
// and append exactly one history row.
type Service struct {
	orders    Store
	numbers   NumberSource
	issuer    ContractIssuer
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

func WithContractIssuer(ci ContractIssuer) Option {
	return func(s *Service) { s.issuer = ci }
}

func NewService(orders Store, numbers NumberSource, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		orders:    orders,
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

// CreateInput describes a direct order, entered without a quote.
type CreateInput struct {
	CustomerID       id.CustomerID
	ProductID        id.ProductID
	CoverageAmount   decimal.Decimal
	PremiumAmount    decimal.Decimal
	PremiumFrequency id.PremiumFrequency
	PaymentMethod    string
	EffectiveDate    *time.Time
}

// Create opens a draft order.
func (s *Service) Create(ctx context.Context, tenantID id.TenantID, in CreateInput) (*Order, error) {
	if in.CoverageAmount.LessThanOrEqual(decimal.Zero) {
		return nil, dErrors.New(dErrors.CodeValidation, "coverage amount must be positive")
	}
	if _, err := id.ParsePremiumFrequency(string(in.PremiumFrequency)); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var o *Order
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		number, err := s.numbers.Next(txCtx, tenantID, NumberPrefix, now)
		if err != nil {
			return err
		}
		o = &Order{
			ID:               id.NewOrderID(),
			TenantID:         tenantID,
			OrderNumber:      number,
			CustomerID:       in.CustomerID,
			ProductID:        in.ProductID,
			CoverageAmount:   in.CoverageAmount,
			PremiumAmount:    in.PremiumAmount,
			PremiumFrequency: in.PremiumFrequency,
			PaymentMethod:    in.PaymentMethod,
			ApplicationDate:  now,
			EffectiveDate:    in.EffectiveDate,
			Status:           StatusDraft,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		o.appendHistory("", StatusDraft, requestcontext.ActorID(txCtx), "order created", now)
		if err := s.orders.Create(txCtx, o); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observeTransition(StatusDraft)
	s.emit(ctx, o, "order.created", "", StatusDraft, "")
	return o, nil
}

// CreateFromQuote opens an order from a converted quote, already submitted
// since the payment method arrived with the conversion. Runs inside the
// quote conversion's transaction.
func (s *Service) CreateFromQuote(ctx context.Context, tenantID id.TenantID, in quote.ConvertedQuote) (id.OrderID, string, error) {
	now := requestcontext.Now(ctx)
	number, err := s.numbers.Next(ctx, tenantID, NumberPrefix, now)
	if err != nil {
		return id.OrderID{}, "", err
	}
	o := &Order{
		ID:                  id.NewOrderID(),
		TenantID:            tenantID,
		OrderNumber:         number,
		QuoteID:             in.QuoteID,
		CustomerID:          in.CustomerID,
		ProductID:           in.ProductID,
		CoverageAmount:      in.CoverageAmount,
		PremiumAmount:       in.PremiumAmount,
		PremiumFrequency:    in.PremiumFrequency,
		PaymentMethod:       in.PaymentMethod,
		ApplicationDate:     now,
		MedicalExamRequired: in.MedicalExamRequired,
		Status:              StatusSubmitted,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	o.appendHistory("", StatusSubmitted, requestcontext.ActorID(ctx), "created from quote conversion", now)
	if err := s.orders.Create(ctx, o); err != nil {
		return id.OrderID{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist order")
	}
	s.observeTransition(StatusSubmitted)
	s.emit(ctx, o, "order.created", "", StatusSubmitted, "from quote "+in.QuoteID.String())
	return o.ID, o.OrderNumber, nil
}

// Get fetches an order within the tenant's scope.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, orderID id.OrderID) (*Order, error) {
	o, err := s.orders.FindByID(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "order not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load order")
	}
	return o, nil
}

// UpdateStatus moves the order along an allowed edge and appends one history
// row. The pre-read status is re-checked inside the store's critical
// section: a concurrent transition that got there first surfaces as a stale
// state conflict, not a silent double-write.
func (s *Service) UpdateStatus(ctx context.Context, tenantID id.TenantID, orderID id.OrderID,
	next Status, reason string) (*Order, error) {
	if _, err := ParseStatus(string(next)); err != nil {
		return nil, err
	}
	if next == StatusRejected && strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection requires a reason")
	}

	expected, err := s.Get(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	o, err := s.transition(ctx, tenantID, orderID, expected.Status, next, reason)
	if err != nil {
		return nil, err
	}
	s.observeTransition(next)
	s.emit(ctx, o, "order.status_changed", expected.Status, next, reason)
	return o, nil
}

// Approve moves the order to approved and issues its contract in the same
// transaction. Either both happen or neither does.
func (s *Service) Approve(ctx context.Context, tenantID id.TenantID, orderID id.OrderID) (*IssuedContract, error) {
	if s.issuer == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "contract lifecycle not wired")
	}
	expected, err := s.Get(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	var result IssuedContract
	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		o, err := s.transition(txCtx, tenantID, orderID, expected.Status, StatusApproved, "order approved")
		if err != nil {
			return err
		}
		contractID, policyNumber, err := s.issuer.IssueFromOrder(txCtx, tenantID, o)
		if err != nil {
			return err
		}
		result = IssuedContract{Order: o, ContractID: contractID, PolicyNumber: policyNumber}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.observeTransition(StatusApproved)
	s.emit(ctx, result.Order, "order.approved", expected.Status, StatusApproved,
		"contract "+result.PolicyNumber)
	return &result, nil
}

// MarkDocumentsReceived records that the application file is complete.
func (s *Service) MarkDocumentsReceived(ctx context.Context, tenantID id.TenantID, orderID id.OrderID) (*Order, error) {
	return s.amend(ctx, tenantID, orderID, func(o *Order) { o.DocumentsReceived = true })
}

// CompleteMedicalExam records a passed medical exam.
func (s *Service) CompleteMedicalExam(ctx context.Context, tenantID id.TenantID, orderID id.OrderID) (*Order, error) {
	return s.amend(ctx, tenantID, orderID, func(o *Order) { o.MedicalExamCompleted = true })
}

// NeedsAttention derives the triage reasons for one order. An empty slice
// means the order is progressing normally.
func (s *Service) NeedsAttention(ctx context.Context, tenantID id.TenantID, orderID id.OrderID) ([]string, error) {
	o, err := s.Get(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	return o.AttentionReasons(requestcontext.Now(ctx)), nil
}

// Triage lists the tenant's pending orders that need a reviewer, oldest
// application first.
func (s *Service) Triage(ctx context.Context, tenantID id.TenantID) ([]Triaged, error) {
	today := requestcontext.Now(ctx)
	pending, err := s.orders.ListPending(ctx, tenantID, today)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending orders")
	}
	var out []Triaged
	for _, o := range pending {
		if reasons := o.AttentionReasons(today); len(reasons) > 0 {
			out = append(out, Triaged{Order: o, Reasons: reasons})
		}
	}
	return out, nil
}

func (s *Service) transition(ctx context.Context, tenantID id.TenantID, orderID id.OrderID,
	expected, next Status, reason string) (*Order, error) {
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	o, err := s.orders.Execute(ctx, tenantID, orderID,
		func(current *Order) error {
			if current.Status != expected {
				return dErrors.Newf(dErrors.CodeStaleState,
					"order %s moved to %s concurrently", current.OrderNumber, current.Status)
			}
			if !current.Status.CanTransitionTo(next) {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"order cannot move from %s to %s", current.Status, next)
			}
			return nil
		},
		func(current *Order) {
			previous := current.Status
			current.Status = next
			current.UpdatedAt = now
			switch next {
			case StatusApproved:
				d := now
				current.ApprovalDate = &d
			case StatusRejected:
				current.RejectionReason = reason
			}
			current.appendHistory(previous, next, actor, reason, now)
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return o, nil
}

func (s *Service) amend(ctx context.Context, tenantID id.TenantID, orderID id.OrderID, apply func(*Order)) (*Order, error) {
	now := requestcontext.Now(ctx)
	o, err := s.orders.Execute(ctx, tenantID, orderID,
		func(current *Order) error {
			if current.Status.Terminal() {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"order %s is %s and can no longer change", current.OrderNumber, current.Status)
			}
			return nil
		},
		func(current *Order) {
			apply(current)
			current.UpdatedAt = now
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return o, nil
}

func (s *Service) observeTransition(next Status) {
	if s.metrics != nil {
		s.metrics.OrdersTransitioned.WithLabelValues(string(next)).Inc()
	}
}

func (s *Service) emit(ctx context.Context, o *Order, action string, previous, next Status, reason string) {
	event := audit.Event{
		Timestamp:      requestcontext.Now(ctx),
		TenantID:       o.TenantID.String(),
		Entity:         "order",
		EntityID:       o.ID.String(),
		DocumentNumber: o.OrderNumber,
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
