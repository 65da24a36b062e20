package claims

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"assurly/internal/audit"
	"assurly/internal/contract"
	"assurly/internal/platform/metrics"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/sentinel"
	"assurly/pkg/requestcontext"
)

// NumberPrefix is the document prefix for claim numbers ("réclamation").
const NumberPrefix = "REC"

// NumberSource issues document numbers.
type NumberSource interface {
	Next(ctx context.Context, tenantID id.TenantID, prefix string, scopeDate time.Time) (string, error)
}

// ContractReader loads the contract a claim is filed against.
type ContractReader interface {
	FindByID(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*contract.Contract, error)
}

// Service owns the claims workflow.
type Service struct {
	claims    Store
	contracts ContractReader
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

func NewService(claims Store, contracts ContractReader, numbers NumberSource, opts ...Option) *Service {
	s := &Service{
		claims:    claims,
		contracts: contracts,
		numbers:   numbers,
		logger:    slog.Default(),
		publisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput describes a reported loss.
type SubmitInput struct {
	ContractID   id.ContractID
	ClaimType    ClaimType
	Amount       decimal.Decimal
	IncidentDate time.Time
	Description  string
}

// Submit files a claim against an active or claimed contract and assigns a
// REC number. The report date is today.
func (s *Service) Submit(ctx context.Context, tenantID id.TenantID, in SubmitInput) (*Claim, error) {
	if _, err := ParseClaimType(string(in.ClaimType)); err != nil {
		return nil, err
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, dErrors.New(dErrors.CodeValidation, "claimed amount must be positive")
	}
	now := requestcontext.Now(ctx)
	if in.IncidentDate.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "incident date cannot be in the future")
	}

	c, err := s.contracts.FindByID(ctx, tenantID, in.ContractID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "contract not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contract")
	}
	switch c.Status {
	case contract.StatusActive, contract.StatusClaimed:
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition,
			"contract %s is %s, claims require an active policy", c.PolicyNumber, c.Status)
	}

	number, err := s.numbers.Next(ctx, tenantID, NumberPrefix, now)
	if err != nil {
		return nil, err
	}
	claim := &Claim{
		ID:            id.NewClaimID(),
		TenantID:      tenantID,
		ClaimNumber:   number,
		ContractID:    c.ID,
		CustomerID:    c.CustomerID,
		ClaimType:     in.ClaimType,
		ClaimedAmount: in.Amount,
		Currency:      c.Currency,
		IncidentDate:  in.IncidentDate,
		ReportDate:    now,
		Description:   in.Description,
		Status:        StatusSubmitted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist claim")
	}

	if s.metrics != nil {
		s.metrics.ClaimsSubmitted.Inc()
	}
	s.emit(ctx, claim, "claim.submitted", "", StatusSubmitted, "")
	return claim, nil
}

// Get fetches a claim within the tenant's scope.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, claimID id.ClaimID) (*Claim, error) {
	c, err := s.claims.FindByID(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	return c, nil
}

// AssignAdjuster attaches an adjuster. A freshly submitted claim moves to
// investigating as part of the assignment.
func (s *Service) AssignAdjuster(ctx context.Context, tenantID id.TenantID, claimID id.ClaimID,
	adjusterID string) (*Claim, error) {
	if strings.TrimSpace(adjusterID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "adjuster id is required")
	}
	now := requestcontext.Now(ctx)
	var previous Status
	c, err := s.claims.Execute(ctx, tenantID, claimID,
		func(current *Claim) error {
			switch current.Status {
			case StatusSubmitted, StatusInvestigating:
				return nil
			default:
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"claim is %s, adjusters work submitted or investigating claims", current.Status)
			}
		},
		func(current *Claim) {
			previous = current.Status
			current.AdjusterID = adjusterID
			if current.Status == StatusSubmitted {
				current.Status = StatusInvestigating
			}
			current.UpdatedAt = now
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, err
	}
	if previous == StatusSubmitted {
		s.emit(ctx, c, "claim.investigating", previous, StatusInvestigating, "adjuster "+adjusterID)
	}
	return c, nil
}

// Decision carries the optional fields of a status update.
type Decision struct {
	Notes           string
	ApprovalAmount  *decimal.Decimal
	RejectionReason string
}

// UpdateStatus moves the claim along an allowed edge. Approval requires an
// approval amount; rejection a reason; the paid transition stamps the
// payment date. A concurrent transition that got there first surfaces as a
// stale state conflict.
func (s *Service) UpdateStatus(ctx context.Context, tenantID id.TenantID, claimID id.ClaimID,
	next Status, d Decision) (*Claim, error) {
	if _, err := ParseStatus(string(next)); err != nil {
		return nil, err
	}
	switch next {
	case StatusApproved:
		if d.ApprovalAmount == nil || d.ApprovalAmount.LessThanOrEqual(decimal.Zero) {
			return nil, dErrors.New(dErrors.CodeValidation, "approval requires a positive approval amount")
		}
	case StatusRejected:
		if strings.TrimSpace(d.RejectionReason) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "rejection requires a reason")
		}
	}

	expected, err := s.Get(ctx, tenantID, claimID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	c, err := s.claims.Execute(ctx, tenantID, claimID,
		func(current *Claim) error {
			if current.Status != expected.Status {
				return dErrors.Newf(dErrors.CodeStaleState,
					"claim %s moved to %s concurrently", current.ClaimNumber, current.Status)
			}
			if !current.Status.CanTransitionTo(next) {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"claim cannot move from %s to %s", current.Status, next)
			}
			if next == StatusPaid && current.ApprovalAmount == nil {
				return dErrors.New(dErrors.CodeInvariantViolation,
					"claim cannot be paid without an approval amount")
			}
			return nil
		},
		func(current *Claim) {
			current.Status = next
			if d.Notes != "" {
				current.Notes = d.Notes
			}
			switch next {
			case StatusApproved:
				amount := *d.ApprovalAmount
				current.ApprovalAmount = &amount
			case StatusRejected:
				current.RejectionReason = d.RejectionReason
			case StatusPaid:
				paid := now
				current.PaymentDate = &paid
			}
			current.UpdatedAt = now
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, err
	}
	s.emit(ctx, c, "claim.status_changed", expected.Status, next, d.RejectionReason)
	return c, nil
}

// Statistics aggregates the tenant's claims position. The three independent
// queries run concurrently.
func (s *Service) Statistics(ctx context.Context, tenantID id.TenantID) (*Stats, error) {
	today := requestcontext.Now(ctx)

	var counts map[Status]int64
	var amounts Amounts
	var recent int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.claims.CountsByStatus(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		amounts, err = s.claims.Amounts(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.claims.CountReportedSince(gctx, tenantID, today.AddDate(0, 0, -30))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate claim statistics")
	}

	// closed claims are excluded from the rate; their decision already
	// counted while they sat in approved/paid or rejected.
	approvedOutcomes := counts[StatusApproved] + counts[StatusPaid]
	rejected := counts[StatusRejected]
	decided := approvedOutcomes + rejected
	rate := decimal.Zero
	if decided > 0 {
		rate = id.Ratio(decimal.NewFromInt(approvedOutcomes), decimal.NewFromInt(decided))
	}
	return &Stats{
		CountsByStatus:     counts,
		TotalClaimed:       amounts.TotalClaimed,
		TotalApproved:      amounts.TotalApproved,
		ApprovalRate:       rate,
		ReportedLast30Days: recent,
	}, nil
}

func (s *Service) emit(ctx context.Context, c *Claim, action string, previous, next Status, reason string) {
	event := audit.Event{
		Timestamp:      requestcontext.Now(ctx),
		TenantID:       c.TenantID.String(),
		Entity:         "claim",
		EntityID:       c.ID.String(),
		DocumentNumber: c.ClaimNumber,
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
