package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"assurly/internal/audit"
	"assurly/internal/contract"
	"assurly/internal/platform/metrics"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/sentinel"
	"assurly/pkg/platform/tx"
	"assurly/pkg/requestcontext"
)

// lateFeePerDay is the flat daily penalty.
var lateFeePerDay = decimal.NewFromInt(1000)

// lateFeeCapRatio caps the penalty at 10% of the premium.
var lateFeeCapRatio = decimal.NewFromFloat(0.10)

// gracePeriodDays is the window after the due date during which a late
// settlement is flagged rather than escalated toward lapse.
const gracePeriodDays = 10

// ContractReader loads contracts for schedule generation.
type ContractReader interface {
	FindByID(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*contract.Contract, error)
}

// ContractRecorder pushes settlement facts back onto the owning contract.
type ContractRecorder interface {
	RecordPremiumPayment(ctx context.Context, tenantID id.TenantID, contractID id.ContractID, paidDate time.Time) error
}

// Service owns the premium schedule.
type Service struct {
	payments  Store
	contracts ContractReader
	recorder  ContractRecorder
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

func WithContractRecorder(r ContractRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

func NewService(payments Store, contracts ContractReader, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		payments:  payments,
		contracts: contracts,
		runner:    runner,
		logger:    slog.Default(),
		publisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateUpcoming walks forward from the contract's next premium due date
// in frequency-sized steps, creating one pending payment per step within the
// horizon. Re-running it never duplicates an installment: existing
// (contract, due_date) pairs are skipped.
func (s *Service) GenerateUpcoming(ctx context.Context, tenantID id.TenantID, contractID id.ContractID,
	monthsAhead int) ([]*Payment, error) {
	if monthsAhead <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "months ahead must be positive")
	}
	c, err := s.contracts.FindByID(ctx, tenantID, contractID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "contract not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contract")
	}
	if c.Status != contract.StatusActive {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition,
			"contract %s is %s, schedules are generated for active contracts only",
			c.PolicyNumber, c.Status)
	}

	now := requestcontext.Now(ctx)
	horizon := now.AddDate(0, monthsAhead, 0)
	interval := c.PremiumFrequency.IntervalDays()

	var created []*Payment
	err = s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		for due := c.NextPremiumDueDate; !due.After(horizon); due = due.AddDate(0, 0, interval) {
			p := &Payment{
				ID:         id.NewPaymentID(),
				TenantID:   tenantID,
				ContractID: contractID,
				DueDate:    due,
				Amount:     c.PremiumAmount,
				Currency:   c.Currency,
				Status:     StatusPending,
				LateFee:    decimal.Zero,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			inserted, err := s.payments.CreateIfAbsent(txCtx, p)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist payment")
			}
			if inserted {
				created = append(created, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		s.logger.InfoContext(ctx, "generated premium schedule",
			"tenant_id", tenantID.String(),
			"policy_number", c.PolicyNumber,
			"installments", len(created))
	}
	return created, nil
}

// Get fetches a payment within the tenant's scope.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID) (*Payment, error) {
	p, err := s.payments.FindByID(ctx, tenantID, paymentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment")
	}
	return p, nil
}

// ListByContract returns a contract's installments ordered by due date.
func (s *Service) ListByContract(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) ([]*Payment, error) {
	out, err := s.payments.ListByContract(ctx, tenantID, contractID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list payments")
	}
	return out, nil
}

// Settle marks a pending or failed installment completed. A payment after
// the due date accrues a flat per-day late fee capped at 10% of the premium,
// and the owning contract's last paid date advances in the same transaction.
// A settlement inside the grace window carries the grace flag.
func (s *Service) Settle(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID,
	paymentDate time.Time, method, transactionID string) (*Payment, error) {
	var settled *Payment
	var previous Status
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		p, err := s.payments.Execute(txCtx, tenantID, paymentID,
			func(current *Payment) error {
				if !current.Status.CanTransitionTo(StatusCompleted) {
					return dErrors.Newf(dErrors.CodeInvalidTransition,
						"payment is %s, only pending or failed payments settle", current.Status)
				}
				previous = current.Status
				return nil
			},
			func(current *Payment) {
				d := paymentDate
				current.Status = StatusCompleted
				current.PaymentDate = &d
				current.Method = method
				current.TransactionID = transactionID
				current.DaysLate = daysLate(current.DueDate, paymentDate)
				current.LateFee = lateFee(current.Amount, current.DaysLate)
				current.GracePeriodUsed = current.DaysLate > 0 && current.DaysLate <= gracePeriodDays
				current.UpdatedAt = now
			})
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "payment not found")
			}
			return err
		}
		if s.recorder != nil {
			if err := s.recorder.RecordPremiumPayment(txCtx, tenantID, p.ContractID, paymentDate); err != nil {
				return err
			}
		}
		settled = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PaymentsSettled.Inc()
	}
	s.emit(ctx, settled, "payment.settled", previous, StatusCompleted, "transaction "+transactionID)
	return settled, nil
}

// MarkFailed records a collection attempt that did not go through. The
// installment stays owed and a later Settle retries it.
func (s *Service) MarkFailed(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID,
	transactionID string) (*Payment, error) {
	var previous Status
	p, err := s.payments.Execute(ctx, tenantID, paymentID,
		func(current *Payment) error {
			if !current.Status.CanTransitionTo(StatusFailed) {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"payment is %s, only owed payments fail", current.Status)
			}
			previous = current.Status
			return nil
		},
		func(current *Payment) {
			current.Status = StatusFailed
			current.TransactionID = transactionID
			current.UpdatedAt = requestcontext.Now(ctx)
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, err
	}
	s.emit(ctx, p, "payment.failed", previous, StatusFailed, "transaction "+transactionID)
	return p, nil
}

// Refund reverses a completed settlement. The amount leaves the collected
// totals; the installment does not return to the owed set.
func (s *Service) Refund(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID,
	transactionID string) (*Payment, error) {
	p, err := s.payments.Execute(ctx, tenantID, paymentID,
		func(current *Payment) error {
			if !current.Status.CanTransitionTo(StatusRefunded) {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"payment is %s, only completed payments refund", current.Status)
			}
			return nil
		},
		func(current *Payment) {
			current.Status = StatusRefunded
			current.TransactionID = transactionID
			current.UpdatedAt = requestcontext.Now(ctx)
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, err
	}
	s.emit(ctx, p, "payment.refunded", StatusCompleted, StatusRefunded, "transaction "+transactionID)
	return p, nil
}

// Cancel voids an uncollected installment, for contracts leaving the active
// state.
func (s *Service) Cancel(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID) (*Payment, error) {
	p, err := s.payments.Execute(ctx, tenantID, paymentID,
		func(current *Payment) error {
			if !current.Status.CanTransitionTo(StatusCancelled) {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"payment is %s, only owed payments cancel", current.Status)
			}
			return nil
		},
		func(current *Payment) {
			current.Status = StatusCancelled
			current.UpdatedAt = requestcontext.Now(ctx)
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, err
	}
	return p, nil
}

// Statistics aggregates the tenant's collection position. The settled and
// overdue sides are independent queries and run concurrently.
func (s *Service) Statistics(ctx context.Context, tenantID id.TenantID) (*Stats, error) {
	today := requestcontext.Now(ctx)

	var totals CollectedTotals
	var overdue int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.payments.CollectedTotals(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		overdue, err = s.payments.OverdueCount(gctx, tenantID, today)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate payment statistics")
	}

	rate := decimal.Zero
	if totals.TotalPayments > 0 {
		rate = id.Ratio(
			decimal.NewFromInt(totals.TotalPayments-overdue),
			decimal.NewFromInt(totals.TotalPayments))
	}
	return &Stats{
		TotalPayments:  totals.TotalPayments,
		TotalCollected: totals.TotalCollected,
		TotalLateFees:  totals.TotalLateFees,
		OverdueCount:   overdue,
		CollectionRate: rate,
	}, nil
}

// daysLate counts whole calendar days between the due date and the payment
// date, never negative.
func daysLate(due, paid time.Time) int {
	days := int(truncateDay(paid).Sub(truncateDay(due)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// lateFee is min(days_late * 1000, amount * 0.10).
func lateFee(amount decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	flat := lateFeePerDay.Mul(decimal.NewFromInt(int64(days)))
	ceiling := id.Round2(amount.Mul(lateFeeCapRatio))
	if flat.GreaterThan(ceiling) {
		return ceiling
	}
	return flat
}

func (s *Service) emit(ctx context.Context, p *Payment, action string, previous, next Status, reason string) {
	event := audit.Event{
		Timestamp:     requestcontext.Now(ctx),
		TenantID:      p.TenantID.String(),
		Entity:        "payment",
		EntityID:      p.ID.String(),
		Action:        action,
		PreviousState: string(previous),
		NewState:      string(next),
		Actor:         requestcontext.ActorID(ctx),
		Reason:        reason,
		RequestID:     requestcontext.RequestID(ctx),
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}
