package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assurly/internal/order"
	"assurly/internal/quote"
	"assurly/internal/sequence"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/tx"
	"assurly/pkg/requestcontext"
)

var testDay = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T, opts ...order.Option) (*order.Service, id.TenantID) {
	t.Helper()
	svc := order.NewService(
		order.NewInMemoryStore(),
		sequence.New(sequence.NewInMemoryStore(), 3),
		tx.NewMemoryRunner(time.Second),
		opts...,
	)
	return svc, id.NewTenantID()
}

func testCtx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), testDay)
	return requestcontext.WithActorID(ctx, "reviewer-1")
}

func createInput() order.CreateInput {
	return order.CreateInput{
		CustomerID:       id.NewCustomerID(),
		ProductID:        id.NewProductID(),
		CoverageAmount:   decimal.NewFromInt(10_000_000),
		PremiumAmount:    decimal.NewFromInt(40_000),
		PremiumFrequency: id.FrequencyMonthly,
		PaymentMethod:    "bank_transfer",
	}
}

func TestCreate(t *testing.T) {
	t.Run("opens a draft with an ORD number and one history row", func(t *testing.T) {
		svc, tenant := newService(t)
		o, err := svc.Create(testCtx(), tenant, createInput())
		require.NoError(t, err)
		assert.Equal(t, "ORD-20240315-000001", o.OrderNumber)
		assert.Equal(t, order.StatusDraft, o.Status)
		require.Len(t, o.History, 1)
		assert.Equal(t, order.StatusDraft, o.History[0].NewStatus)
		assert.Equal(t, "reviewer-1", o.History[0].Actor)
	})

	t.Run("rejects non-positive coverage", func(t *testing.T) {
		svc, tenant := newService(t)
		in := createInput()
		in.CoverageAmount = decimal.Zero
		_, err := svc.Create(testCtx(), tenant, in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestCreateFromQuote(t *testing.T) {
	svc, tenant := newService(t)
	quoteID := id.NewQuoteID()
	orderID, number, err := svc.CreateFromQuote(testCtx(), tenant, quote.ConvertedQuote{
		QuoteID:             quoteID,
		CustomerID:          id.NewCustomerID(),
		ProductID:           id.NewProductID(),
		CoverageAmount:      decimal.NewFromInt(10_000_000),
		PremiumAmount:       decimal.NewFromInt(48_000),
		PremiumFrequency:    id.FrequencyMonthly,
		PaymentMethod:       "mobile_money",
		MedicalExamRequired: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240315-000001", number)

	o, err := svc.Get(testCtx(), tenant, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusSubmitted, o.Status)
	assert.Equal(t, quoteID, o.QuoteID)
	assert.True(t, o.MedicalExamRequired)
	require.Len(t, o.History, 1)
	assert.Equal(t, order.StatusSubmitted, o.History[0].NewStatus)
}

func TestUpdateStatus(t *testing.T) {
	advance := func(t *testing.T, svc *order.Service, tenant id.TenantID, orderID id.OrderID, statuses ...order.Status) *order.Order {
		t.Helper()
		var o *order.Order
		var err error
		for _, st := range statuses {
			o, err = svc.UpdateStatus(testCtx(), tenant, orderID, st, "advance")
			require.NoError(t, err)
		}
		return o
	}

	t.Run("walks the happy path appending one history row per edge", func(t *testing.T) {
		svc, tenant := newService(t)
		o, err := svc.Create(testCtx(), tenant, createInput())
		require.NoError(t, err)

		o = advance(t, svc, tenant, o.ID, order.StatusSubmitted, order.StatusUnderReview, order.StatusApproved)
		assert.Equal(t, order.StatusApproved, o.Status)
		require.NotNil(t, o.ApprovalDate)
		assert.Equal(t, testDay, *o.ApprovalDate)
		require.Len(t, o.History, 4)
		assert.Equal(t, order.StatusUnderReview, o.History[3].PreviousStatus)
		assert.Equal(t, order.StatusApproved, o.History[3].NewStatus)
	})

	t.Run("rejected order cannot become approved", func(t *testing.T) {
		svc, tenant := newService(t)
		o, err := svc.Create(testCtx(), tenant, createInput())
		require.NoError(t, err)
		advance(t, svc, tenant, o.ID, order.StatusSubmitted, order.StatusUnderReview)
		_, err = svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusRejected, "incomplete file")
		require.NoError(t, err)

		_, err = svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusApproved, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("rejection requires a reason and records it", func(t *testing.T) {
		svc, tenant := newService(t)
		o, err := svc.Create(testCtx(), tenant, createInput())
		require.NoError(t, err)
		advance(t, svc, tenant, o.ID, order.StatusSubmitted, order.StatusUnderReview)

		_, err = svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusRejected, "  ")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		rejected, err := svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusRejected, "fraud indicators")
		require.NoError(t, err)
		assert.Equal(t, "fraud indicators", rejected.RejectionReason)
	})

	t.Run("skipping review is an invalid transition", func(t *testing.T) {
		svc, tenant := newService(t)
		o, err := svc.Create(testCtx(), tenant, createInput())
		require.NoError(t, err)
		_, err = svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusApproved, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("cancel is allowed from every pre-decision state", func(t *testing.T) {
		for _, setup := range [][]order.Status{
			nil,
			{order.StatusSubmitted},
			{order.StatusSubmitted, order.StatusUnderReview},
		} {
			svc, tenant := newService(t)
			o, err := svc.Create(testCtx(), tenant, createInput())
			require.NoError(t, err)
			advance(t, svc, tenant, o.ID, setup...)
			cancelled, err := svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusCancelled, "withdrawn")
			require.NoError(t, err)
			assert.Equal(t, order.StatusCancelled, cancelled.Status)
		}
	})
}

// staleStore wraps the memory store and flips the order's status between the
// service's pre-read and its Execute, simulating a concurrent transition.
type staleStore struct {
	*order.InMemoryStore
	tenant  id.TenantID
	orderID id.OrderID
	armed   bool
}

func (s *staleStore) Execute(ctx context.Context, tenantID id.TenantID, orderID id.OrderID,
	validate func(*order.Order) error, mutate func(*order.Order)) (*order.Order, error) {
	if s.armed {
		s.armed = false
		_, err := s.InMemoryStore.Execute(ctx, s.tenant, s.orderID,
			func(*order.Order) error { return nil },
			func(o *order.Order) { o.Status = order.StatusCancelled })
		if err != nil {
			return nil, err
		}
	}
	return s.InMemoryStore.Execute(ctx, tenantID, orderID, validate, mutate)
}

func TestUpdateStatusStaleState(t *testing.T) {
	mem := order.NewInMemoryStore()
	wrapped := &staleStore{InMemoryStore: mem}
	svc := order.NewService(wrapped, sequence.New(sequence.NewInMemoryStore(), 3), tx.NewMemoryRunner(time.Second))
	tenant := id.NewTenantID()

	o, err := svc.Create(testCtx(), tenant, createInput())
	require.NoError(t, err)
	wrapped.tenant = tenant
	wrapped.orderID = o.ID
	wrapped.armed = true

	_, err = svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusSubmitted, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStaleState))
}

type stubIssuer struct {
	contractID id.ContractID
	policy     string
	err        error
	calls      int
}

func (s *stubIssuer) IssueFromOrder(ctx context.Context, tenantID id.TenantID, o *order.Order) (id.ContractID, string, error) {
	s.calls++
	if s.err != nil {
		return id.ContractID{}, "", s.err
	}
	return s.contractID, s.policy, nil
}

func TestApprove(t *testing.T) {
	t.Run("approves and issues in one call", func(t *testing.T) {
		issuer := &stubIssuer{contractID: id.NewContractID(), policy: "POL-20240315-000001"}
		svc, tenant := newService(t, order.WithContractIssuer(issuer))
		o, err := svc.Create(testCtx(), tenant, createInput())
		require.NoError(t, err)
		_, err = svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusSubmitted, "")
		require.NoError(t, err)
		_, err = svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusUnderReview, "")
		require.NoError(t, err)

		issued, err := svc.Approve(testCtx(), tenant, o.ID)
		require.NoError(t, err)
		assert.Equal(t, issuer.policy, issued.PolicyNumber)
		assert.Equal(t, order.StatusApproved, issued.Order.Status)
		assert.Equal(t, 1, issuer.calls)
	})

	t.Run("does not approve from draft", func(t *testing.T) {
		issuer := &stubIssuer{contractID: id.NewContractID(), policy: "POL-20240315-000002"}
		svc, tenant := newService(t, order.WithContractIssuer(issuer))
		o, err := svc.Create(testCtx(), tenant, createInput())
		require.NoError(t, err)

		_, err = svc.Approve(testCtx(), tenant, o.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		assert.Zero(t, issuer.calls)
	})
}

func TestNeedsAttention(t *testing.T) {
	svc, tenant := newService(t)
	o, err := svc.Create(testCtx(), tenant, createInput())
	require.NoError(t, err)
	_, err = svc.UpdateStatus(testCtx(), tenant, o.ID, order.StatusSubmitted, "")
	require.NoError(t, err)

	t.Run("missing documents flag immediately", func(t *testing.T) {
		reasons, err := svc.NeedsAttention(testCtx(), tenant, o.ID)
		require.NoError(t, err)
		assert.Contains(t, reasons, "documents not received")
		assert.NotContains(t, reasons, "application older than 7 days")
	})

	t.Run("age rule trips after 7 days in review states", func(t *testing.T) {
		later := requestcontext.WithTime(context.Background(), testDay.AddDate(0, 0, 8))
		reasons, err := svc.NeedsAttention(later, tenant, o.ID)
		require.NoError(t, err)
		assert.Contains(t, reasons, "application older than 7 days")
	})

	t.Run("clears once documents arrive and exam completes", func(t *testing.T) {
		_, err := svc.MarkDocumentsReceived(testCtx(), tenant, o.ID)
		require.NoError(t, err)
		reasons, err := svc.NeedsAttention(testCtx(), tenant, o.ID)
		require.NoError(t, err)
		assert.Empty(t, reasons)
	})
}

func TestTriage(t *testing.T) {
	svc, tenant := newService(t)

	first, err := svc.Create(testCtx(), tenant, createInput())
	require.NoError(t, err)
	_, err = svc.UpdateStatus(testCtx(), tenant, first.ID, order.StatusSubmitted, "")
	require.NoError(t, err)

	clean, err := svc.Create(testCtx(), tenant, createInput())
	require.NoError(t, err)
	_, err = svc.MarkDocumentsReceived(testCtx(), tenant, clean.ID)
	require.NoError(t, err)

	triaged, err := svc.Triage(testCtx(), tenant)
	require.NoError(t, err)
	require.Len(t, triaged, 1)
	assert.Equal(t, first.ID, triaged[0].Order.ID)
	assert.Contains(t, triaged[0].Reasons, "documents not received")
}
