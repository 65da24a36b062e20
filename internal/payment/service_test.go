package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assurly/internal/contract"
	"assurly/internal/payment"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/tx"
	"assurly/pkg/requestcontext"
)

var testDay = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

type recorderSpy struct {
	contractID id.ContractID
	paidDate   time.Time
	calls      int
}

func (r *recorderSpy) RecordPremiumPayment(_ context.Context, _ id.TenantID, contractID id.ContractID, paidDate time.Time) error {
	r.calls++
	r.contractID = contractID
	r.paidDate = paidDate
	return nil
}

type fixture struct {
	service  *payment.Service
	store    *payment.InMemoryStore
	recorder *recorderSpy
	tenantID id.TenantID
	contract *contract.Contract
}

func newFixture(t *testing.T, frequency id.PremiumFrequency) *fixture {
	t.Helper()
	tenantID := id.NewTenantID()
	contracts := contract.NewInMemoryStore()
	c := &contract.Contract{
		ID:                 id.NewContractID(),
		TenantID:           tenantID,
		PolicyNumber:       "POL-20240315-000001",
		OrderID:            id.NewOrderID(),
		CustomerID:         id.NewCustomerID(),
		ProductID:          id.NewProductID(),
		CoverageAmount:     decimal.NewFromInt(10_000_000),
		PremiumAmount:      decimal.NewFromInt(100_000),
		PremiumFrequency:   frequency,
		Currency:           "XOF",
		EffectiveDate:      testDay,
		ExpiryDate:         testDay.AddDate(1, 0, 0),
		NextPremiumDueDate: testDay.AddDate(0, 0, frequency.IntervalDays()),
		Status:             contract.StatusActive,
	}
	require.NoError(t, contracts.Create(context.Background(), c))

	store := payment.NewInMemoryStore()
	recorder := &recorderSpy{}
	svc := payment.NewService(store, contracts, tx.NewMemoryRunner(time.Second),
		payment.WithContractRecorder(recorder))
	return &fixture{service: svc, store: store, recorder: recorder, tenantID: tenantID, contract: c}
}

func testCtx() context.Context {
	return requestcontext.WithTime(context.Background(), testDay)
}

func TestGenerateUpcoming(t *testing.T) {
	t.Run("creates one installment per frequency step within the horizon", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		created, err := f.service.GenerateUpcoming(testCtx(), f.tenantID, f.contract.ID, 3)
		require.NoError(t, err)
		require.Len(t, created, 3)
		assert.Equal(t, testDay.AddDate(0, 0, 30), created[0].DueDate)
		assert.Equal(t, testDay.AddDate(0, 0, 60), created[1].DueDate)
		assert.Equal(t, testDay.AddDate(0, 0, 90), created[2].DueDate)
		for _, p := range created {
			assert.Equal(t, payment.StatusPending, p.Status)
			assert.True(t, p.Amount.Equal(decimal.NewFromInt(100_000)))
		}
	})

	t.Run("running twice produces the same set", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		first, err := f.service.GenerateUpcoming(testCtx(), f.tenantID, f.contract.ID, 12)
		require.NoError(t, err)
		again, err := f.service.GenerateUpcoming(testCtx(), f.tenantID, f.contract.ID, 12)
		require.NoError(t, err)
		assert.Empty(t, again)

		all, err := f.service.ListByContract(testCtx(), f.tenantID, f.contract.ID)
		require.NoError(t, err)
		assert.Len(t, all, len(first))
	})

	t.Run("quarterly steps are 90 days apart", func(t *testing.T) {
		f := newFixture(t, id.FrequencyQuarterly)
		created, err := f.service.GenerateUpcoming(testCtx(), f.tenantID, f.contract.ID, 12)
		require.NoError(t, err)
		require.NotEmpty(t, created)
		assert.Equal(t, testDay.AddDate(0, 0, 90), created[0].DueDate)
		if len(created) > 1 {
			assert.Equal(t, testDay.AddDate(0, 0, 180), created[1].DueDate)
		}
	})

	t.Run("refuses non-active contracts", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		lapsed := *f.contract
		lapsed.ID = id.NewContractID()
		lapsed.PolicyNumber = "POL-20240315-000002"
		lapsed.Status = contract.StatusLapsed
		contracts := contract.NewInMemoryStore()
		require.NoError(t, contracts.Create(context.Background(), &lapsed))
		svc := payment.NewService(payment.NewInMemoryStore(), contracts, tx.NewMemoryRunner(time.Second))

		_, err := svc.GenerateUpcoming(testCtx(), f.tenantID, lapsed.ID, 3)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestSettle(t *testing.T) {
	generateOne := func(t *testing.T, f *fixture) *payment.Payment {
		t.Helper()
		created, err := f.service.GenerateUpcoming(testCtx(), f.tenantID, f.contract.ID, 1)
		require.NoError(t, err)
		require.Len(t, created, 1)
		return created[0]
	}

	t.Run("on-time settlement carries no late fee", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		p := generateOne(t, f)

		settled, err := f.service.Settle(testCtx(), f.tenantID, p.ID, p.DueDate, "mobile_money", "tx-001")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, settled.Status)
		assert.True(t, settled.LateFee.IsZero())
		assert.Zero(t, settled.DaysLate)
		assert.False(t, settled.GracePeriodUsed)
		require.NotNil(t, settled.PaymentDate)
	})

	t.Run("five days late on 100000 costs 5000 and burns the grace period", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		p := generateOne(t, f)

		settled, err := f.service.Settle(testCtx(), f.tenantID, p.ID, p.DueDate.AddDate(0, 0, 5), "card", "tx-002")
		require.NoError(t, err)
		assert.Equal(t, 5, settled.DaysLate)
		assert.True(t, settled.LateFee.Equal(decimal.NewFromInt(5000)), settled.LateFee.String())
		assert.True(t, settled.GracePeriodUsed)
	})

	t.Run("the fee caps at 10 percent of the premium", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		p := generateOne(t, f)

		settled, err := f.service.Settle(testCtx(), f.tenantID, p.ID, p.DueDate.AddDate(0, 0, 45), "card", "tx-003")
		require.NoError(t, err)
		assert.Equal(t, 45, settled.DaysLate)
		assert.True(t, settled.LateFee.Equal(decimal.NewFromInt(10_000)), settled.LateFee.String())
		assert.False(t, settled.GracePeriodUsed, "45 days is past the grace window")
	})

	t.Run("updates the contract's last paid date", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		p := generateOne(t, f)
		paidAt := p.DueDate.AddDate(0, 0, 1)

		_, err := f.service.Settle(testCtx(), f.tenantID, p.ID, paidAt, "card", "tx-004")
		require.NoError(t, err)
		assert.Equal(t, 1, f.recorder.calls)
		assert.Equal(t, f.contract.ID, f.recorder.contractID)
		assert.Equal(t, paidAt, f.recorder.paidDate)
	})

	t.Run("a completed payment does not settle twice", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		p := generateOne(t, f)
		_, err := f.service.Settle(testCtx(), f.tenantID, p.ID, p.DueDate, "card", "tx-005")
		require.NoError(t, err)

		_, err = f.service.Settle(testCtx(), f.tenantID, p.ID, p.DueDate, "card", "tx-006")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("a failed collection settles on retry", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		p := generateOne(t, f)

		failed, err := f.service.MarkFailed(testCtx(), f.tenantID, p.ID, "tx-007")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusFailed, failed.Status)

		settled, err := f.service.Settle(testCtx(), f.tenantID, p.ID, p.DueDate.AddDate(0, 0, 2), "card", "tx-008")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, settled.Status)
		assert.Equal(t, "tx-008", settled.TransactionID)
	})
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(t, id.FrequencyMonthly)
	created, err := f.service.GenerateUpcoming(testCtx(), f.tenantID, f.contract.ID, 1)
	require.NoError(t, err)
	require.Len(t, created, 1)

	_, err = f.service.Settle(testCtx(), f.tenantID, created[0].ID, created[0].DueDate, "card", "tx-1")
	require.NoError(t, err)

	// once collected the money is no longer owed, so it cannot fail
	_, err = f.service.MarkFailed(testCtx(), f.tenantID, created[0].ID, "tx-2")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func TestRefund(t *testing.T) {
	t.Run("reverses a completed settlement", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		created, err := f.service.GenerateUpcoming(testCtx(), f.tenantID, f.contract.ID, 1)
		require.NoError(t, err)
		require.Len(t, created, 1)
		_, err = f.service.Settle(testCtx(), f.tenantID, created[0].ID, created[0].DueDate, "card", "tx-1")
		require.NoError(t, err)

		refunded, err := f.service.Refund(testCtx(), f.tenantID, created[0].ID, "rf-1")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusRefunded, refunded.Status)

		stats, err := f.service.Statistics(testCtx(), f.tenantID)
		require.NoError(t, err)
		assert.True(t, stats.TotalCollected.IsZero(), "refunded amounts leave the collected total")
	})

	t.Run("only completed payments refund", func(t *testing.T) {
		f := newFixture(t, id.FrequencyMonthly)
		created, err := f.service.GenerateUpcoming(testCtx(), f.tenantID, f.contract.ID, 1)
		require.NoError(t, err)
		require.Len(t, created, 1)

		_, err = f.service.Refund(testCtx(), f.tenantID, created[0].ID, "rf-2")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestStatistics(t *testing.T) {
	f := newFixture(t, id.FrequencyMonthly)
	created, err := f.service.GenerateUpcoming(testCtx(), f.tenantID, f.contract.ID, 4)
	require.NoError(t, err)
	require.Len(t, created, 4)

	// settle the first two, one of them late
	_, err = f.service.Settle(testCtx(), f.tenantID, created[0].ID, created[0].DueDate, "card", "tx-1")
	require.NoError(t, err)
	_, err = f.service.Settle(testCtx(), f.tenantID, created[1].ID, created[1].DueDate.AddDate(0, 0, 3), "card", "tx-2")
	require.NoError(t, err)

	// evaluate after the third due date has passed, before the fourth
	asOf := requestcontext.WithTime(context.Background(), created[2].DueDate.AddDate(0, 0, 1))
	stats, err := f.service.Statistics(asOf, f.tenantID)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalPayments)
	assert.True(t, stats.TotalCollected.Equal(decimal.NewFromInt(200_000)), stats.TotalCollected.String())
	assert.True(t, stats.TotalLateFees.Equal(decimal.NewFromInt(3000)), stats.TotalLateFees.String())
	assert.Equal(t, int64(1), stats.OverdueCount)
	assert.True(t, stats.CollectionRate.Equal(decimal.NewFromFloat(0.75)), stats.CollectionRate.String())
}
