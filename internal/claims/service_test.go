package claims_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assurly/internal/claims"
	"assurly/internal/contract"
	"assurly/internal/sequence"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/requestcontext"
)

var testDay = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	service   *claims.Service
	contracts *contract.InMemoryStore
	tenantID  id.TenantID
	contract  *contract.Contract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tenantID := id.NewTenantID()
	contracts := contract.NewInMemoryStore()
	c := &contract.Contract{
		ID:               id.NewContractID(),
		TenantID:         tenantID,
		PolicyNumber:     "POL-20240315-000001",
		OrderID:          id.NewOrderID(),
		CustomerID:       id.NewCustomerID(),
		ProductID:        id.NewProductID(),
		CoverageAmount:   decimal.NewFromInt(10_000_000),
		PremiumAmount:    decimal.NewFromInt(48_000),
		PremiumFrequency: id.FrequencyMonthly,
		Currency:         "XOF",
		Status:           contract.StatusActive,
	}
	require.NoError(t, contracts.Create(context.Background(), c))

	svc := claims.NewService(claims.NewInMemoryStore(), contracts,
		sequence.New(sequence.NewInMemoryStore(), 3))
	return &fixture{service: svc, contracts: contracts, tenantID: tenantID, contract: c}
}

func testCtx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), testDay)
	return requestcontext.WithActorID(ctx, "adjuster-desk")
}

func submitInput(f *fixture) claims.SubmitInput {
	return claims.SubmitInput{
		ContractID:   f.contract.ID,
		ClaimType:    claims.ClaimAccident,
		Amount:       decimal.NewFromInt(2_000_000),
		IncidentDate: testDay.AddDate(0, 0, -3),
		Description:  "vehicle collision",
	}
}

func TestSubmit(t *testing.T) {
	t.Run("files a claim with a REC number", func(t *testing.T) {
		f := newFixture(t)
		c, err := f.service.Submit(testCtx(), f.tenantID, submitInput(f))
		require.NoError(t, err)
		assert.Equal(t, "REC-20240315-000001", c.ClaimNumber)
		assert.Equal(t, claims.StatusSubmitted, c.Status)
		assert.Equal(t, testDay, c.ReportDate)
		assert.Equal(t, f.contract.CustomerID, c.CustomerID)
		assert.Equal(t, "XOF", c.Currency)
	})

	t.Run("rejects a future incident date", func(t *testing.T) {
		f := newFixture(t)
		in := submitInput(f)
		in.IncidentDate = testDay.AddDate(0, 0, 1)
		_, err := f.service.Submit(testCtx(), f.tenantID, in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("refuses a lapsed contract", func(t *testing.T) {
		f := newFixture(t)
		lapsed := *f.contract
		lapsed.ID = id.NewContractID()
		lapsed.PolicyNumber = "POL-20240315-000002"
		lapsed.Status = contract.StatusLapsed
		require.NoError(t, f.contracts.Create(context.Background(), &lapsed))

		in := submitInput(f)
		in.ContractID = lapsed.ID
		_, err := f.service.Submit(testCtx(), f.tenantID, in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestAssignAdjuster(t *testing.T) {
	f := newFixture(t)
	c, err := f.service.Submit(testCtx(), f.tenantID, submitInput(f))
	require.NoError(t, err)

	t.Run("forces investigating from submitted", func(t *testing.T) {
		assigned, err := f.service.AssignAdjuster(testCtx(), f.tenantID, c.ID, "adj-7")
		require.NoError(t, err)
		assert.Equal(t, claims.StatusInvestigating, assigned.Status)
		assert.Equal(t, "adj-7", assigned.AdjusterID)
	})

	t.Run("reassignment keeps investigating", func(t *testing.T) {
		reassigned, err := f.service.AssignAdjuster(testCtx(), f.tenantID, c.ID, "adj-9")
		require.NoError(t, err)
		assert.Equal(t, claims.StatusInvestigating, reassigned.Status)
		assert.Equal(t, "adj-9", reassigned.AdjusterID)
	})
}

func TestUpdateStatus(t *testing.T) {
	approval := decimal.NewFromInt(1_500_000)

	submitAndInvestigate := func(t *testing.T, f *fixture) *claims.Claim {
		t.Helper()
		c, err := f.service.Submit(testCtx(), f.tenantID, submitInput(f))
		require.NoError(t, err)
		c, err = f.service.AssignAdjuster(testCtx(), f.tenantID, c.ID, "adj-1")
		require.NoError(t, err)
		return c
	}

	t.Run("approve then pay stamps the payment date", func(t *testing.T) {
		f := newFixture(t)
		c := submitAndInvestigate(t, f)

		approved, err := f.service.UpdateStatus(testCtx(), f.tenantID, c.ID, claims.StatusApproved,
			claims.Decision{ApprovalAmount: &approval})
		require.NoError(t, err)
		require.NotNil(t, approved.ApprovalAmount)

		paid, err := f.service.UpdateStatus(testCtx(), f.tenantID, c.ID, claims.StatusPaid, claims.Decision{})
		require.NoError(t, err)
		require.NotNil(t, paid.PaymentDate)
		assert.Equal(t, testDay, *paid.PaymentDate)

		closed, err := f.service.UpdateStatus(testCtx(), f.tenantID, c.ID, claims.StatusClosed, claims.Decision{})
		require.NoError(t, err)
		assert.Equal(t, claims.StatusClosed, closed.Status)
	})

	t.Run("approval requires an amount", func(t *testing.T) {
		f := newFixture(t)
		c := submitAndInvestigate(t, f)
		_, err := f.service.UpdateStatus(testCtx(), f.tenantID, c.ID, claims.StatusApproved, claims.Decision{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("direct rejection from submitted", func(t *testing.T) {
		f := newFixture(t)
		c, err := f.service.Submit(testCtx(), f.tenantID, submitInput(f))
		require.NoError(t, err)

		rejected, err := f.service.UpdateStatus(testCtx(), f.tenantID, c.ID, claims.StatusRejected,
			claims.Decision{RejectionReason: "not covered"})
		require.NoError(t, err)
		assert.Equal(t, "not covered", rejected.RejectionReason)
	})

	t.Run("submitted cannot jump straight to paid", func(t *testing.T) {
		f := newFixture(t)
		c, err := f.service.Submit(testCtx(), f.tenantID, submitInput(f))
		require.NoError(t, err)
		_, err = f.service.UpdateStatus(testCtx(), f.tenantID, c.ID, claims.StatusPaid, claims.Decision{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("rejected claims only close", func(t *testing.T) {
		f := newFixture(t)
		c := submitAndInvestigate(t, f)
		_, err := f.service.UpdateStatus(testCtx(), f.tenantID, c.ID, claims.StatusRejected,
			claims.Decision{RejectionReason: "fraud"})
		require.NoError(t, err)

		_, err = f.service.UpdateStatus(testCtx(), f.tenantID, c.ID, claims.StatusApproved,
			claims.Decision{ApprovalAmount: &approval})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	approval := decimal.NewFromInt(1_000_000)

	submit := func(t *testing.T, ctx context.Context) *claims.Claim {
		t.Helper()
		in := submitInput(f)
		in.IncidentDate = requestcontext.Now(ctx).AddDate(0, 0, -1)
		c, err := f.service.Submit(ctx, f.tenantID, in)
		require.NoError(t, err)
		return c
	}

	// an old claim, rejected
	oldCtx := requestcontext.WithTime(context.Background(), testDay.AddDate(0, -3, 0))
	oldClaim := submit(t, oldCtx)
	_, err := f.service.UpdateStatus(oldCtx, f.tenantID, oldClaim.ID, claims.StatusRejected,
		claims.Decision{RejectionReason: "expired coverage"})
	require.NoError(t, err)

	// a recent claim, approved
	recent := submit(t, testCtx())
	_, err = f.service.AssignAdjuster(testCtx(), f.tenantID, recent.ID, "adj-1")
	require.NoError(t, err)
	_, err = f.service.UpdateStatus(testCtx(), f.tenantID, recent.ID, claims.StatusApproved,
		claims.Decision{ApprovalAmount: &approval})
	require.NoError(t, err)

	// a recent claim, still submitted
	submit(t, testCtx())

	stats, err := f.service.Statistics(testCtx(), f.tenantID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.CountsByStatus[claims.StatusRejected])
	assert.Equal(t, int64(1), stats.CountsByStatus[claims.StatusApproved])
	assert.Equal(t, int64(1), stats.CountsByStatus[claims.StatusSubmitted])
	assert.True(t, stats.TotalClaimed.Equal(decimal.NewFromInt(6_000_000)), stats.TotalClaimed.String())
	assert.True(t, stats.TotalApproved.Equal(approval), stats.TotalApproved.String())
	assert.True(t, stats.ApprovalRate.Equal(decimal.NewFromFloat(0.5)), stats.ApprovalRate.String())
	assert.Equal(t, int64(2), stats.ReportedLast30Days)
}
