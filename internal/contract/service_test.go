package contract_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assurly/internal/catalog"
	"assurly/internal/contract"
	"assurly/internal/order"
	"assurly/internal/sequence"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/requestcontext"
)

var testDay = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	service  *contract.Service
	catalog  *catalog.InMemoryStore
	tenantID id.TenantID
	customer *catalog.Customer
	product  *catalog.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tenantID := id.NewTenantID()
	cat := catalog.NewInMemoryStore()

	customer := &catalog.Customer{
		ID:          id.NewCustomerID(),
		TenantID:    tenantID,
		FirstName:   "Awa",
		LastName:    "Diop",
		DateOfBirth: time.Date(1989, 3, 1, 0, 0, 0, 0, time.UTC),
		KYCStatus:   catalog.KYCVerified,
	}
	require.NoError(t, cat.Create(context.Background(), customer))

	product := &catalog.Product{
		ID:          id.NewProductID(),
		TenantID:    tenantID,
		Name:        "Term Life",
		ProductType: catalog.ProductLife,
		Currency:    "XOF",
		Status:      catalog.ProductActive,
	}
	require.NoError(t, cat.Products().Create(context.Background(), product))

	svc := contract.NewService(
		contract.NewInMemoryStore(), cat, cat.Products(),
		sequence.New(sequence.NewInMemoryStore(), 3),
	)
	return &fixture{service: svc, catalog: cat, tenantID: tenantID, customer: customer, product: product}
}

func testCtx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), testDay)
	return requestcontext.WithActorID(ctx, "underwriter-1")
}

func (f *fixture) approvedOrder() *order.Order {
	return &order.Order{
		ID:               id.NewOrderID(),
		TenantID:         f.tenantID,
		OrderNumber:      "ORD-20240315-000001",
		CustomerID:       f.customer.ID,
		ProductID:        f.product.ID,
		CoverageAmount:   decimal.NewFromInt(10_000_000),
		PremiumAmount:    decimal.NewFromInt(48_000),
		PremiumFrequency: id.FrequencyMonthly,
		Status:           order.StatusApproved,
	}
}

func (f *fixture) issue(t *testing.T) *contract.Contract {
	t.Helper()
	contractID, _, err := f.service.IssueFromOrder(testCtx(), f.tenantID, f.approvedOrder())
	require.NoError(t, err)
	c, err := f.service.Get(testCtx(), f.tenantID, contractID)
	require.NoError(t, err)
	return c
}

func TestIssueFromOrder(t *testing.T) {
	t.Run("issues a policy with the default one year term", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)

		assert.Equal(t, "POL-20240315-000001", c.PolicyNumber)
		assert.Equal(t, contract.StatusActive, c.Status)
		assert.Equal(t, testDay, c.IssueDate)
		assert.Equal(t, testDay, c.EffectiveDate)
		assert.Equal(t, testDay.AddDate(1, 0, 0), c.ExpiryDate)
		assert.Equal(t, c.ExpiryDate.AddDate(0, 0, -30), c.NextRenewalDate)
		assert.Equal(t, testDay.AddDate(0, 0, 30), c.NextPremiumDueDate)
		assert.Equal(t, "XOF", c.Currency)
		require.Len(t, c.History, 1)
		assert.Equal(t, contract.StatusActive, c.History[0].NewStatus)
	})

	t.Run("honors a product-specified term", func(t *testing.T) {
		f := newFixture(t)
		f.product.PolicyTermYears = 5
		longTerm := *f.product
		longTerm.ID = id.NewProductID()
		require.NoError(t, f.catalog.Products().Create(context.Background(), &longTerm))

		o := f.approvedOrder()
		o.ProductID = longTerm.ID
		contractID, _, err := f.service.IssueFromOrder(testCtx(), f.tenantID, o)
		require.NoError(t, err)
		c, err := f.service.Get(testCtx(), f.tenantID, contractID)
		require.NoError(t, err)
		assert.Equal(t, testDay.AddDate(5, 0, 0), c.ExpiryDate)
	})

	t.Run("uses the order's effective date when set", func(t *testing.T) {
		f := newFixture(t)
		o := f.approvedOrder()
		effective := testDay.AddDate(0, 1, 0)
		o.EffectiveDate = &effective

		contractID, _, err := f.service.IssueFromOrder(testCtx(), f.tenantID, o)
		require.NoError(t, err)
		c, err := f.service.Get(testCtx(), f.tenantID, contractID)
		require.NoError(t, err)
		assert.Equal(t, effective, c.EffectiveDate)
		assert.Equal(t, effective.AddDate(1, 0, 0), c.ExpiryDate)
		assert.Equal(t, effective.AddDate(0, 0, 30), c.NextPremiumDueDate)
	})

	t.Run("seeds the cash value ledger for life products", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)

		require.NotNil(t, c.CashValue)
		require.NotNil(t, c.SurrenderValue)
		require.NotNil(t, c.LoanValue)
		assert.True(t, c.CashValue.IsZero())
	})

	t.Run("non-life products carry no cash value", func(t *testing.T) {
		f := newFixture(t)
		auto := *f.product
		auto.ID = id.NewProductID()
		auto.ProductType = catalog.ProductAuto
		require.NoError(t, f.catalog.Products().Create(context.Background(), &auto))

		o := f.approvedOrder()
		o.ProductID = auto.ID
		contractID, _, err := f.service.IssueFromOrder(testCtx(), f.tenantID, o)
		require.NoError(t, err)
		c, err := f.service.Get(testCtx(), f.tenantID, contractID)
		require.NoError(t, err)
		assert.Nil(t, c.CashValue)
		assert.Nil(t, c.SurrenderValue)
		assert.Nil(t, c.LoanValue)
	})

	t.Run("refuses a non-approved order", func(t *testing.T) {
		f := newFixture(t)
		o := f.approvedOrder()
		o.Status = order.StatusUnderReview
		_, _, err := f.service.IssueFromOrder(testCtx(), f.tenantID, o)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("quarterly frequency sets a 90 day premium step", func(t *testing.T) {
		f := newFixture(t)
		o := f.approvedOrder()
		o.PremiumFrequency = id.FrequencyQuarterly
		contractID, _, err := f.service.IssueFromOrder(testCtx(), f.tenantID, o)
		require.NoError(t, err)
		c, err := f.service.Get(testCtx(), f.tenantID, contractID)
		require.NoError(t, err)
		assert.Equal(t, testDay.AddDate(0, 0, 90), c.NextPremiumDueDate)
	})
}

func TestSetStatus(t *testing.T) {
	t.Run("suspension and reinstatement", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)

		suspended, err := f.service.SetStatus(testCtx(), f.tenantID, c.ID, contract.StatusSuspended, "missed premium")
		require.NoError(t, err)
		assert.Equal(t, contract.StatusSuspended, suspended.Status)

		reinstated, err := f.service.SetStatus(testCtx(), f.tenantID, c.ID, contract.StatusActive, "premium caught up")
		require.NoError(t, err)
		assert.Equal(t, contract.StatusActive, reinstated.Status)
		require.Len(t, reinstated.History, 3)
	})

	t.Run("terminal states never leave", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)
		_, err := f.service.SetStatus(testCtx(), f.tenantID, c.ID, contract.StatusCancelled, "customer request")
		require.NoError(t, err)

		_, err = f.service.SetStatus(testCtx(), f.tenantID, c.ID, contract.StatusActive, "oops")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestRenewalStatus(t *testing.T) {
	t.Run("outside the window", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)
		st, err := f.service.RenewalStatus(testCtx(), f.tenantID, c.PolicyNumber)
		require.NoError(t, err)
		assert.False(t, st.Eligible)
		assert.Equal(t, []string{"renewal form"}, st.RequiredDocuments)
	})

	t.Run("eligible inside the 60 day window", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)
		// renewal date is expiry-30d; 60 days before that is ~10 months in
		later := requestcontext.WithTime(context.Background(), testDay.AddDate(0, 10, 0))
		st, err := f.service.RenewalStatus(later, f.tenantID, c.PolicyNumber)
		require.NoError(t, err)
		assert.True(t, st.Eligible)
	})

	t.Run("suspended contracts are not renewal eligible", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)
		_, err := f.service.SetStatus(testCtx(), f.tenantID, c.ID, contract.StatusSuspended, "missed premium")
		require.NoError(t, err)

		later := requestcontext.WithTime(context.Background(), testDay.AddDate(0, 11, 0))
		st, err := f.service.RenewalStatus(later, f.tenantID, c.PolicyNumber)
		require.NoError(t, err)
		assert.False(t, st.Eligible)
	})

	t.Run("age 65 and over requires a medical exam", func(t *testing.T) {
		f := newFixture(t)
		f.customer.DateOfBirth = testDay.AddDate(-70, 0, 0)
		require.NoError(t, f.catalog.Update(context.Background(), f.customer))
		c := f.issue(t)

		st, err := f.service.RenewalStatus(testCtx(), f.tenantID, c.PolicyNumber)
		require.NoError(t, err)
		assert.Contains(t, st.RequiredDocuments, "medical exam")
	})
}

func TestAddBeneficiary(t *testing.T) {
	beneficiary := func(name string, pct int64) contract.BeneficiaryInput {
		return contract.BeneficiaryInput{
			Name:         name,
			Relationship: "spouse",
			Type:         contract.BeneficiaryPrimary,
			Percentage:   decimal.NewFromInt(pct),
		}
	}

	t.Run("appends while the primary sum stays within 100", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)

		_, err := f.service.AddBeneficiary(testCtx(), f.tenantID, c.ID, beneficiary("Fatou", 60))
		require.NoError(t, err)
		updated, err := f.service.AddBeneficiary(testCtx(), f.tenantID, c.ID, beneficiary("Moussa", 40))
		require.NoError(t, err)
		assert.Len(t, updated.Beneficiaries, 2)
	})

	t.Run("rejects a sum past 100", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)

		_, err := f.service.AddBeneficiary(testCtx(), f.tenantID, c.ID, beneficiary("Fatou", 60))
		require.NoError(t, err)
		_, err = f.service.AddBeneficiary(testCtx(), f.tenantID, c.ID, beneficiary("Moussa", 50))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("contingent beneficiaries do not count toward the sum", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)

		_, err := f.service.AddBeneficiary(testCtx(), f.tenantID, c.ID, beneficiary("Fatou", 100))
		require.NoError(t, err)
		_, err = f.service.AddBeneficiary(testCtx(), f.tenantID, c.ID, contract.BeneficiaryInput{
			Name:       "Aminata",
			Type:       contract.BeneficiaryContingent,
			Percentage: decimal.NewFromInt(100),
		})
		require.NoError(t, err)
	})

	t.Run("validates percentage bounds", func(t *testing.T) {
		f := newFixture(t)
		c := f.issue(t)
		_, err := f.service.AddBeneficiary(testCtx(), f.tenantID, c.ID, beneficiary("Fatou", 0))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = f.service.AddBeneficiary(testCtx(), f.tenantID, c.ID, beneficiary("Fatou", 101))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestRecordPremiumPayment(t *testing.T) {
	f := newFixture(t)
	c := f.issue(t)

	paid := testDay.AddDate(0, 1, 2)
	require.NoError(t, f.service.RecordPremiumPayment(testCtx(), f.tenantID, c.ID, paid))

	updated, err := f.service.Get(testCtx(), f.tenantID, c.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastPremiumPaidDate)
	assert.Equal(t, paid, *updated.LastPremiumPaidDate)

	// 30% of the 48000 premium accrues to the life policy's cash value,
	// with surrender at 75% and the loan ceiling at 90% of that
	require.NotNil(t, updated.CashValue)
	assert.True(t, updated.CashValue.Equal(decimal.NewFromInt(14_400)), updated.CashValue.String())
	assert.True(t, updated.SurrenderValue.Equal(decimal.NewFromInt(10_800)), updated.SurrenderValue.String())
	assert.True(t, updated.LoanValue.Equal(decimal.NewFromInt(12_960)), updated.LoanValue.String())

	require.NoError(t, f.service.RecordPremiumPayment(testCtx(), f.tenantID, c.ID, paid.AddDate(0, 1, 0)))
	again, err := f.service.Get(testCtx(), f.tenantID, c.ID)
	require.NoError(t, err)
	assert.True(t, again.CashValue.Equal(decimal.NewFromInt(28_800)), again.CashValue.String())
}
