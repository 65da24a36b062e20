package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assurly/internal/catalog"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/requestcontext"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decs(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func testCtx() context.Context {
	return requestcontext.WithTime(context.Background(),
		time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC))
}

func autoProduct() *catalog.Product {
	return &catalog.Product{
		Name:        "Auto Tous Risques",
		ProductType: catalog.ProductAuto,
		Currency:    "XOF",
		Tiers: []catalog.PricingTier{
			{ID: "t-5m", CoverageAmount: dec(5_000_000), BasePremium: dec(260_000), Currency: "XOF", Status: catalog.TierActive},
			{ID: "t-10m", CoverageAmount: dec(10_000_000), BasePremium: dec(480_000), Currency: "XOF", Status: catalog.TierActive},
			{ID: "t-20m", CoverageAmount: dec(20_000_000), BasePremium: dec(900_000), Currency: "XOF", Status: catalog.TierActive},
		},
		Factors: []catalog.PricingFactor{
			{ID: "f-age", FactorType: catalog.FactorAgeRange, MinAge: 18, MaxAge: 30, Multiplier: decs("1.2"), Status: catalog.TierActive},
			{ID: "f-risk", FactorType: catalog.FactorRiskProfile, MatchValue: "medium", Multiplier: decs("1.0"), Status: catalog.TierActive},
		},
		Features: []catalog.ProductFeature{
			{ID: "ft-glass", Name: "Bris de glace", AdditionalPremiumPercentage: decs("5"), Status: catalog.TierActive},
		},
	}
}

func customerAged28() *catalog.Customer {
	return &catalog.Customer{
		DateOfBirth: time.Date(1998, time.March, 10, 0, 0, 0, 0, time.UTC),
		RiskProfile: catalog.RiskMedium,
		KYCStatus:   catalog.KYCVerified,
	}
}

// TestPrice_ReferenceScenario is the reproducibility anchor: customer aged
// 28, medium risk, auto product with a 10M tier at 480,000, age factor x1.2
// and risk factor x1.0.
func TestPrice_ReferenceScenario(t *testing.T) {
	engine := NewEngine()
	res, err := engine.Price(testCtx(), autoProduct(), dec(10_000_000), customerAged28(), id.FrequencyMonthly, nil)
	require.NoError(t, err)

	assert.True(t, res.BasePremium.Equal(dec(480_000)), "base %s", res.BasePremium)
	assert.True(t, res.AdjustedPremium.Equal(dec(576_000)), "adjusted %s", res.AdjustedPremium)
	assert.True(t, res.FinalPremium.Equal(dec(48_000)), "final %s", res.FinalPremium)
	assert.True(t, res.AnnualPremium.Equal(dec(576_000)), "annual %s", res.AnnualPremium)
	require.Len(t, res.AppliedFactors, 2)
	assert.Equal(t, "f-age", res.AppliedFactors[0].FactorID)
	assert.Equal(t, "f-risk", res.AppliedFactors[1].FactorID)
}

func TestPrice_TierSelection(t *testing.T) {
	engine := NewEngine()
	customer := customerAged28()

	t.Run("exact tier match uses anchor premium", func(t *testing.T) {
		res, err := engine.Price(testCtx(), autoProduct(), dec(5_000_000), customer, id.FrequencyAnnual, nil)
		require.NoError(t, err)
		assert.Equal(t, "t-5m", res.TierID)
		assert.True(t, res.BasePremium.Equal(dec(260_000)))
	})

	t.Run("between anchors picks largest tier below and scales", func(t *testing.T) {
		// 15M sits between the 10M and 20M anchors: 480,000 * 15/10.
		res, err := engine.Price(testCtx(), autoProduct(), dec(15_000_000), customer, id.FrequencyAnnual, nil)
		require.NoError(t, err)
		assert.Equal(t, "t-10m", res.TierID)
		assert.True(t, res.BasePremium.Equal(dec(720_000)), "base %s", res.BasePremium)
	})

	t.Run("below smallest anchor falls back to smallest tier", func(t *testing.T) {
		// 2M is below every anchor: 260,000 * 2/5.
		res, err := engine.Price(testCtx(), autoProduct(), dec(2_000_000), customer, id.FrequencyAnnual, nil)
		require.NoError(t, err)
		assert.Equal(t, "t-5m", res.TierID)
		assert.True(t, res.BasePremium.Equal(dec(104_000)), "base %s", res.BasePremium)
	})

	t.Run("retired tiers are invisible", func(t *testing.T) {
		product := autoProduct()
		product.Tiers[1].Status = catalog.TierRetired
		res, err := engine.Price(testCtx(), product, dec(10_000_000), customer, id.FrequencyAnnual, nil)
		require.NoError(t, err)
		assert.Equal(t, "t-5m", res.TierID)
	})

	t.Run("no active tiers", func(t *testing.T) {
		product := autoProduct()
		product.Tiers = nil
		_, err := engine.Price(testCtx(), product, dec(10_000_000), customer, id.FrequencyAnnual, nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNoPricingTier))
	})
}

// TestPrice_FrequencyProration verifies final_premium * periods_per_year ==
// annual_premium for every frequency (within rounding tolerance).
func TestPrice_FrequencyProration(t *testing.T) {
	engine := NewEngine()
	customer := customerAged28()
	tolerance := decs("0.05")

	for _, tc := range []struct {
		frequency id.PremiumFrequency
		periods   int64
	}{
		{id.FrequencyMonthly, 12},
		{id.FrequencyQuarterly, 4},
		{id.FrequencySemiAnnual, 2},
		{id.FrequencyAnnual, 1},
	} {
		t.Run(string(tc.frequency), func(t *testing.T) {
			res, err := engine.Price(testCtx(), autoProduct(), dec(10_000_000), customer, tc.frequency, nil)
			require.NoError(t, err)
			recomposed := res.FinalPremium.Mul(dec(tc.periods))
			diff := recomposed.Sub(res.AnnualPremium).Abs()
			assert.True(t, diff.LessThanOrEqual(tolerance),
				"final %s x %d = %s, annual %s", res.FinalPremium, tc.periods, recomposed, res.AnnualPremium)
			assert.True(t, res.AnnualPremium.Equal(dec(576_000)))
		})
	}
}

func TestPrice_FeatureLoading(t *testing.T) {
	engine := NewEngine()
	customer := customerAged28()

	t.Run("adds percentage of adjusted premium", func(t *testing.T) {
		res, err := engine.Price(testCtx(), autoProduct(), dec(10_000_000), customer, id.FrequencyAnnual, []string{"ft-glass"})
		require.NoError(t, err)
		// 5% of 576,000.
		assert.True(t, res.AdditionalPremium.Equal(dec(28_800)), "additional %s", res.AdditionalPremium)
		assert.True(t, res.AnnualPremium.Equal(dec(604_800)))
	})

	t.Run("unknown feature id is a validation error", func(t *testing.T) {
		_, err := engine.Price(testCtx(), autoProduct(), dec(10_000_000), customer, id.FrequencyAnnual, []string{"ft-missing"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestPrice_FactorMatching(t *testing.T) {
	engine := NewEngine()

	t.Run("unmatched factors contribute nothing", func(t *testing.T) {
		older := &catalog.Customer{
			DateOfBirth: time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC),
			RiskProfile: catalog.RiskLow,
		}
		res, err := engine.Price(testCtx(), autoProduct(), dec(10_000_000), older, id.FrequencyAnnual, nil)
		require.NoError(t, err)
		assert.True(t, res.AdjustedPremium.Equal(dec(480_000)))
		assert.Empty(t, res.AppliedFactors)
	})

	t.Run("multipliers compound", func(t *testing.T) {
		product := autoProduct()
		product.Factors = append(product.Factors, catalog.PricingFactor{
			ID: "f-occ", FactorType: catalog.FactorOccupation, MatchValue: "driver",
			Multiplier: decs("1.5"), Status: catalog.TierActive,
		})
		customer := customerAged28()
		customer.Occupation = "Taxi Driver"
		res, err := engine.Price(testCtx(), product, dec(10_000_000), customer, id.FrequencyAnnual, nil)
		require.NoError(t, err)
		// 480,000 * 1.2 * 1.0 * 1.5
		assert.True(t, res.AdjustedPremium.Equal(dec(864_000)), "adjusted %s", res.AdjustedPremium)
		assert.Len(t, res.AppliedFactors, 3)
	})
}

func TestPrice_RejectsNonPositiveCoverage(t *testing.T) {
	engine := NewEngine()
	_, err := engine.Price(testCtx(), autoProduct(), decimal.Zero, customerAged28(), id.FrequencyAnnual, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
