// Package pricing computes premiums from a product's tiered base rates and a
// customer's risk-adjustment factors.
//
// The computation is pure: all I/O (loading product and customer) happens
// before the engine is invoked, and "today" comes from the caller's context
// clock. Rounding is to two decimals and always applied after a
// multiplication stage; reordering the rounding changes the result and
// breaks reproducibility.
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"assurly/internal/catalog"
	"assurly/internal/platform/metrics"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/requestcontext"
)

// AppliedFactor snapshots one matched factor so quotes can display how the
// premium was derived even after the product's factors change.
type AppliedFactor struct {
	FactorID   string
	FactorType catalog.FactorType
	Multiplier decimal.Decimal
}

// Result is the full premium breakdown for one (product, coverage, customer,
// frequency) tuple.
type Result struct {
	TierID            string
	BasePremium       decimal.Decimal
	AdjustedPremium   decimal.Decimal
	AdditionalPremium decimal.Decimal
	// FinalPremium is the display amount per premium period.
	FinalPremium decimal.Decimal
	// AnnualPremium is the unprorated yearly total.
	AnnualPremium  decimal.Decimal
	Currency       string
	AppliedFactors []AppliedFactor
}

// Engine prices coverage requests.
type Engine struct {
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{tracer: otel.Tracer("assurly/pricing")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Price computes the premium breakdown. Eligibility is not evaluated here;
// QuoteLifecycle gates eligibility before pricing.
func (e *Engine) Price(
	ctx context.Context,
	product *catalog.Product,
	coverage decimal.Decimal,
	customer *catalog.Customer,
	frequency id.PremiumFrequency,
	selectedFeatureIDs []string,
) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "pricing.Price",
		trace.WithAttributes(
			attribute.String("product_type", string(product.ProductType)),
			attribute.String("frequency", string(frequency)),
		))
	defer span.End()
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObservePricing(start)
		}
	}()

	if coverage.LessThanOrEqual(decimal.Zero) {
		return Result{}, dErrors.New(dErrors.CodeValidation, "coverage amount must be positive")
	}

	tier, ok := selectTier(product.ActiveTiers(), coverage)
	if !ok {
		return Result{}, dErrors.Newf(dErrors.CodeNoPricingTier,
			"product %s has no active pricing tier", product.Name)
	}

	base := tier.BasePremium
	if !tier.CoverageAmount.Equal(coverage) {
		// Ratio pricing: scale the anchor premium linearly by the coverage
		// ratio, then round.
		base = id.Round2(tier.BasePremium.Mul(id.Ratio(coverage, tier.CoverageAmount)))
	}

	now := requestcontext.Now(ctx)
	multiplier := decimal.NewFromInt(1)
	var applied []AppliedFactor
	for _, f := range product.Factors {
		if !f.Matches(customer, now) {
			continue
		}
		multiplier = multiplier.Mul(f.Multiplier)
		applied = append(applied, AppliedFactor{
			FactorID:   f.ID,
			FactorType: f.FactorType,
			Multiplier: f.Multiplier,
		})
	}
	adjusted := id.Round2(base.Mul(multiplier))

	additional := decimal.Zero
	hundred := decimal.NewFromInt(100)
	for _, featureID := range selectedFeatureIDs {
		feature, ok := product.FeatureByID(featureID)
		if !ok {
			return Result{}, dErrors.Newf(dErrors.CodeValidation,
				"unknown product feature %q", featureID)
		}
		additional = additional.Add(
			id.Round2(adjusted.Mul(feature.AdditionalPremiumPercentage).Div(hundred)))
	}

	annual := adjusted.Add(additional)
	periods := decimal.NewFromInt(int64(frequency.PeriodsPerYear()))
	final := id.Round2(annual.Div(periods))

	return Result{
		TierID:            tier.ID,
		BasePremium:       base,
		AdjustedPremium:   adjusted,
		AdditionalPremium: additional,
		FinalPremium:      final,
		AnnualPremium:     annual,
		Currency:          tier.Currency,
		AppliedFactors:    applied,
	}, nil
}

// selectTier picks the tier with the largest coverage_amount that does not
// exceed the requested coverage. When the request is below every anchor, the
// smallest tier prices it (still by ratio).
func selectTier(tiers []catalog.PricingTier, coverage decimal.Decimal) (catalog.PricingTier, bool) {
	if len(tiers) == 0 {
		return catalog.PricingTier{}, false
	}
	var best, smallest *catalog.PricingTier
	for i := range tiers {
		t := &tiers[i]
		if smallest == nil || t.CoverageAmount.LessThan(smallest.CoverageAmount) {
			smallest = t
		}
		if t.CoverageAmount.LessThanOrEqual(coverage) {
			if best == nil || t.CoverageAmount.GreaterThan(best.CoverageAmount) {
				best = t
			}
		}
	}
	if best == nil {
		best = smallest
	}
	return *best, true
}
