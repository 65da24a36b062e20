// Package catalog owns the reference entities the lifecycle engine prices
// against: customers and products with their pricing tiers, factors and
// optional features.
package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
)

// RiskProfile buckets a customer's underwriting risk. Literal values are
// part of the wire contract.
type RiskProfile string

const (
	RiskLow    RiskProfile = "low"
	RiskMedium RiskProfile = "medium"
	RiskHigh   RiskProfile = "high"
)

// ParseRiskProfile validates a risk profile literal.
func ParseRiskProfile(s string) (RiskProfile, error) {
	switch r := RiskProfile(s); r {
	case RiskLow, RiskMedium, RiskHigh:
		return r, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown risk profile %q", s)
	}
}

// KYCStatus is the identity verification state gating quote eligibility.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCVerified KYCStatus = "verified"
	KYCRejected KYCStatus = "rejected"
)

// ParseKYCStatus validates a KYC status literal.
func ParseKYCStatus(s string) (KYCStatus, error) {
	switch k := KYCStatus(s); k {
	case KYCPending, KYCVerified, KYCRejected:
		return k, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown kyc status %q", s)
	}
}

// ProductType classifies the insurance line.
type ProductType string

const (
	ProductLife     ProductType = "life"
	ProductHealth   ProductType = "health"
	ProductAuto     ProductType = "auto"
	ProductHome     ProductType = "home"
	ProductBusiness ProductType = "business"
)

// ParseProductType validates a product type literal.
func ParseProductType(s string) (ProductType, error) {
	switch p := ProductType(s); p {
	case ProductLife, ProductHealth, ProductAuto, ProductHome, ProductBusiness:
		return p, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown product type %q", s)
	}
}

// Customer is the insured party.
//
// Invariants:
//   - DateOfBirth is in the past
//   - Once an issued contract references the customer, only contact fields
//     (Email, Phone, Address) may change
type Customer struct {
	ID          id.CustomerID
	TenantID    id.TenantID
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      string
	Occupation  string
	RiskProfile RiskProfile
	KYCStatus   KYCStatus
	Email       string
	Phone       string
	Address     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AgeAt computes the customer's age in whole years at the given date using
// calendar comparison: the year difference, minus one if the birthday has
// not yet occurred that year. Never rounded from day counts.
func (c *Customer) AgeAt(at time.Time) int {
	years := at.Year() - c.DateOfBirth.Year()
	anniversary := time.Date(at.Year(), c.DateOfBirth.Month(), c.DateOfBirth.Day(), 0, 0, 0, 0, at.Location())
	if at.Before(anniversary) {
		years--
	}
	return years
}

// NewCustomer validates and constructs a customer.
func NewCustomer(tenantID id.TenantID, firstName, lastName string, dob time.Time, now time.Time) (*Customer, error) {
	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "customer name is required")
	}
	if !dob.Before(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "date of birth must be in the past")
	}
	return &Customer{
		ID:          id.NewCustomerID(),
		TenantID:    tenantID,
		FirstName:   strings.TrimSpace(firstName),
		LastName:    strings.TrimSpace(lastName),
		DateOfBirth: dob,
		RiskProfile: RiskMedium,
		KYCStatus:   KYCPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TierStatus is the lifecycle state of a pricing tier. Retirement is an
// explicit state, not a deleted-row or boolean flag.
type TierStatus string

const (
	TierActive  TierStatus = "active"
	TierRetired TierStatus = "retired"
)

// PricingTier anchors a (coverage_amount, base_premium) point. Requested
// coverage between anchors is priced by linear ratio scaling.
type PricingTier struct {
	ID             string
	CoverageAmount decimal.Decimal
	BasePremium    decimal.Decimal
	Frequency      id.PremiumFrequency
	Currency       string
	Status         TierStatus
}

// FactorType selects which customer attribute a pricing factor matches on.
type FactorType string

const (
	FactorAgeRange    FactorType = "age_range"
	FactorGender      FactorType = "gender"
	FactorRiskProfile FactorType = "risk_profile"
	FactorOccupation  FactorType = "occupation"
)

// PricingFactor is a multiplicative premium adjustment. A factor matches or
// it does not; non-matching factors contribute nothing (multiplier 1.0).
type PricingFactor struct {
	ID         string
	FactorType FactorType
	// MinAge/MaxAge bound the age_range bucket, inclusive.
	MinAge int
	MaxAge int
	// MatchValue carries the gender or risk profile literal, or the
	// occupation substring, depending on FactorType.
	MatchValue string
	Multiplier decimal.Decimal
	Status     TierStatus
}

// Matches evaluates the factor's predicate against a customer at a point in
// time. Age is computed from date of birth at evaluation time.
func (f *PricingFactor) Matches(c *Customer, at time.Time) bool {
	if f.Status != TierActive {
		return false
	}
	switch f.FactorType {
	case FactorAgeRange:
		age := c.AgeAt(at)
		return age >= f.MinAge && age <= f.MaxAge
	case FactorGender:
		return strings.EqualFold(c.Gender, f.MatchValue)
	case FactorRiskProfile:
		return strings.EqualFold(string(c.RiskProfile), f.MatchValue)
	case FactorOccupation:
		return f.MatchValue != "" &&
			strings.Contains(strings.ToLower(c.Occupation), strings.ToLower(f.MatchValue))
	default:
		return false
	}
}

// ProductFeature is an optional rider that loads the adjusted premium by a
// percentage.
type ProductFeature struct {
	ID                          string
	Name                        string
	AdditionalPremiumPercentage decimal.Decimal
	Status                      TierStatus
}

// ProductStatus is the product's lifecycle state.
type ProductStatus string

const (
	ProductActive  ProductStatus = "active"
	ProductRetired ProductStatus = "retired"
)

// Product is a sellable insurance product owning its pricing configuration.
type Product struct {
	ID                  id.ProductID
	TenantID            id.TenantID
	Name                string
	ProductType         ProductType
	Currency            string
	MinCoverage         decimal.Decimal
	MaxCoverage         decimal.Decimal
	MinAge              int
	MaxAge              int
	RequiresMedicalExam bool
	WaitingPeriodDays   int
	// PolicyTermYears of 0 means the product does not specify a term and
	// contract issuance falls back to the 1-year default.
	PolicyTermYears int
	Status          ProductStatus
	Tiers           []PricingTier
	Factors         []PricingFactor
	Features        []ProductFeature
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActiveTiers returns the tiers eligible for pricing.
func (p *Product) ActiveTiers() []PricingTier {
	out := make([]PricingTier, 0, len(p.Tiers))
	for _, t := range p.Tiers {
		if t.Status == TierActive {
			out = append(out, t)
		}
	}
	return out
}

// FeatureByID looks up an optional feature, active ones only.
func (p *Product) FeatureByID(featureID string) (ProductFeature, bool) {
	for _, f := range p.Features {
		if f.ID == featureID && f.Status == TierActive {
			return f, true
		}
	}
	return ProductFeature{}, false
}

// NewProduct validates and constructs a product.
func NewProduct(tenantID id.TenantID, name string, productType ProductType, now time.Time) (*Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "product name is required")
	}
	if _, err := ParseProductType(string(productType)); err != nil {
		return nil, err
	}
	return &Product{
		ID:          id.NewProductID(),
		TenantID:    tenantID,
		Name:        strings.TrimSpace(name),
		ProductType: productType,
		Currency:    "XOF",
		MinAge:      18,
		MaxAge:      70,
		Status:      ProductActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
