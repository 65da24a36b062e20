package domain

import "github.com/shopspring/decimal"

// Money helpers. Premiums are fixed-point decimals in a single currency per
// tenant (XOF in production data, whole-unit amounts). Rounding is always to
// two decimal places and always applied after a multiplication stage, never
// before; pricing tests depend on that ordering.

// Round2 rounds a monetary amount to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Ratio returns num/den as a decimal without premature rounding.
func Ratio(num, den decimal.Decimal) decimal.Decimal {
	return num.Div(den)
}
