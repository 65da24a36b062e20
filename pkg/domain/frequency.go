package domain

import dErrors "assurly/pkg/domain-errors"

// PremiumFrequency is how often a premium falls due. The literal values are
// part of the wire contract with the API layer and must not change.
type PremiumFrequency string

const (
	FrequencyMonthly    PremiumFrequency = "monthly"
	FrequencyQuarterly  PremiumFrequency = "quarterly"
	FrequencySemiAnnual PremiumFrequency = "semi-annual"
	FrequencyAnnual     PremiumFrequency = "annual"
)

// ParsePremiumFrequency validates a frequency literal at a trust boundary.
func ParsePremiumFrequency(s string) (PremiumFrequency, error) {
	switch f := PremiumFrequency(s); f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencySemiAnnual, FrequencyAnnual:
		return f, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown premium frequency %q", s)
	}
}

// PeriodsPerYear returns the proration divisor: 12, 4, 2 or 1.
func (f PremiumFrequency) PeriodsPerYear() int {
	switch f {
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	case FrequencySemiAnnual:
		return 2
	default:
		return 1
	}
}

// IntervalDays returns the step between consecutive due dates.
func (f PremiumFrequency) IntervalDays() int {
	switch f {
	case FrequencyMonthly:
		return 30
	case FrequencyQuarterly:
		return 90
	case FrequencySemiAnnual:
		return 180
	default:
		return 365
	}
}

func (f PremiumFrequency) String() string { return string(f) }
