package models

import "fmt"

// RegimeLabel is the single market classification active in a cycle.
type RegimeLabel string

const (
	RegimeBullMomentum         RegimeLabel = "bull_momentum"
	RegimeBearMomentum         RegimeLabel = "bear_momentum"
	RegimeHighVolatility       RegimeLabel = "high_volatility"
	RegimeRangeBound           RegimeLabel = "range_bound"
	RegimeCorrelationBreakdown RegimeLabel = "correlation_breakdown"
)

// DefaultRegime is used whenever classification fails or is inconclusive.
const DefaultRegime = RegimeRangeBound

// AllRegimes lists the taxonomy in a stable order.
func AllRegimes() []RegimeLabel {
	return []RegimeLabel{
		RegimeBullMomentum,
		RegimeBearMomentum,
		RegimeHighVolatility,
		RegimeRangeBound,
		RegimeCorrelationBreakdown,
	}
}

func (r RegimeLabel) Valid() bool {
	switch r {
	case RegimeBullMomentum, RegimeBearMomentum, RegimeHighVolatility, RegimeRangeBound, RegimeCorrelationBreakdown:
		return true
	}
	return false
}

func (r RegimeLabel) String() string { return string(r) }

// ParseRegime maps a raw string onto the taxonomy.
func ParseRegime(s string) (RegimeLabel, error) {
	r := RegimeLabel(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown regime %q", s)
	}
	return r, nil
}
