package models

import "time"

// Verdict is the outcome of a risk evaluation.
type Verdict string

const (
	VerdictApprove   Verdict = "approve"
	VerdictAttenuate Verdict = "attenuate"
	VerdictReject    Verdict = "reject"
)

// RiskDecision is produced once per evaluation and consumed once by the dispatcher.
type RiskDecision struct {
	Verdict       Verdict `json:"verdict"`
	Factor        float64 `json:"factor"`
	Reason        string  `json:"reason"`
	SnapshotRef   string  `json:"snapshot_ref"`
	ProjectedVaR  float64 `json:"projected_var"`
	Concentration float64 `json:"concentration"`
}

// Dispatchable reports whether the decision allows an execution intent.
func (d RiskDecision) Dispatchable() bool {
	return (d.Verdict == VerdictApprove || d.Verdict == VerdictAttenuate) && d.Factor > 0
}

// Position is one holding in the externally owned portfolio.
type Position struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	MarketValue float64 `json:"market_value"`
}

// PortfolioState is a read-only snapshot captured once per cycle.
type PortfolioState struct {
	SnapshotID           string             `json:"snapshot_id"`
	TakenAt              time.Time          `json:"taken_at"`
	Equity               float64            `json:"equity"`
	Positions            []Position         `json:"positions,omitempty"`
	Exposure             map[string]float64 `json:"exposure,omitempty"`
	VaR                  float64            `json:"var"`
	CorrelationBreakdown bool               `json:"correlation_breakdown"`
}

// ExposureTo returns the absolute exposure held in an underlying.
func (p PortfolioState) ExposureTo(symbol string) float64 {
	if v, ok := p.Exposure[symbol]; ok {
		if v < 0 {
			return -v
		}
		return v
	}
	var sum float64
	for _, pos := range p.Positions {
		if pos.Symbol == symbol {
			sum += pos.MarketValue
		}
	}
	if sum < 0 {
		return -sum
	}
	return sum
}
