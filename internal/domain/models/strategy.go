package models

// StrategyTemplate is a static strategy definition the synthesizer scores each cycle.
type StrategyTemplate struct {
	ID              string  `json:"id"`
	Bias            float64 `json:"bias"` // -1 bearish .. +1 bullish, 0 neutral premium selling
	RequiredCapital float64 `json:"required_capital"`
	MaxLoss         float64 `json:"max_loss"`
	Underlying      string  `json:"underlying"`
}

// Neutral templates profit from the absence of a directional move.
func (t StrategyTemplate) Neutral() bool { return t.Bias == 0 }

// StrategyCandidate is a ranked, not yet risk-approved proposal.
type StrategyCandidate struct {
	StrategyID      string  `json:"strategy_id"`
	Rationale       string  `json:"rationale"`
	ExpectedEdge    float64 `json:"expected_edge"`
	RequiredCapital float64 `json:"required_capital"`
	MaxLoss         float64 `json:"max_loss"`
	Underlying      string  `json:"underlying"`
	Score           float64 `json:"score"`
	Size            float64 `json:"size"`
}
