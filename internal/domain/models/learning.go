package models

import "time"

// Parameters is a versioned snapshot of the learned producer weights.
type Parameters struct {
	Version   int64              `json:"version"`
	Weights   map[string]float64 `json:"weights"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Weight returns the multiplier for a producer, 1 when unknown.
func (p Parameters) Weight(producerID string) float64 {
	if w, ok := p.Weights[producerID]; ok && w > 0 {
		return w
	}
	return 1
}

// DefaultParameters is used before the store has ever been written.
func DefaultParameters() Parameters {
	return Parameters{Version: 0, Weights: map[string]float64{}}
}

// Feedback is a settled trade outcome fed back into the parameter store between cycles.
type Feedback struct {
	CycleID    string    `json:"cycle_id" validate:"required"`
	StrategyID string    `json:"strategy_id" validate:"required"`
	PnL        float64   `json:"pnl"`
	Producers  []string  `json:"producers"`
	SettledAt  time.Time `json:"settled_at"`
}
