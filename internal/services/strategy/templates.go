package strategy

import (
	"fmt"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/config"
)

// Templates converts configured strategies, rejecting duplicate ids.
func Templates(cfgs []config.StrategyConfig) ([]models.StrategyTemplate, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("%w: no strategies configured", config.ErrFatalConfig)
	}
	seen := make(map[string]bool, len(cfgs))
	out := make([]models.StrategyTemplate, 0, len(cfgs))
	for _, c := range cfgs {
		if seen[c.ID] {
			return nil, fmt.Errorf("%w: strategy %q defined twice", config.ErrFatalConfig, c.ID)
		}
		seen[c.ID] = true
		out = append(out, models.StrategyTemplate{
			ID:              c.ID,
			Bias:            c.Bias,
			RequiredCapital: c.RequiredCapital,
			MaxLoss:         c.MaxLoss,
			Underlying:      c.Underlying,
		})
	}
	return out, nil
}
