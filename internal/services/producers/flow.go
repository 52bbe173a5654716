package producers

import (
	"context"

	"TradeLoop/internal/domain/models"
)

// Flow turns call versus put premium into a directional signal.
type Flow struct {
	// premium at which confidence saturates
	fullPremium float64
}

func NewFlow(fullPremium float64) *Flow {
	if fullPremium <= 0 {
		fullPremium = 1_000_000
	}
	return &Flow{fullPremium: fullPremium}
}

func (f *Flow) ID() string { return "flow" }

func (f *Flow) Analyze(ctx context.Context, mc models.MarketContext) (models.Opinion, error) {
	if err := ctx.Err(); err != nil {
		return models.Opinion{}, err
	}
	var calls, puts, dark float64
	for _, sym := range mc.Symbols {
		snap, ok := mc.Flow[sym]
		if !ok {
			continue
		}
		calls += snap.CallPremium
		puts += snap.PutPremium
		dark += snap.DarkPoolVolume
	}
	total := calls + puts
	if total <= 0 {
		return models.Opinion{}, abstain(f.ID(), "no options premium")
	}

	imbalance := (calls - puts) / total
	return opinion(f.ID(), mc.AsOf, imbalance, total/f.fullPremium, map[string]string{
		"call_premium":     ff(calls),
		"put_premium":      ff(puts),
		"dark_pool_volume": ff(dark),
	}), nil
}
