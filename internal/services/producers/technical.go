package producers

import (
	"context"
	"math"
	"strconv"

	"TradeLoop/internal/domain/models"
	"TradeLoop/internal/services/features"
)

// Technical reads momentum as the z-score of cumulative log returns.
type Technical struct {
	minBars int
}

func NewTechnical(minBars int) *Technical {
	if minBars < 3 {
		minBars = 3
	}
	return &Technical{minBars: minBars}
}

func (t *Technical) ID() string { return "technical" }

func (t *Technical) Analyze(ctx context.Context, mc models.MarketContext) (models.Opinion, error) {
	if err := ctx.Err(); err != nil {
		return models.Opinion{}, err
	}
	var zsum float64
	covered := 0
	for _, sym := range mc.Symbols {
		closes := mc.Closes(sym)
		if len(closes) < t.minBars {
			continue
		}
		zsum += features.MomentumZScore(features.LogReturns(closes))
		covered++
	}
	if covered == 0 {
		return models.Opinion{}, abstain(t.ID(), "fewer than %d bars for every symbol", t.minBars)
	}

	z := zsum / float64(covered)
	coverage := float64(covered) / float64(len(mc.Symbols))
	conviction := models.Clamp(math.Abs(z)/2, 0.2, 1)
	return opinion(t.ID(), mc.AsOf, math.Tanh(z/2), coverage*conviction, map[string]string{
		"momentum_z": ff(z),
		"symbols":    strconv.Itoa(covered),
	}), nil
}
