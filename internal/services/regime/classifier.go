package regime

import (
	"context"
	"sort"
	"strconv"

	"TradeLoop/internal/domain/models"
	"TradeLoop/internal/domain/repository"
	domsvc "TradeLoop/internal/domain/service"
	"TradeLoop/internal/services/features"
)

type Thresholds struct {
	HighVol              float64
	Trend                float64
	CorrelationBreakdown float64
	MinBars              int
	Timeframe            repository.Timeframe
}

// Classifier is a rule ladder over the bars in the market context. It keeps no state,
// so identical contexts always produce the same label.
type Classifier struct {
	th Thresholds
}

func NewClassifier(th Thresholds) *Classifier {
	if th.MinBars < 3 {
		th.MinBars = 3
	}
	if !repository.IsValidTimeframe(th.Timeframe) {
		th.Timeframe = repository.TF1m
	}
	return &Classifier{th: th}
}

// Reading holds the statistics a label was derived from.
type Reading struct {
	Symbols     int
	Volatility  float64
	Momentum    float64
	Correlation float64
	HasCorr     bool
}

func (c *Classifier) Classify(ctx context.Context, mc models.MarketContext) (models.RegimeLabel, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	label, _ := c.Explain(mc)
	return label, nil
}

// Explain returns the label together with the statistics that produced it.
func (c *Classifier) Explain(mc models.MarketContext) (models.RegimeLabel, Reading) {
	returns := c.returnsBySymbol(mc)
	r := Reading{Symbols: len(returns)}
	if len(returns) == 0 {
		return models.DefaultRegime, r
	}

	keys := make([]string, 0, len(returns))
	for k := range returns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Volatility += features.RealizedVolatility(returns[k], c.th.Timeframe.PeriodsPerYear())
		r.Momentum += features.MomentumZScore(returns[k])
	}
	r.Volatility /= float64(len(keys))
	r.Momentum /= float64(len(keys))
	if len(keys) >= 2 {
		r.Correlation, r.HasCorr = features.MeanPairwiseCorrelation(returns)
	}

	switch {
	case r.HasCorr && r.Correlation < c.th.CorrelationBreakdown:
		return models.RegimeCorrelationBreakdown, r
	case r.Volatility > c.th.HighVol:
		return models.RegimeHighVolatility, r
	case r.Momentum > c.th.Trend:
		return models.RegimeBullMomentum, r
	case r.Momentum < -c.th.Trend:
		return models.RegimeBearMomentum, r
	default:
		return models.RegimeRangeBound, r
	}
}

func (c *Classifier) returnsBySymbol(mc models.MarketContext) map[string][]float64 {
	out := make(map[string][]float64, len(mc.Symbols))
	for _, sym := range mc.Symbols {
		closes := mc.Closes(sym)
		if len(closes) < c.th.MinBars {
			continue
		}
		out[sym] = features.LogReturns(closes)
	}
	return out
}

// Facts renders a reading for logs and cycle notes.
func (r Reading) Facts() map[string]string {
	f := map[string]string{
		"symbols":    strconv.Itoa(r.Symbols),
		"volatility": strconv.FormatFloat(r.Volatility, 'f', 4, 64),
		"momentum":   strconv.FormatFloat(r.Momentum, 'f', 4, 64),
	}
	if r.HasCorr {
		f["correlation"] = strconv.FormatFloat(r.Correlation, 'f', 4, 64)
	}
	return f
}

var _ domsvc.RegimeClassifier = (*Classifier)(nil)
