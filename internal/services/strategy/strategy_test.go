package strategy

import (
	"math"
	"testing"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var templates = []models.StrategyTemplate{
	{ID: "momentum", Bias: 1, RequiredCapital: 20000, MaxLoss: 2000, Underlying: "SPY"},
	{ID: "covered_call", Bias: 0.5, RequiredCapital: 50000, MaxLoss: 5000, Underlying: "SPY"},
	{ID: "protective_put", Bias: -1, RequiredCapital: 5000, MaxLoss: 1000, Underlying: "SPY"},
	{ID: "iron_condor", Bias: 0, RequiredCapital: 10000, MaxLoss: 3000, Underlying: "SPY"},
	{ID: "mean_reversion", Bias: 0, RequiredCapital: 15000, MaxLoss: 1500, Underlying: "QQQ"},
}

func ids(cands []models.StrategyCandidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.StrategyID
	}
	return out
}

func TestBlend(t *testing.T) {
	ops := []models.Opinion{
		{ProducerID: "technical", SignalStrength: 1, Confidence: 0.5},
		{ProducerID: "flow", SignalStrength: -1, Confidence: 0.5},
	}
	params := models.Parameters{Weights: map[string]float64{"technical": 3}}
	c, ok := Blend(ops, params, 4)
	require.True(t, ok)
	assert.InDelta(t, 0.5, c.Direction, 1e-9)
	assert.InDelta(t, 0.25, c.Coverage, 1e-9)

	_, ok = Blend(nil, params, 4)
	assert.False(t, ok)
	_, ok = Blend([]models.Opinion{{ProducerID: "x", SignalStrength: 1}}, params, 1)
	assert.False(t, ok, "zero confidence carries no mass")
}

func TestSynthesizeNonFiniteOpinionYieldsNoCandidates(t *testing.T) {
	s := NewSynthesizer(templates, 1)
	ops := []models.Opinion{
		{ProducerID: "technical", SignalStrength: 0.8, Confidence: 1},
		{ProducerID: "flow", SignalStrength: math.NaN(), Confidence: 1},
	}
	assert.Empty(t, s.Synthesize(ops, models.DefaultParameters(), 2))
}

func TestSynthesizeBullishConsensus(t *testing.T) {
	s := NewSynthesizer(templates, 2)
	ops := []models.Opinion{
		{ProducerID: "technical", SignalStrength: 0.8, Confidence: 1},
		{ProducerID: "sentiment", SignalStrength: 0.4, Confidence: 1},
	}
	got := s.Synthesize(ops, models.DefaultParameters(), 2)

	// neutral templates tie on score, cheaper one first; protective_put scores negative
	assert.Equal(t, []string{"momentum", "iron_condor", "mean_reversion", "covered_call"}, ids(got))
	assert.InDelta(t, 0.6, got[0].Score, 1e-9)
	assert.InDelta(t, 0.4, got[1].Score, 1e-9)
	assert.InDelta(t, got[1].Score, got[2].Score, 1e-12)
	assert.InDelta(t, 0.3, got[3].Score, 1e-9)
	for _, c := range got {
		assert.Greater(t, c.Score, 0.0)
		assert.Equal(t, 2.0, c.Size)
		assert.NotEmpty(t, c.Rationale)
	}
}

func TestSynthesizeAbstentionsShrinkNeutralScores(t *testing.T) {
	s := NewSynthesizer(templates, 1)
	ops := []models.Opinion{{ProducerID: "technical", SignalStrength: 0, Confidence: 1}}

	full := s.Synthesize(ops, models.DefaultParameters(), 1)
	partial := s.Synthesize(ops, models.DefaultParameters(), 4)
	require.Len(t, full, 2)
	require.Len(t, partial, 2)
	assert.InDelta(t, 1.0, full[0].Score, 1e-9)
	assert.InDelta(t, 0.25, partial[0].Score, 1e-9)
}

func TestSynthesizeEmpty(t *testing.T) {
	got := NewSynthesizer(templates, 1).Synthesize(nil, models.DefaultParameters(), 3)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRankTieBreaks(t *testing.T) {
	c := []models.StrategyCandidate{
		{StrategyID: "b", Score: 0.5, RequiredCapital: 100},
		{StrategyID: "a", Score: 0.5, RequiredCapital: 100},
		{StrategyID: "c", Score: 0.5, RequiredCapital: 50},
		{StrategyID: "d", Score: 0.9, RequiredCapital: 500},
	}
	Rank(c)
	assert.Equal(t, []string{"d", "c", "a", "b"}, ids(c))
}

func eligibilityConfig() map[string][]string {
	return map[string][]string{
		"bull_momentum":         {"momentum", "covered_call"},
		"bear_momentum":         {"protective_put"},
		"high_volatility":       {"protective_put", "iron_condor"},
		"range_bound":           {"iron_condor", "mean_reversion"},
		"correlation_breakdown": {},
	}
}

func TestSelectRangeBoundSkipsIneligibleLeader(t *testing.T) {
	e, err := ValidateEligibility(eligibilityConfig(), templates)
	require.NoError(t, err)
	sel := NewSelector(e)

	ranked := []models.StrategyCandidate{
		{StrategyID: "momentum", Score: 0.9},
		{StrategyID: "iron_condor", Score: 0.7},
	}
	got, ok := sel.Select(ranked, models.RegimeRangeBound)
	require.True(t, ok)
	assert.Equal(t, "iron_condor", got.StrategyID)
}

func TestSelectNeverReturnsIneligible(t *testing.T) {
	e, err := ValidateEligibility(eligibilityConfig(), templates)
	require.NoError(t, err)
	sel := NewSelector(e)

	ranked := []models.StrategyCandidate{
		{StrategyID: "momentum", Score: 0.9},
		{StrategyID: "covered_call", Score: 0.4},
	}
	for _, r := range models.AllRegimes() {
		got, ok := sel.Select(ranked, r)
		if ok {
			assert.True(t, e.Allowed(r, got.StrategyID), "regime %s picked %s", r, got.StrategyID)
		}
	}
	_, ok := sel.Select(ranked, models.RegimeCorrelationBreakdown)
	assert.False(t, ok)
	_, ok = sel.Select(nil, models.RegimeBullMomentum)
	assert.False(t, ok)

	got, ok := sel.Select([]models.StrategyCandidate{{StrategyID: "mean_reversion"}}, models.RegimeLabel("sideways"))
	require.True(t, ok)
	assert.Equal(t, "mean_reversion", got.StrategyID)
}

func TestValidateEligibility(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string][]string)
	}{
		{"missing regime", func(m map[string][]string) { delete(m, "bear_momentum") }},
		{"unknown regime", func(m map[string][]string) { m["sideways"] = nil }},
		{"unknown strategy", func(m map[string][]string) { m["bull_momentum"] = []string{"moonshot"} }},
		{"empty default", func(m map[string][]string) { m["range_bound"] = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := eligibilityConfig()
			tt.mutate(m)
			_, err := ValidateEligibility(m, templates)
			assert.ErrorIs(t, err, config.ErrFatalConfig)
		})
	}
}

func TestTemplates(t *testing.T) {
	got, err := Templates([]config.StrategyConfig{{ID: "iron_condor", RequiredCapital: 1}})
	require.NoError(t, err)
	assert.True(t, got[0].Neutral())

	_, err = Templates([]config.StrategyConfig{{ID: "a"}, {ID: "a"}})
	assert.ErrorIs(t, err, config.ErrFatalConfig)
	_, err = Templates(nil)
	assert.ErrorIs(t, err, config.ErrFatalConfig)
}
