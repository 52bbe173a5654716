package strategy

import (
	"fmt"
	"math"
	"sort"

	"TradeLoop/internal/domain/models"
)

// Consensus is the weighted view across all responding producers.
type Consensus struct {
	Direction float64 // Σ(s·c·w) / Σ(c·w)
	Agreement float64 // |Σ(s·c·w)| / Σ(c·w)
	Coverage  float64 // Σc / expected producers
	Responded int
}

// Blend folds opinions into a consensus. ok is false when no confidence mass responded.
func Blend(opinions []models.Opinion, params models.Parameters, expected int) (Consensus, bool) {
	var num, den, mass float64
	for _, op := range opinions {
		w := params.Weight(op.ProducerID)
		num += op.SignalStrength * op.Confidence * w
		den += op.Confidence * w
		mass += op.Confidence
	}
	if !(den > 0) || math.IsInf(den, 0) || math.IsNaN(num) {
		return Consensus{}, false
	}
	if expected < len(opinions) {
		expected = len(opinions)
	}
	return Consensus{
		Direction: num / den,
		Agreement: math.Abs(num) / den,
		Coverage:  models.Clamp(mass/float64(expected), 0, 1),
		Responded: len(opinions),
	}, true
}

// Synthesizer scores every template against the consensus of a cycle.
type Synthesizer struct {
	templates []models.StrategyTemplate
	size      float64
}

func NewSynthesizer(templates []models.StrategyTemplate, defaultSize float64) *Synthesizer {
	if defaultSize <= 0 {
		defaultSize = 1
	}
	return &Synthesizer{templates: templates, size: defaultSize}
}

// Synthesize returns candidates with a positive score, best first. Ties go to the
// smaller capital requirement, then to the strategy id.
func (s *Synthesizer) Synthesize(opinions []models.Opinion, params models.Parameters, expected int) []models.StrategyCandidate {
	cons, ok := Blend(opinions, params, expected)
	if !ok {
		return []models.StrategyCandidate{}
	}

	out := make([]models.StrategyCandidate, 0, len(s.templates))
	for _, t := range s.templates {
		var score float64
		if t.Neutral() {
			score = (1 - math.Abs(cons.Direction)) * cons.Coverage
		} else {
			score = cons.Direction * t.Bias
		}
		if !(score > 0) {
			continue
		}
		out = append(out, models.StrategyCandidate{
			StrategyID: t.ID,
			Rationale: fmt.Sprintf("consensus=%+.3f agreement=%.3f coverage=%.3f bias=%+.2f producers=%d",
				cons.Direction, cons.Agreement, cons.Coverage, t.Bias, cons.Responded),
			ExpectedEdge:    score * cons.Agreement,
			RequiredCapital: t.RequiredCapital,
			MaxLoss:         t.MaxLoss,
			Underlying:      t.Underlying,
			Score:           score,
			Size:            s.size,
		})
	}
	Rank(out)
	return out
}

// Rank sorts candidates in place into selection order.
func Rank(cands []models.StrategyCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RequiredCapital != b.RequiredCapital {
			return a.RequiredCapital < b.RequiredCapital
		}
		return a.StrategyID < b.StrategyID
	})
}
