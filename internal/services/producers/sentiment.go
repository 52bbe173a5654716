package producers

import (
	"context"
	"strconv"
	"time"

	"TradeLoop/internal/domain/models"
)

// Sentiment averages pre-scored headline sentiment weighted by relevance.
type Sentiment struct {
	window     time.Duration
	saturation int
}

// NewSentiment only counts news inside window; saturation is the headline count at
// which confidence stops growing.
func NewSentiment(window time.Duration, saturation int) *Sentiment {
	if saturation <= 0 {
		saturation = 5
	}
	return &Sentiment{window: window, saturation: saturation}
}

func (s *Sentiment) ID() string { return "sentiment" }

func (s *Sentiment) Analyze(ctx context.Context, mc models.MarketContext) (models.Opinion, error) {
	if err := ctx.Err(); err != nil {
		return models.Opinion{}, err
	}
	var weighted, weights float64
	n := 0
	for _, item := range mc.News {
		if s.window > 0 && !mc.AsOf.IsZero() && mc.AsOf.Sub(item.PublishedAt) > s.window {
			continue
		}
		rel := item.Relevance
		if rel <= 0 {
			rel = 1
		}
		weighted += models.Clamp(item.Sentiment, -1, 1) * rel
		weights += rel
		n++
	}
	if n == 0 || weights == 0 {
		return models.Opinion{}, abstain(s.ID(), "no recent news")
	}

	score := weighted / weights
	confidence := float64(n) / float64(s.saturation)
	return opinion(s.ID(), mc.AsOf, score, confidence, map[string]string{
		"headlines": strconv.Itoa(n),
		"score":     ff(score),
	}), nil
}
