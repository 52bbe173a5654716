// Package producers holds the opinion producers fanned out every cycle.
package producers

import (
	"fmt"
	"strconv"
	"time"

	"TradeLoop/internal/domain/models"
)

func abstain(id, format string, a ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", id, models.ErrAbstained, fmt.Sprintf(format, a...))
}

func opinion(id string, asOf time.Time, strength, confidence float64, facts map[string]string) models.Opinion {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return models.Opinion{
		ProducerID:      id,
		Timestamp:       asOf,
		SignalStrength:  models.Clamp(strength, -1, 1),
		Confidence:      models.Clamp(confidence, 0, 1),
		SupportingFacts: facts,
	}
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
