package models

import (
	"fmt"
	"math"
	"time"
)

// Opinion is one producer's scored view of the market for the current cycle.
type Opinion struct {
	ProducerID      string            `json:"producer_id"`
	Timestamp       time.Time         `json:"timestamp"`
	SignalStrength  float64           `json:"signal_strength"`
	Confidence      float64           `json:"confidence"`
	SupportingFacts map[string]string `json:"supporting_facts,omitempty"`
}

// Validate checks the value ranges of an opinion.
func (o Opinion) Validate() error {
	if o.ProducerID == "" {
		return fmt.Errorf("opinion: producer id required")
	}
	if !finite(o.SignalStrength) || o.SignalStrength < -1 || o.SignalStrength > 1 {
		return fmt.Errorf("opinion %s: signal strength %.4f out of [-1,1]", o.ProducerID, o.SignalStrength)
	}
	if !finite(o.Confidence) || o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("opinion %s: confidence %.4f out of [0,1]", o.ProducerID, o.Confidence)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
