package repository

import "time"

// Timeframe is the bar resolution the market source reads.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1s, TF1m, TF5m:
		return true
	}
	return false
}

// NormalizeTimeframe converts a raw string to a supported timeframe, TF1m otherwise.
func NormalizeTimeframe(s string) Timeframe {
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return TF1m
}

// Bucket is the ClickHouse interval expression for the timeframe.
func (tf Timeframe) Bucket() string {
	switch tf {
	case TF1s:
		return "toStartOfSecond(t)"
	case TF5m:
		return "toStartOfFiveMinutes(t)"
	default:
		return "toStartOfMinute(t)"
	}
}

// Duration is the bar width.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1s:
		return time.Second
	case TF5m:
		return 5 * time.Minute
	default:
		return time.Minute
	}
}

// PeriodsPerYear is used to annualize per-bar volatility over regular sessions.
func (tf Timeframe) PeriodsPerYear() float64 {
	const sessionSeconds = 6.5 * 3600
	return 252 * sessionSeconds / tf.Duration().Seconds()
}
