package service

import (
	"context"

	"TradeLoop/internal/domain/models"
)

// Producer emits one opinion per cycle. Implementations must return promptly once ctx is done.
type Producer interface {
	ID() string
	Analyze(ctx context.Context, mc models.MarketContext) (models.Opinion, error)
}

// RegimeClassifier labels the market. Same input, same label.
type RegimeClassifier interface {
	Classify(ctx context.Context, mc models.MarketContext) (models.RegimeLabel, error)
}

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alerter routes operational alerts.
type Alerter interface {
	Alert(ctx context.Context, severity, source, message string)
}
