package repository

import (
	"context"

	"TradeLoop/internal/domain/models"
)

// MarketDataSource assembles the market view for a set of symbols.
type MarketDataSource interface {
	GetContext(ctx context.Context, symbols []string) (models.MarketContext, error)
}

// PortfolioSource returns a consistent, read-only portfolio snapshot.
type PortfolioSource interface {
	GetSnapshot(ctx context.Context) (models.PortfolioState, error)
}

// ExecutionService accepts one execution intent. Retries and queueing are its own concern.
type ExecutionService interface {
	Submit(ctx context.Context, intent models.ExecutionIntent) (models.ExecutionResult, error)
}

// AuditSink persists cycle records. Append never blocks the caller on an unavailable backend.
type AuditSink interface {
	Append(ctx context.Context, rec models.CycleRecord)
}

// CycleStore reads back persisted cycle records.
type CycleStore interface {
	Last(ctx context.Context) (models.CycleRecord, error)
}

// ParameterStore is the external versioned store of learned weights.
type ParameterStore interface {
	Current(ctx context.Context) (models.Parameters, error)
	Apply(ctx context.Context, fb models.Feedback) (models.Parameters, error)
}

// QuoteBook serves the latest streamed quotes.
type QuoteBook interface {
	Latest(symbols []string) map[string]models.Quote
}

// Metrics records loop-level observations.
type Metrics interface {
	ObserveCycle(outcome string, seconds float64)
	ObserveStage(stage string, seconds float64)
	RecordAbstention(producer, reason string)
	RecordVerdict(verdict string)
	RecordRegime(regime string)
	RecordDispatchFailure()
}
