package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	applogger "TradeLoop/pkg/logger"
)

// NoMarketData serves an empty context. Every data-driven producer abstains on it.
type NoMarketData struct{}

func (NoMarketData) GetContext(_ context.Context, symbols []string) (models.MarketContext, error) {
	return models.MarketContext{Symbols: symbols, AsOf: time.Now().UTC()}, nil
}

// NoPortfolio never has a snapshot, so the risk gate rejects every candidate.
type NoPortfolio struct{}

func (NoPortfolio) GetSnapshot(context.Context) (models.PortfolioState, error) {
	return models.PortfolioState{}, fmt.Errorf("%w: no portfolio source configured", models.ErrNoSnapshot)
}

// MemoryParameterStore applies the same learning rule as the Redis store, in process.
type MemoryParameterStore struct {
	mu      sync.Mutex
	cur     models.Parameters
	applied map[string]bool
	lr      LearningRate
}

func NewMemoryParameterStore(lr LearningRate) *MemoryParameterStore {
	return &MemoryParameterStore{cur: models.DefaultParameters(), applied: map[string]bool{}, lr: lr}
}

func (s *MemoryParameterStore) Current(context.Context) (models.Parameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur, nil
}

func (s *MemoryParameterStore) Apply(_ context.Context, fb models.Feedback) (models.Parameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied[fb.CycleID] {
		return s.cur, nil
	}
	s.applied[fb.CycleID] = true
	s.cur = s.lr.Next(s.cur, fb, time.Now().UTC())
	return s.cur, nil
}

// DryRunExecution accepts every intent without routing it anywhere.
type DryRunExecution struct{ l *applogger.Logger }

func NewDryRunExecution(l *applogger.Logger) DryRunExecution { return DryRunExecution{l: l} }

func (d DryRunExecution) Submit(_ context.Context, intent models.ExecutionIntent) (models.ExecutionResult, error) {
	d.l.Info("dry-run intent",
		applogger.String("intent_id", intent.IntentID),
		applogger.String("strategy_id", intent.StrategyID),
		applogger.String("underlying", intent.Underlying),
		applogger.Float64("size", intent.Size),
		applogger.Float64("notional", intent.Notional),
	)
	return models.ExecutionResult{IntentID: intent.IntentID, Accepted: true, OrderRef: "dry-run-" + intent.IntentID}, nil
}

var (
	_ domrepo.MarketDataSource = NoMarketData{}
	_ domrepo.PortfolioSource  = NoPortfolio{}
	_ domrepo.ParameterStore   = (*MemoryParameterStore)(nil)
	_ domrepo.ExecutionService = DryRunExecution{}
)
