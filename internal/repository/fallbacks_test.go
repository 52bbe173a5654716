package repository

import (
	"context"
	"testing"

	"TradeLoop/internal/domain/models"
	applogger "TradeLoop/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryParameterStoreAppliesOncePerCycle(t *testing.T) {
	s := NewMemoryParameterStore(DefaultLearningRate())
	fb := models.Feedback{CycleID: "c1", StrategyID: "momentum", PnL: 2000, Producers: []string{"technical"}}

	p, err := s.Apply(context.Background(), fb)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.Version)
	assert.Greater(t, p.Weight("technical"), 1.0)

	p, err = s.Apply(context.Background(), fb)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.Version)

	cur, _ := s.Current(context.Background())
	assert.Equal(t, p, cur)
}

func TestFallbacks(t *testing.T) {
	_, err := NoPortfolio{}.GetSnapshot(context.Background())
	assert.ErrorIs(t, err, models.ErrNoSnapshot)

	mc, err := NoMarketData{}.GetContext(context.Background(), []string{"SPY"})
	require.NoError(t, err)
	assert.True(t, mc.Empty())

	res, err := NewDryRunExecution(applogger.NewNop()).Submit(context.Background(), models.ExecutionIntent{IntentID: "c1"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "dry-run-c1", res.OrderRef)
}
