package di

import (
	"context"
	"testing"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("../../config/config.yaml")
	require.NoError(t, err)
	cfg.Logging.Output = "stderr"
	cfg.Execution.URL = ""
	cfg.Metrics.Enabled = false
	return cfg
}

func TestInitializeAppWithoutBackends(t *testing.T) {
	app, cleanup, err := InitializeApp(loadConfig(t))
	require.NoError(t, err)
	defer cleanup()

	// no market data: every producer abstains
	rec := app.Cycle().RunOnce(context.Background(), 800*time.Millisecond)
	assert.NotEmpty(t, rec.CycleID)
	assert.Equal(t, models.OutcomeNoCandidate, rec.Outcome)
	assert.Equal(t, models.DefaultRegime, rec.Regime)
}

func TestFatalConfigStopsStartup(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Regime.Eligibility["range_bound"] = []string{"unknown_strategy"}

	_, _, err := InitializeApp(cfg)
	require.ErrorIs(t, err, config.ErrFatalConfig)
}

func TestDisabledBackendsFallBack(t *testing.T) {
	cfg := loadConfig(t)
	l, err := ProvideLogger(cfg)
	require.NoError(t, err)

	rc, cleanup := ProvideRedisClient(cfg, l)
	defer cleanup()
	assert.Nil(t, rc)

	_, err = ProvidePortfolioSource(cfg, nil).GetSnapshot(context.Background())
	assert.ErrorIs(t, err, models.ErrNoSnapshot)

	res, err := ProvideExecutionService(cfg, l).Submit(context.Background(), models.ExecutionIntent{IntentID: "c1"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	assert.Nil(t, ProvideAlertQueue(cfg, l, nil))
	assert.Nil(t, ProvideQuoteBook(cfg, l, nil))
}
