package producers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/cache"
	"TradeLoop/pkg/config"
	"TradeLoop/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trendingBars(symbol string, n int, step float64) []models.Candle {
	out := make([]models.Candle, n)
	price := 100.0
	for i := range out {
		// small wiggle so the deviation is never zero
		wiggle := 0.0005
		if i%2 == 1 {
			wiggle = -0.0005
		}
		price *= math.Exp(step + wiggle)
		out[i] = models.Candle{Symbol: symbol, Close: price}
	}
	return out
}

func TestTechnicalDirection(t *testing.T) {
	p := NewTechnical(10)
	mc := models.MarketContext{
		Symbols: []string{"SPY", "QQQ"},
		Bars: map[string][]models.Candle{
			"SPY": trendingBars("SPY", 30, 0.002),
			"QQQ": trendingBars("QQQ", 4, 0.002),
		},
	}
	op, err := p.Analyze(context.Background(), mc)
	require.NoError(t, err)
	require.NoError(t, op.Validate())
	assert.Greater(t, op.SignalStrength, 0.5)
	assert.InDelta(t, 0.5, op.Confidence, 1e-9, "half the symbols have enough bars")
	assert.Equal(t, "1", op.SupportingFacts["symbols"])

	mc.Bars["SPY"] = trendingBars("SPY", 30, -0.002)
	op, err = p.Analyze(context.Background(), mc)
	require.NoError(t, err)
	assert.Less(t, op.SignalStrength, -0.5)
}

func TestTechnicalAbstainsWithoutBars(t *testing.T) {
	_, err := NewTechnical(10).Analyze(context.Background(), models.MarketContext{Symbols: []string{"SPY"}})
	assert.ErrorIs(t, err, models.ErrAbstained)
}

func TestSentimentWeightsAndWindow(t *testing.T) {
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)
	mc := models.MarketContext{
		AsOf: now,
		News: []models.NewsItem{
			{Sentiment: 0.8, Relevance: 3, PublishedAt: now.Add(-time.Minute)},
			{Sentiment: -0.4, Relevance: 1, PublishedAt: now.Add(-5 * time.Minute)},
			{Sentiment: -1, Relevance: 10, PublishedAt: now.Add(-2 * time.Hour)},
		},
	}
	op, err := NewSentiment(30*time.Minute, 4).Analyze(context.Background(), mc)
	require.NoError(t, err)
	assert.InDelta(t, (0.8*3-0.4)/4, op.SignalStrength, 1e-9)
	assert.InDelta(t, 0.5, op.Confidence, 1e-9)

	mc.News = mc.News[2:]
	_, err = NewSentiment(30*time.Minute, 4).Analyze(context.Background(), mc)
	assert.ErrorIs(t, err, models.ErrAbstained)
}

func TestFlowImbalance(t *testing.T) {
	mc := models.MarketContext{
		Symbols: []string{"SPY", "QQQ"},
		Flow: map[string]models.FlowSnapshot{
			"SPY": {CallPremium: 300_000, PutPremium: 100_000},
			"QQQ": {CallPremium: 100_000, PutPremium: 100_000, DarkPoolVolume: 5},
		},
	}
	op, err := NewFlow(1_000_000).Analyze(context.Background(), mc)
	require.NoError(t, err)
	assert.InDelta(t, 0.2/0.6, op.SignalStrength, 1e-9)
	assert.InDelta(t, 0.6, op.Confidence, 1e-9)

	_, err = NewFlow(0).Analyze(context.Background(), models.MarketContext{Symbols: []string{"SPY"}})
	assert.ErrorIs(t, err, models.ErrAbstained)
}

func TestProducersHonorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, p := range []interface {
		Analyze(context.Context, models.MarketContext) (models.Opinion, error)
	}{NewTechnical(3), NewSentiment(0, 1), NewFlow(1)} {
		_, err := p.Analyze(ctx, models.MarketContext{})
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestFundamentalRetriesAndCaches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/fundamentals", r.URL.Path)
		assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbols"))
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(fundamentalResponse{Score: 0.3, Confidence: 0.7, Facts: map[string]string{"pe": "21.5"}})
	}))
	defer srv.Close()

	mem := cache.NewMemoryCache()
	defer mem.Close()
	p := NewFundamental(logger.NewNop(), FundamentalConfig{
		URL: srv.URL, Timeout: time.Second, CacheTTL: time.Minute, Retries: 2, Backoff: time.Millisecond,
	}, mem)

	mc := models.MarketContext{Symbols: []string{"MSFT", "AAPL"}}
	op, err := p.Analyze(context.Background(), mc)
	require.NoError(t, err)
	assert.Equal(t, 0.3, op.SignalStrength)
	assert.Equal(t, "21.5", op.SupportingFacts["pe"])
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	op, err = p.Analyze(context.Background(), mc)
	require.NoError(t, err)
	assert.Equal(t, "true", op.SupportingFacts["cached"])
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFundamentalDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad symbols", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewFundamental(logger.NewNop(), FundamentalConfig{URL: srv.URL, Retries: 3, Backoff: time.Millisecond}, nil)
	_, err := p.Analyze(context.Background(), models.MarketContext{Symbols: []string{"AAPL"}})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestBuildRegistry(t *testing.T) {
	cfg := &config.Config{}
	cfg.Regime.MinBars = 20
	cfg.Producers.Enabled = []string{"technical", "flow", "sentiment"}

	ps, err := Build(logger.NewNop(), cfg, nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []string{"technical", "flow", "sentiment"}, ids)

	cfg.Producers.Enabled = []string{"technical", "astrology"}
	_, err = Build(logger.NewNop(), cfg, nil)
	assert.True(t, errors.Is(err, config.ErrFatalConfig))

	cfg.Producers.Enabled = []string{"fundamental"}
	_, err = Build(logger.NewNop(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrFatalConfig)

	cfg.Producers.Enabled = nil
	_, err = Build(logger.NewNop(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrFatalConfig)
}
