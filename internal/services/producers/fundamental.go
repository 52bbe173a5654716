package producers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/cache"
	xhttp "TradeLoop/pkg/http"
	"TradeLoop/pkg/logger"
)

// FundamentalConfig configures the fundamentals service adapter.
type FundamentalConfig struct {
	URL      string
	Timeout  time.Duration
	CacheTTL time.Duration
	Retries  int
	Backoff  time.Duration
}

type fundamentalResponse struct {
	Score      float64           `json:"score"`
	Confidence float64           `json:"confidence"`
	Facts      map[string]string `json:"facts"`
	AsOf       time.Time         `json:"as_of"`
}

// Fundamental asks an external fundamentals service for a valuation score per symbol set.
// Answers are cached for CacheTTL; retries stay inside the caller's deadline.
type Fundamental struct {
	cfg    FundamentalConfig
	client *xhttp.Client
	cache  cache.Service
	log    *logger.Logger
}

func NewFundamental(l *logger.Logger, cfg FundamentalConfig, c cache.Service, opts ...xhttp.ClientOption) *Fundamental {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 400 * time.Millisecond
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 50 * time.Millisecond
	}
	opts = append([]xhttp.ClientOption{xhttp.WithBaseURL(cfg.URL), xhttp.WithTimeout(cfg.Timeout)}, opts...)
	return &Fundamental{cfg: cfg, client: xhttp.NewClient(opts...), cache: c, log: l}
}

func (f *Fundamental) ID() string { return "fundamental" }

func (f *Fundamental) Analyze(ctx context.Context, mc models.MarketContext) (models.Opinion, error) {
	if len(mc.Symbols) == 0 {
		return models.Opinion{}, abstain(f.ID(), "no symbols")
	}
	symbols := append([]string(nil), mc.Symbols...)
	sort.Strings(symbols)
	key := cache.Key("fundamental", strings.Join(symbols, ","))

	var resp fundamentalResponse
	if f.cache != nil {
		if err := f.cache.Get(ctx, key, &resp); err == nil {
			return f.toOpinion(mc, resp, true), nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			f.log.Warn("fundamental cache read failed", logger.Error(err))
		}
	}

	if err := f.fetch(ctx, symbols, &resp); err != nil {
		return models.Opinion{}, err
	}
	if f.cache != nil && f.cfg.CacheTTL > 0 {
		if err := f.cache.Set(ctx, key, resp, f.cfg.CacheTTL); err != nil {
			f.log.Warn("fundamental cache write failed", logger.Error(err))
		}
	}
	return f.toOpinion(mc, resp, false), nil
}

func (f *Fundamental) fetch(ctx context.Context, symbols []string, dest *fundamentalResponse) error {
	query := map[string][]string{"symbols": {strings.Join(symbols, ",")}}
	var err error
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * f.cfg.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = f.client.Get(ctx, "/v1/fundamentals", query, dest)
		if err == nil || !xhttp.IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("fundamental: %w", err)
	}
	return nil
}

func (f *Fundamental) toOpinion(mc models.MarketContext, resp fundamentalResponse, cached bool) models.Opinion {
	facts := make(map[string]string, len(resp.Facts)+1)
	for k, v := range resp.Facts {
		facts[k] = v
	}
	if cached {
		facts["cached"] = "true"
	}
	return opinion(f.ID(), mc.AsOf, resp.Score, resp.Confidence, facts)
}
