package producers

import (
	"fmt"
	"time"

	domsvc "TradeLoop/internal/domain/service"
	"TradeLoop/pkg/cache"
	"TradeLoop/pkg/config"
	"TradeLoop/pkg/logger"
)

// Names lists every producer the registry can build.
var Names = []string{"technical", "sentiment", "flow", "fundamental"}

// Build returns the enabled producers in configuration order. An unknown or duplicated
// name, or a fundamental producer without a URL, is a fatal configuration error.
func Build(l *logger.Logger, cfg *config.Config, c cache.Service) ([]domsvc.Producer, error) {
	seen := make(map[string]bool, len(cfg.Producers.Enabled))
	out := make([]domsvc.Producer, 0, len(cfg.Producers.Enabled))
	for _, name := range cfg.Producers.Enabled {
		if seen[name] {
			return nil, fmt.Errorf("%w: producer %q enabled twice", config.ErrFatalConfig, name)
		}
		seen[name] = true

		switch name {
		case "technical":
			out = append(out, NewTechnical(cfg.Regime.MinBars))
		case "sentiment":
			out = append(out, NewSentiment(cfg.Producers.Sentiment.Window, cfg.Producers.Sentiment.Saturation))
		case "flow":
			out = append(out, NewFlow(cfg.Producers.Flow.FullPremium))
		case "fundamental":
			fc := cfg.Producers.Fundamental
			if fc.URL == "" {
				return nil, fmt.Errorf("%w: producers.fundamental.url required", config.ErrFatalConfig)
			}
			out = append(out, NewFundamental(l, FundamentalConfig{
				URL:      fc.URL,
				Timeout:  fc.Timeout,
				CacheTTL: fc.CacheTTL,
				Retries:  fc.Retries,
				Backoff:  50 * time.Millisecond,
			}, c))
		default:
			return nil, fmt.Errorf("%w: unknown producer %q (known: %v)", config.ErrFatalConfig, name, Names)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no producers enabled", config.ErrFatalConfig)
	}
	return out, nil
}
