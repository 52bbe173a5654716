package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	QuoteTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeloop",
			Subsystem: "quotes",
			Name:      "trades_total",
			Help:      "Trades received from the live quote feed",
		},
		[]string{"symbol"},
	)

	QuoteReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tradeloop",
			Subsystem: "quotes",
			Name:      "reconnects_total",
			Help:      "Live quote feed reconnect attempts",
		},
	)

	QuoteLag = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tradeloop",
			Subsystem: "quotes",
			Name:      "lag_seconds",
			Help:      "Delay between trade time and receipt",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	Alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeloop",
			Subsystem: "alerts",
			Name:      "total",
			Help:      "Alerts raised by severity and routing result",
		},
		[]string{"severity", "result"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(QuoteTrades, QuoteReconnects, QuoteLag, Alerts)
	})
}
