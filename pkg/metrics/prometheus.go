package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics on Prometheus.
type Recorder struct {
	cycleDuration    *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	abstentions      *prometheus.CounterVec
	verdicts         *prometheus.CounterVec
	regimes          *prometheus.CounterVec
	dispatchFailures prometheus.Counter
}

// New registers the loop collectors on reg, or the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	stageBuckets := []float64{.005, .01, .025, .05, .1, .25, .5, 1}
	return &Recorder{
		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeloop_cycle_duration_seconds",
			Help:    "Wall-clock duration of one decision cycle by outcome",
			Buckets: stageBuckets,
		}, []string{"outcome"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeloop_stage_duration_seconds",
			Help:    "Duration of each cycle stage",
			Buckets: stageBuckets,
		}, []string{"stage"}),
		abstentions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeloop_producer_abstentions_total",
			Help: "Producers that gave no opinion, by reason",
		}, []string{"producer", "reason"}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeloop_risk_verdicts_total",
			Help: "Risk gate verdicts",
		}, []string{"verdict"}),
		regimes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeloop_regime_total",
			Help: "Active regime per cycle",
		}, []string{"regime"}),
		dispatchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tradeloop_dispatch_failures_total",
			Help: "Execution intents that failed to submit",
		}),
	}
}

func (r *Recorder) ObserveCycle(outcome string, seconds float64) {
	r.cycleDuration.WithLabelValues(outcome).Observe(seconds)
}

func (r *Recorder) ObserveStage(stage string, seconds float64) {
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) RecordAbstention(producer, reason string) {
	r.abstentions.WithLabelValues(producer, reason).Inc()
}

func (r *Recorder) RecordVerdict(verdict string) { r.verdicts.WithLabelValues(verdict).Inc() }

func (r *Recorder) RecordRegime(regime string) { r.regimes.WithLabelValues(regime).Inc() }

func (r *Recorder) RecordDispatchFailure() { r.dispatchFailures.Inc() }
