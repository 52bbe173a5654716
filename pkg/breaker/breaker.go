package breaker

import (
	"errors"
	"time"

	"TradeLoop/pkg/logger"

	cb "github.com/sony/gobreaker"
)

// ErrOpen is returned without calling through while the breaker is open or probing.
var ErrOpen = errors.New("circuit breaker open")

type Option func(*Config)

type Config struct {
	Interval            time.Duration
	OpenTimeout         time.Duration
	ConsecutiveFailures uint32
	MinRequests         uint32
	FailureRatio        float64
	// Ignore marks errors that should not count against the breaker, e.g. 4xx responses.
	Ignore func(error) bool
	Logger *logger.Logger
}

func WithInterval(d time.Duration) Option { return func(c *Config) { c.Interval = d } }

func WithOpenTimeout(d time.Duration) Option { return func(c *Config) { c.OpenTimeout = d } }

func WithConsecutiveFailures(n uint32) Option {
	return func(c *Config) { c.ConsecutiveFailures = n }
}

func WithFailureRatio(minRequests uint32, ratio float64) Option {
	return func(c *Config) {
		c.MinRequests = minRequests
		c.FailureRatio = ratio
	}
}

func WithIgnore(fn func(error) bool) Option { return func(c *Config) { c.Ignore = fn } }

func WithLogger(l *logger.Logger) Option { return func(c *Config) { c.Logger = l } }

type Breaker struct {
	cb *cb.CircuitBreaker
}

// New trips after ConsecutiveFailures in a row or when more than FailureRatio of at
// least MinRequests calls failed within Interval.
func New(name string, opts ...Option) *Breaker {
	cfg := &Config{
		Interval:            60 * time.Second,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 3,
		MinRequests:         20,
		FailureRatio:        0.05,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	st := cb.Settings{
		Name:     name,
		Interval: cfg.Interval,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > cfg.FailureRatio
		},
	}
	if cfg.Ignore != nil {
		st.IsSuccessful = func(err error) bool { return err == nil || cfg.Ignore(err) }
	}
	if cfg.Logger != nil {
		l := cfg.Logger
		st.OnStateChange = func(name string, from, to cb.State) {
			l.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

func (b *Breaker) State() string { return b.cb.State().String() }

// Execute runs fn through the breaker.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (interface{}, error) { return fn() })
	if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
		var zero T
		return zero, ErrOpen
	}
	if out == nil {
		var zero T
		return zero, err
	}
	return out.(T), err
}
