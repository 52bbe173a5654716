package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/cache"

	"github.com/stretchr/testify/mock"
)

type fakeMarket struct {
	mc    models.MarketContext
	err   error
	delay time.Duration
}

func (f *fakeMarket) GetContext(ctx context.Context, symbols []string) (models.MarketContext, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.MarketContext{}, ctx.Err()
		}
	}
	if f.err != nil {
		return models.MarketContext{}, f.err
	}
	mc := f.mc
	mc.Symbols = symbols
	return mc, nil
}

type fakePortfolio struct {
	snap  models.PortfolioState
	err   error
	calls int32
	// slow ignores the context, like a store that answers after the caller gave up
	slow time.Duration
}

func (f *fakePortfolio) GetSnapshot(context.Context) (models.PortfolioState, error) {
	atomic.AddInt32(&f.calls, 1)
	time.Sleep(f.slow)
	return f.snap, f.err
}

type fakeParams struct {
	mu    sync.Mutex
	queue []paramsAnswer
}

type paramsAnswer struct {
	p   models.Parameters
	err error
}

func (f *fakeParams) Current(context.Context) (models.Parameters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return models.DefaultParameters(), nil
	}
	a := f.queue[0]
	if len(f.queue) > 1 {
		f.queue = f.queue[1:]
	}
	return a.p, a.err
}

func (f *fakeParams) Apply(context.Context, models.Feedback) (models.Parameters, error) {
	return models.Parameters{}, errors.New("not used")
}

type recordingAudit struct {
	mu   sync.Mutex
	recs []models.CycleRecord
}

func (a *recordingAudit) Append(_ context.Context, rec models.CycleRecord) {
	a.mu.Lock()
	a.recs = append(a.recs, rec)
	a.mu.Unlock()
}

func (a *recordingAudit) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.recs)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *recordingAlerter) Alert(_ context.Context, severity, _, message string) {
	a.mu.Lock()
	a.alerts = append(a.alerts, severity+": "+message)
	a.mu.Unlock()
}

func (a *recordingAlerter) All() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.alerts...)
}

type mockExec struct{ mock.Mock }

func (m *mockExec) Submit(ctx context.Context, intent models.ExecutionIntent) (models.ExecutionResult, error) {
	args := m.Called(ctx, intent)
	return args.Get(0).(models.ExecutionResult), args.Error(1)
}

type stubProducer struct {
	id       string
	strength float64
	conf     float64
	err      error
	delay    time.Duration
	panics   bool
	inflight *int32
	maxSeen  *int32
}

func (p *stubProducer) ID() string { return p.id }

func (p *stubProducer) Analyze(_ context.Context, mc models.MarketContext) (models.Opinion, error) {
	if p.inflight != nil {
		n := atomic.AddInt32(p.inflight, 1)
		defer atomic.AddInt32(p.inflight, -1)
		for {
			seen := atomic.LoadInt32(p.maxSeen)
			if n <= seen || atomic.CompareAndSwapInt32(p.maxSeen, seen, n) {
				break
			}
		}
	}
	if p.delay > 0 {
		// deliberately ignores ctx to model a misbehaving producer
		time.Sleep(p.delay)
	}
	if p.panics {
		panic("boom")
	}
	if p.err != nil {
		return models.Opinion{}, p.err
	}
	return models.Opinion{
		ProducerID:     p.id,
		Timestamp:      mc.AsOf,
		SignalStrength: p.strength,
		Confidence:     p.conf,
	}, nil
}

type stubClassifier struct {
	label models.RegimeLabel
	err   error
	delay time.Duration
}

func (c *stubClassifier) Classify(ctx context.Context, _ models.MarketContext) (models.RegimeLabel, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.label, c.err
}

// failingLocks refuses every lock call.
type failingLocks struct{ cache.Service }

func (failingLocks) TryLock(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}
