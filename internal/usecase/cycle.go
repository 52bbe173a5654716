package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	domsvc "TradeLoop/internal/domain/service"
	"TradeLoop/internal/services/risk"
	"TradeLoop/internal/services/strategy"
	"TradeLoop/pkg/logger"
	"TradeLoop/pkg/market"

	"github.com/google/uuid"
)

// CycleConfig holds the loop timing. The stage deadlines must fit in Cadence.
type CycleConfig struct {
	Symbols []string
	Cadence time.Duration
	// PrepareDeadline bounds each of the parameter and market context reads.
	PrepareDeadline   time.Duration
	FanoutDeadline    time.Duration
	SynthesisDeadline time.Duration
	GateDeadline      time.Duration
	// ClosedPoll caps how long RunForever sleeps while the market is closed.
	ClosedPoll time.Duration
}

// CycleDeps are the collaborators of the orchestrator. Quotes, Alerter, Metrics and
// Schedule are optional.
type CycleDeps struct {
	Market     domrepo.MarketDataSource
	Portfolio  domrepo.PortfolioSource
	Parameters domrepo.ParameterStore
	Audit      domrepo.AuditSink
	Quotes     domrepo.QuoteBook
	Metrics    domrepo.Metrics
	Alerter    domsvc.Alerter
	Producers  []domsvc.Producer
	Classifier domsvc.RegimeClassifier
	Synth      *strategy.Synthesizer
	Selector   *strategy.Selector
	Gate       *risk.Gate
	Dispatcher *Dispatcher
	Schedule   *market.Schedule
}

// Cycle runs the decision loop. Cycles never overlap: RunOnce serializes callers.
type Cycle struct {
	deps CycleDeps
	cfg  CycleConfig
	log  *logger.Logger

	now   func() time.Time
	newID func() string

	runMu sync.Mutex

	mu         sync.RWMutex
	last       *models.CycleRecord
	lastParams models.Parameters
}

func NewCycle(l *logger.Logger, deps CycleDeps, cfg CycleConfig) *Cycle {
	if cfg.Cadence <= 0 {
		cfg.Cadence = time.Second
	}
	if cfg.ClosedPoll <= 0 {
		cfg.ClosedPoll = time.Minute
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	return &Cycle{
		deps:       deps,
		cfg:        cfg,
		log:        l,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
		lastParams: models.DefaultParameters(),
	}
}

// LastRecord returns the most recent in-memory cycle record.
func (c *Cycle) LastRecord() (models.CycleRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return models.CycleRecord{}, false
	}
	return *c.last, true
}

// RunOnce executes one full iteration bounded by deadline (the cadence when zero) and
// always returns exactly one record, which is also appended to the audit sink.
func (c *Cycle) RunOnce(ctx context.Context, deadline time.Duration) models.CycleRecord {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if deadline <= 0 {
		deadline = c.cfg.Cadence
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	rec := models.CycleRecord{
		CycleID:     c.newID(),
		StartedAt:   c.now().UTC(),
		Symbols:     append([]string(nil), c.cfg.Symbols...),
		Abstentions: map[string]string{},
	}
	log := c.log.With(logger.String("cycle_id", rec.CycleID))

	stage := time.Now()
	params := c.parameters(ctx, &rec)
	rec.ParametersVersion = params.Version

	mc := c.marketContext(ctx, &rec)
	c.deps.Metrics.ObserveStage("prepare", time.Since(stage).Seconds())

	stage = time.Now()
	c.fanOut(ctx, mc, &rec)
	c.deps.Metrics.ObserveStage("fanout", time.Since(stage).Seconds())
	c.deps.Metrics.RecordRegime(rec.Regime.String())

	if len(c.deps.Producers) > 0 && len(rec.Opinions) == 0 {
		c.alert(parent, domsvc.SeverityWarning, "every producer abstained this cycle")
	}
	if rec.RegimeFallback {
		c.alert(parent, domsvc.SeverityWarning, "regime classifier fell back to "+models.DefaultRegime.String())
	}

	c.decide(ctx, params, &rec)
	c.finish(parent, log, &rec)
	return rec
}

func (c *Cycle) decide(ctx context.Context, params models.Parameters, rec *models.CycleRecord) {
	stage := time.Now()
	rec.Candidates = c.synthesize(rec.Opinions, params, rec)
	c.deps.Metrics.ObserveStage("synthesis", time.Since(stage).Seconds())
	if len(rec.Candidates) == 0 {
		rec.Outcome = models.OutcomeNoCandidate
		return
	}

	selected, ok := c.deps.Selector.Select(rec.Candidates, rec.Regime)
	if !ok {
		rec.Outcome = models.OutcomeNotEligible
		return
	}
	rec.Selected = &selected

	stage = time.Now()
	decision := c.gate(ctx, selected, rec)
	c.deps.Metrics.ObserveStage("gate", time.Since(stage).Seconds())
	c.deps.Metrics.RecordVerdict(string(decision.Verdict))
	rec.Decision = &decision

	stage = time.Now()
	dispatch := c.deps.Dispatcher.Dispatch(ctx, rec.CycleID, selected, decision)
	c.deps.Metrics.ObserveStage("dispatch", time.Since(stage).Seconds())
	rec.Dispatch = &dispatch

	switch {
	case decision.Verdict == models.VerdictReject:
		rec.Outcome = models.OutcomeRejected
	case dispatch.Failed():
		rec.Outcome = models.OutcomeDispatchFailed
		c.deps.Metrics.RecordDispatchFailure()
		msg := dispatch.Error
		if msg == "" && dispatch.Result != nil {
			msg = "refused: " + dispatch.Result.Message
		}
		c.alert(ctx, domsvc.SeverityCritical, "dispatch failed: "+msg)
	case dispatch.Dispatched:
		rec.Outcome = models.OutcomeDispatched
	default:
		rec.Outcome = models.OutcomeSkipped
	}
}

func (c *Cycle) parameters(ctx context.Context, rec *models.CycleRecord) models.Parameters {
	c.mu.RLock()
	fallback := c.lastParams
	c.mu.RUnlock()
	if c.deps.Parameters == nil {
		return fallback
	}
	pctx, cancel := c.prepareContext(ctx)
	defer cancel()
	p, err := c.deps.Parameters.Current(pctx)
	if err != nil {
		rec.Notes = append(rec.Notes, "parameters: using version "+fmt.Sprint(fallback.Version)+": "+err.Error())
		return fallback
	}
	c.mu.Lock()
	c.lastParams = p
	c.mu.Unlock()
	return p
}

func (c *Cycle) prepareContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.PrepareDeadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.PrepareDeadline)
}

func (c *Cycle) marketContext(ctx context.Context, rec *models.CycleRecord) models.MarketContext {
	mctx, cancel := c.prepareContext(ctx)
	defer cancel()
	mc, err := c.deps.Market.GetContext(mctx, rec.Symbols)
	if err != nil {
		rec.Notes = append(rec.Notes, "market context: "+err.Error())
		mc = models.MarketContext{Symbols: rec.Symbols, AsOf: rec.StartedAt}
	}
	if c.deps.Quotes != nil {
		live := c.deps.Quotes.Latest(rec.Symbols)
		if len(live) > 0 {
			merged := make(map[string]models.Quote, len(mc.Quotes)+len(live))
			for k, v := range mc.Quotes {
				merged[k] = v
			}
			for k, v := range live {
				merged[k] = v
			}
			mc.Quotes = merged
		}
	}
	return mc
}

type producerResult struct {
	id  string
	op  models.Opinion
	err error
}

type regimeResult struct {
	label models.RegimeLabel
	err   error
}

// fanOut runs every producer and the classifier concurrently. Whatever has not reported
// when the fan-out deadline passes is recorded as a timeout; late goroutines write into
// buffered channels and are never waited for.
func (c *Cycle) fanOut(ctx context.Context, mc models.MarketContext, rec *models.CycleRecord) {
	fctx, cancel := context.WithTimeout(ctx, c.cfg.FanoutDeadline)
	defer cancel()

	results := make(chan producerResult, len(c.deps.Producers))
	regimeCh := make(chan regimeResult, 1)
	pending := make(map[string]bool, len(c.deps.Producers))

	for _, p := range c.deps.Producers {
		pending[p.ID()] = true
		go func(p domsvc.Producer) {
			defer func() {
				if r := recover(); r != nil {
					results <- producerResult{id: p.ID(), err: panicError{r}}
				}
			}()
			op, err := p.Analyze(fctx, mc)
			results <- producerResult{id: p.ID(), op: op, err: err}
		}(p)
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				regimeCh <- regimeResult{err: panicError{r}}
			}
		}()
		label, err := c.deps.Classifier.Classify(fctx, mc)
		regimeCh <- regimeResult{label: label, err: err}
	}()

	regimeDone := false
	for len(pending) > 0 || !regimeDone {
		select {
		case r := <-results:
			if !pending[r.id] {
				continue
			}
			delete(pending, r.id)
			if r.err == nil {
				if err := r.op.Validate(); err != nil {
					r.err = err
				} else if r.op.ProducerID != r.id {
					r.err = fmt.Errorf("opinion from %q reported by %q", r.op.ProducerID, r.id)
				}
			}
			if r.err != nil {
				c.abstain(rec, r.id, r.err)
				continue
			}
			rec.Opinions = append(rec.Opinions, r.op)
		case r := <-regimeCh:
			regimeDone = true
			c.applyRegime(rec, r)
		case <-fctx.Done():
			for id := range pending {
				c.abstain(rec, id, fctx.Err())
			}
			pending = nil
			if !regimeDone {
				regimeDone = true
				c.applyRegime(rec, regimeResult{err: fctx.Err()})
			}
		}
	}

	sort.Slice(rec.Opinions, func(i, j int) bool { return rec.Opinions[i].ProducerID < rec.Opinions[j].ProducerID })
}

func (c *Cycle) applyRegime(rec *models.CycleRecord, r regimeResult) {
	if r.err == nil && r.label.Valid() {
		rec.Regime = r.label
		return
	}
	rec.Regime = models.DefaultRegime
	rec.RegimeFallback = true
	reason := "invalid label " + string(r.label)
	if r.err != nil {
		reason = abstentionReason(r.err)
	}
	rec.Notes = append(rec.Notes, "regime fallback: "+reason)
}

func (c *Cycle) abstain(rec *models.CycleRecord, id string, err error) {
	reason := abstentionReason(err)
	rec.Abstentions[id] = reason
	kind := reason
	if i := strings.Index(reason, ":"); i > 0 {
		kind = reason[:i]
	}
	c.deps.Metrics.RecordAbstention(id, kind)
}

// synthesize runs the synthesizer under its own deadline. A synthesizer that overruns
// yields no candidates for this cycle.
func (c *Cycle) synthesize(opinions []models.Opinion, params models.Parameters, rec *models.CycleRecord) []models.StrategyCandidate {
	if c.cfg.SynthesisDeadline <= 0 {
		return c.deps.Synth.Synthesize(opinions, params, len(c.deps.Producers))
	}
	done := make(chan []models.StrategyCandidate, 1)
	go func() { done <- c.deps.Synth.Synthesize(opinions, params, len(c.deps.Producers)) }()

	timer := time.NewTimer(c.cfg.SynthesisDeadline)
	defer timer.Stop()
	select {
	case cands := <-done:
		return cands
	case <-timer.C:
		rec.Notes = append(rec.Notes, "synthesis: deadline exceeded")
		return []models.StrategyCandidate{}
	}
}

// gate captures one portfolio snapshot and evaluates the candidate against it. Any
// failure to produce a verdict in time is a rejection.
func (c *Cycle) gate(ctx context.Context, cand models.StrategyCandidate, rec *models.CycleRecord) models.RiskDecision {
	gctx, cancel := context.WithTimeout(ctx, c.cfg.GateDeadline)
	defer cancel()

	done := make(chan models.RiskDecision, 1)
	go func() {
		snap, err := c.deps.Portfolio.GetSnapshot(gctx)
		if err != nil {
			done <- models.RiskDecision{
				Verdict: models.VerdictReject,
				Reason:  fmt.Sprintf("%v: %v", models.ErrNoSnapshot, err),
			}
			return
		}
		if gctx.Err() != nil {
			return
		}
		done <- c.deps.Gate.Evaluate(cand, snap)
	}()

	select {
	case d := <-done:
		return d
	case <-gctx.Done():
		rec.Notes = append(rec.Notes, "gate: deadline exceeded")
		return models.RiskDecision{Verdict: models.VerdictReject, Reason: "gate deadline exceeded"}
	}
}

func (c *Cycle) finish(ctx context.Context, log *logger.Logger, rec *models.CycleRecord) {
	rec.FinishedAt = c.now().UTC()
	if len(rec.Abstentions) == 0 {
		rec.Abstentions = nil
	}
	if rec.Candidates == nil {
		rec.Candidates = []models.StrategyCandidate{}
	}
	c.deps.Metrics.ObserveCycle(string(rec.Outcome), rec.Duration().Seconds())

	c.mu.Lock()
	snapshot := *rec
	c.last = &snapshot
	c.mu.Unlock()

	if c.deps.Audit != nil {
		c.deps.Audit.Append(context.WithoutCancel(ctx), *rec)
	}

	fields := []logger.Field{
		logger.String("outcome", string(rec.Outcome)),
		logger.String("regime", rec.Regime.String()),
		logger.Int("opinions", len(rec.Opinions)),
		logger.Int("abstentions", len(rec.Abstentions)),
		logger.Int("candidates", len(rec.Candidates)),
		logger.Duration("duration_ms", rec.Duration()),
	}
	if rec.Selected != nil {
		fields = append(fields, logger.String("strategy_id", rec.Selected.StrategyID))
	}
	if rec.Decision != nil {
		fields = append(fields, logger.String("verdict", string(rec.Decision.Verdict)))
	}
	log.Info("cycle finished", fields...)
}

func (c *Cycle) alert(ctx context.Context, severity, message string) {
	if c.deps.Alerter != nil {
		c.deps.Alerter.Alert(context.WithoutCancel(ctx), severity, "cycle", message)
	}
}

// RunForever runs serialized cycles every cadence while the market is open and
// returns when ctx is cancelled. Nothing that happens inside a cycle stops the loop.
func (c *Cycle) RunForever(ctx context.Context, cadence time.Duration) error {
	if cadence <= 0 {
		cadence = c.cfg.Cadence
	}
	c.log.Info("decision loop started",
		logger.Duration("cadence_ms", cadence),
		logger.Strings("symbols", c.cfg.Symbols),
	)
	closed := false
	for {
		if ctx.Err() != nil {
			c.log.Info("decision loop stopped")
			return nil
		}

		now := c.now()
		if c.deps.Schedule != nil && !c.deps.Schedule.IsOpen(now) {
			next := c.deps.Schedule.NextOpen(now)
			if !closed {
				c.log.Info("market closed, loop idle", logger.String("next_open", next.Format(time.RFC3339)))
				closed = true
			}
			wait := next.Sub(now)
			if wait > c.cfg.ClosedPoll || wait <= 0 {
				wait = c.cfg.ClosedPoll
			}
			sleep(ctx, wait)
			continue
		}
		closed = false

		start := time.Now()
		c.safeRunOnce(ctx, cadence)
		if rest := cadence - time.Since(start); rest > 0 {
			sleep(ctx, rest)
		}
	}
}

func (c *Cycle) safeRunOnce(ctx context.Context, deadline time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("cycle panicked", logger.String("panic", fmt.Sprint(r)))
			c.alert(ctx, domsvc.SeverityCritical, fmt.Sprintf("cycle panicked: %v", r))
		}
	}()
	c.RunOnce(ctx, deadline)
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

type panicError struct{ v interface{} }

func (p panicError) Error() string { return fmt.Sprint(p.v) }

func abstentionReason(err error) string {
	var pe panicError
	switch {
	case errors.As(err, &pe):
		return "panic: " + pe.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error: " + err.Error()
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveCycle(string, float64) {}
func (noopMetrics) ObserveStage(string, float64) {}
func (noopMetrics) RecordAbstention(string, string) {}
func (noopMetrics) RecordVerdict(string) {}
func (noopMetrics) RecordRegime(string) {}
func (noopMetrics) RecordDispatchFailure() {}
