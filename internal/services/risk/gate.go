package risk

import (
	"fmt"
	"sync"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/config"
)

// State is the gate lifecycle. Every evaluation goes idle → evaluating → verdict → idle.
type State int

const (
	StateIdle State = iota
	StateEvaluating
	StateApproved
	StateAttenuated
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateApproved:
		return "approved"
	case StateAttenuated:
		return "attenuated"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

const (
	ReasonVaR           = "var_limit"
	ReasonConcentration = "concentration_limit"
	ReasonNoEquity      = "no_equity"
	ReasonCorrelation   = "correlation_breakdown"
	ReasonWithinLimits  = "within_limits"
)

type Limits struct {
	MaxVaR            float64
	MaxConcentration  float64
	AttenuationFactor float64
}

func (l Limits) Validate() error {
	if l.MaxVaR <= 0 {
		return fmt.Errorf("%w: risk.max_var must be positive", config.ErrFatalConfig)
	}
	if l.MaxConcentration <= 0 || l.MaxConcentration > 1 {
		return fmt.Errorf("%w: risk.max_concentration must be in (0,1]", config.ErrFatalConfig)
	}
	if l.AttenuationFactor <= 0 || l.AttenuationFactor >= 1 {
		return fmt.Errorf("%w: risk.attenuation_factor must be in (0,1)", config.ErrFatalConfig)
	}
	return nil
}

// Gate applies the portfolio limits to one candidate at a time. It keeps no state
// between evaluations apart from the lifecycle marker and the last verdict.
type Gate struct {
	limits Limits

	mu    sync.Mutex
	state State
	last  State
}

func NewGate(limits Limits) (*Gate, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Gate{limits: limits}, nil
}

// State is StateEvaluating while an evaluation runs and StateIdle otherwise.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// LastVerdict is the terminal state of the most recent evaluation.
func (g *Gate) LastVerdict() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func (g *Gate) Limits() Limits { return g.limits }

// Evaluate checks, in order: projected VaR, concentration, correlation breakdown.
// Both VaR and concentration scale with the candidate size.
// The first failing check decides.
func (g *Gate) Evaluate(c models.StrategyCandidate, snap models.PortfolioState) models.RiskDecision {
	g.transition(StateEvaluating)
	d := g.decide(c, snap)
	switch d.Verdict {
	case models.VerdictReject:
		g.finish(StateRejected)
	case models.VerdictAttenuate:
		g.finish(StateAttenuated)
	default:
		g.finish(StateApproved)
	}
	return d
}

func (g *Gate) decide(c models.StrategyCandidate, snap models.PortfolioState) models.RiskDecision {
	d := models.RiskDecision{SnapshotRef: snap.SnapshotID}

	d.ProjectedVaR = snap.VaR + c.MaxLoss*c.Size
	if d.ProjectedVaR > g.limits.MaxVaR {
		d.Verdict, d.Factor = models.VerdictReject, 0
		d.Reason = fmt.Sprintf("%s: projected %.2f > %.2f", ReasonVaR, d.ProjectedVaR, g.limits.MaxVaR)
		return d
	}

	if snap.Equity <= 0 {
		d.Verdict, d.Factor, d.Reason = models.VerdictReject, 0, ReasonNoEquity
		return d
	}
	d.Concentration = (snap.ExposureTo(c.Underlying) + c.RequiredCapital*c.Size) / snap.Equity
	if d.Concentration > g.limits.MaxConcentration {
		d.Verdict, d.Factor = models.VerdictReject, 0
		d.Reason = fmt.Sprintf("%s: %s at %.4f > %.4f", ReasonConcentration, c.Underlying, d.Concentration, g.limits.MaxConcentration)
		return d
	}

	if snap.CorrelationBreakdown {
		d.Verdict, d.Factor, d.Reason = models.VerdictAttenuate, g.limits.AttenuationFactor, ReasonCorrelation
		return d
	}

	d.Verdict, d.Factor, d.Reason = models.VerdictApprove, 1, ReasonWithinLimits
	return d
}

func (g *Gate) transition(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

func (g *Gate) finish(verdict State) {
	g.mu.Lock()
	g.last = verdict
	g.state = StateIdle
	g.mu.Unlock()
}
