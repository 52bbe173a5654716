package models

import "time"

// ExecutionIntent is the single order request a cycle may emit.
type ExecutionIntent struct {
	IntentID   string    `json:"intent_id"`
	CycleID    string    `json:"cycle_id"`
	StrategyID string    `json:"strategy_id"`
	Underlying string    `json:"underlying"`
	Size       float64   `json:"size"`
	Notional   float64   `json:"notional"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExecutionResult is what the execution service reports back.
type ExecutionResult struct {
	IntentID string `json:"intent_id"`
	Accepted bool   `json:"accepted"`
	OrderRef string `json:"order_ref,omitempty"`
	Message  string `json:"message,omitempty"`
}

// DispatchResult records what the dispatcher did for a cycle.
type DispatchResult struct {
	Dispatched    bool             `json:"dispatched"`
	Intent        *ExecutionIntent `json:"intent,omitempty"`
	Result        *ExecutionResult `json:"result,omitempty"`
	Error         string           `json:"error,omitempty"`
	SkippedReason string           `json:"skipped_reason,omitempty"`
}

// Failed reports a dispatch attempt that did not reach an accepted order.
func (d DispatchResult) Failed() bool {
	return d.Error != "" || (d.Result != nil && !d.Result.Accepted)
}

// CycleOutcome summarizes how a cycle ended.
type CycleOutcome string

const (
	OutcomeDispatched     CycleOutcome = "dispatched"
	OutcomeNoCandidate    CycleOutcome = "no_candidate"
	OutcomeNotEligible    CycleOutcome = "not_eligible"
	OutcomeRejected       CycleOutcome = "rejected"
	OutcomeDispatchFailed CycleOutcome = "dispatch_failed"
	OutcomeSkipped        CycleOutcome = "skipped"
)

// CycleRecord is the immutable trace of one iteration.
type CycleRecord struct {
	CycleID           string              `json:"cycle_id"`
	StartedAt         time.Time           `json:"started_at"`
	FinishedAt        time.Time           `json:"finished_at"`
	Symbols           []string            `json:"symbols"`
	Regime            RegimeLabel         `json:"regime"`
	RegimeFallback    bool                `json:"regime_fallback"`
	Opinions          []Opinion           `json:"opinions"`
	Abstentions       map[string]string   `json:"abstentions,omitempty"`
	Candidates        []StrategyCandidate `json:"candidates"`
	Selected          *StrategyCandidate  `json:"selected,omitempty"`
	Decision          *RiskDecision       `json:"decision,omitempty"`
	Dispatch          *DispatchResult     `json:"dispatch,omitempty"`
	ParametersVersion int64               `json:"parameters_version"`
	Outcome           CycleOutcome        `json:"outcome"`
	Notes             []string            `json:"notes,omitempty"`
}

// Duration is the wall-clock time of the cycle.
func (r CycleRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
