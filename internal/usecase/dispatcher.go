package usecase

import (
	"context"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	"TradeLoop/pkg/cache"
	"TradeLoop/pkg/logger"
)

// Dispatcher turns an approved or attenuated decision into at most one execution intent
// per cycle id. Execution errors end up in the result, never as a returned error.
type Dispatcher struct {
	exec    domrepo.ExecutionService
	locks   cache.Service
	lockTTL time.Duration
	log     *logger.Logger
	now     func() time.Time
}

func NewDispatcher(l *logger.Logger, exec domrepo.ExecutionService, locks cache.Service, lockTTL time.Duration) *Dispatcher {
	if lockTTL <= 0 {
		lockTTL = 24 * time.Hour
	}
	return &Dispatcher{exec: exec, locks: locks, lockTTL: lockTTL, log: l, now: time.Now}
}

func dispatchKey(cycleID string) string { return "dispatch:" + cycleID }

func (d *Dispatcher) Dispatch(ctx context.Context, cycleID string, c models.StrategyCandidate, decision models.RiskDecision) models.DispatchResult {
	if !decision.Dispatchable() {
		return models.DispatchResult{SkippedReason: "risk " + string(decision.Verdict) + ": " + decision.Reason}
	}

	acquired, err := d.locks.TryLock(ctx, dispatchKey(cycleID), d.lockTTL)
	if err != nil {
		d.log.Error("dispatch lock failed", logger.String("cycle_id", cycleID), logger.Error(err))
		return models.DispatchResult{Error: "dispatch lock: " + err.Error()}
	}
	if !acquired {
		d.log.Warn("duplicate dispatch skipped", logger.String("cycle_id", cycleID))
		return models.DispatchResult{SkippedReason: models.ErrDuplicateDispatch.Error()}
	}

	size := c.Size * decision.Factor
	intent := models.ExecutionIntent{
		IntentID:   cycleID,
		CycleID:    cycleID,
		StrategyID: c.StrategyID,
		Underlying: c.Underlying,
		Size:       size,
		Notional:   size * c.RequiredCapital,
		CreatedAt:  d.now().UTC(),
	}
	out := models.DispatchResult{Intent: &intent}

	res, err := d.exec.Submit(ctx, intent)
	if err != nil {
		d.log.Error("execution submit failed",
			logger.String("cycle_id", cycleID),
			logger.String("strategy_id", c.StrategyID),
			logger.Error(err),
		)
		out.Error = err.Error()
		return out
	}
	out.Result = &res
	out.Dispatched = res.Accepted
	if !res.Accepted {
		d.log.Warn("execution intent refused",
			logger.String("cycle_id", cycleID),
			logger.String("message", res.Message),
		)
	}
	return out
}
