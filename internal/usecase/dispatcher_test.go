package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/cache"
	"TradeLoop/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func ironCondor() models.StrategyCandidate {
	return models.StrategyCandidate{StrategyID: "iron_condor", Underlying: "SPY", RequiredCapital: 10_000, Size: 4}
}

func newDispatcher(t *testing.T, exec *mockExec) *Dispatcher {
	locks := cache.NewMemoryCache()
	t.Cleanup(func() { _ = locks.Close() })
	return NewDispatcher(logger.NewNop(), exec, locks, time.Hour)
}

func TestDispatchRejectIsNoop(t *testing.T) {
	exec := &mockExec{}
	res := newDispatcher(t, exec).Dispatch(context.Background(), "c1", ironCondor(),
		models.RiskDecision{Verdict: models.VerdictReject, Reason: "var_limit"})

	assert.False(t, res.Dispatched)
	assert.Equal(t, "risk reject: var_limit", res.SkippedReason)
	exec.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestDispatchAttenuatedSize(t *testing.T) {
	exec := &mockExec{}
	exec.On("Submit", mock.Anything, mock.MatchedBy(func(in models.ExecutionIntent) bool {
		return in.Size == 2 && in.Notional == 20_000 && in.IntentID == "c1" && in.CycleID == "c1"
	})).Return(models.ExecutionResult{IntentID: "c1", Accepted: true}, nil).Once()

	res := newDispatcher(t, exec).Dispatch(context.Background(), "c1", ironCondor(),
		models.RiskDecision{Verdict: models.VerdictAttenuate, Factor: 0.5})

	require.True(t, res.Dispatched)
	assert.Equal(t, 2.0, res.Intent.Size)
	exec.AssertExpectations(t)
}

func TestDispatchIsIdempotentPerCycle(t *testing.T) {
	exec := &mockExec{}
	exec.On("Submit", mock.Anything, mock.Anything).Return(models.ExecutionResult{Accepted: true}, nil).Once()
	d := newDispatcher(t, exec)
	approve := models.RiskDecision{Verdict: models.VerdictApprove, Factor: 1}

	first := d.Dispatch(context.Background(), "c1", ironCondor(), approve)
	second := d.Dispatch(context.Background(), "c1", ironCondor(), approve)

	assert.True(t, first.Dispatched)
	assert.False(t, second.Dispatched)
	assert.Equal(t, models.ErrDuplicateDispatch.Error(), second.SkippedReason)
	exec.AssertNumberOfCalls(t, "Submit", 1)
}

func TestDispatchCapturesErrors(t *testing.T) {
	exec := &mockExec{}
	exec.On("Submit", mock.Anything, mock.Anything).Return(models.ExecutionResult{}, errors.New("timeout"))
	res := newDispatcher(t, exec).Dispatch(context.Background(), "c2", ironCondor(),
		models.RiskDecision{Verdict: models.VerdictApprove, Factor: 1})

	assert.False(t, res.Dispatched)
	assert.True(t, res.Failed())
	assert.Equal(t, "timeout", res.Error)
	require.NotNil(t, res.Intent)

	exec = &mockExec{}
	exec.On("Submit", mock.Anything, mock.Anything).Return(models.ExecutionResult{Accepted: false, Message: "halted"}, nil)
	res = newDispatcher(t, exec).Dispatch(context.Background(), "c3", ironCondor(),
		models.RiskDecision{Verdict: models.VerdictApprove, Factor: 1})
	assert.True(t, res.Failed())
}

func TestDispatchWithoutLockDoesNotSubmit(t *testing.T) {
	exec := &mockExec{}
	d := NewDispatcher(logger.NewNop(), exec, failingLocks{}, time.Hour)
	res := d.Dispatch(context.Background(), "c4", ironCondor(), models.RiskDecision{Verdict: models.VerdictApprove, Factor: 1})

	assert.Contains(t, res.Error, "redis down")
	exec.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}
