package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/breaker"
	pkghttp "TradeLoop/pkg/http"
	applogger "TradeLoop/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecService(t *testing.T, h http.HandlerFunc) *HTTPExecutionService {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cb := breaker.New("execution", breaker.WithConsecutiveFailures(3), breaker.WithOpenTimeout(time.Minute), breaker.WithIgnore(IsRefusal))
	return NewHTTPExecutionService(pkghttp.NewClient(pkghttp.WithBaseURL(srv.URL), pkghttp.WithTimeout(time.Second)), cb, applogger.NewNop())
}

var testIntent = models.ExecutionIntent{IntentID: "c1", CycleID: "c1", StrategyID: "iron_condor", Underlying: "SPY", Size: 2, Notional: 20_000}

func TestExecutionSubmitAccepted(t *testing.T) {
	svc := newExecService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/intents", r.URL.Path)
		assert.Equal(t, "c1", r.Header.Get("Idempotency-Key"))
		var in models.ExecutionIntent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, 2.0, in.Size)
		_ = json.NewEncoder(w).Encode(models.ExecutionResult{Accepted: true, OrderRef: "ord-77"})
	})

	res, err := svc.Submit(context.Background(), testIntent)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "ord-77", res.OrderRef)
	assert.Equal(t, "c1", res.IntentID)
}

func TestExecutionRefusalAndReplay(t *testing.T) {
	status := int32(http.StatusUnprocessableEntity)
	svc := newExecService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
		_, _ = w.Write([]byte("market halted"))
	})

	res, err := svc.Submit(context.Background(), testIntent)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "market halted", res.Message)

	atomic.StoreInt32(&status, http.StatusConflict)
	res, err = svc.Submit(context.Background(), testIntent)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "closed", svc.cb.State())
}

func TestExecutionBreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	svc := newExecService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(context.Background(), testIntent)
		require.Error(t, err)
		assert.True(t, pkghttp.IsRetryable(err))
	}
	_, err := svc.Submit(context.Background(), testIntent)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}
