package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/internal/service/ratelimit"
	xlogger "TradeLoop/pkg/logger"
	"TradeLoop/pkg/market"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	last     *models.CycleRecord
	deadline time.Duration
	runs     int
}

func (f *fakeRunner) RunOnce(_ context.Context, d time.Duration) models.CycleRecord {
	f.runs++
	f.deadline = d
	rec := models.CycleRecord{CycleID: "manual-1", Outcome: models.OutcomeNoCandidate}
	f.last = &rec
	return rec
}

func (f *fakeRunner) LastRecord() (models.CycleRecord, bool) {
	if f.last == nil {
		return models.CycleRecord{}, false
	}
	return *f.last, true
}

type fakeStore struct {
	rec models.CycleRecord
	err error
}

func (s fakeStore) Last(context.Context) (models.CycleRecord, error) { return s.rec, s.err }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, runner CycleRunner, store fakeStore, limiter *ratelimit.Keyed, checks map[string]HealthCheck) *echo.Echo {
	t.Helper()
	sched, err := market.NewSchedule(market.ModeRegular, "America/New_York")
	require.NoError(t, err)
	h := NewCyclesHandler(xlogger.NewNop(), runner, store, sched, limiter, checks)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestRunCycleIsRateLimited(t *testing.T) {
	runner := &fakeRunner{}
	e := newTestServer(t, runner, fakeStore{}, ratelimit.New(0.001, 1), nil)

	rec, env := do(e, http.MethodPost, "/v1/cycles/run", `{"deadline_ms":500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.CycleRecord
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "manual-1", got.CycleID)
	assert.Equal(t, 500*time.Millisecond, runner.deadline)

	rec, _ = do(e, http.MethodPost, "/v1/cycles/run", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, runner.runs)
}

func TestRunCycleValidatesDeadline(t *testing.T) {
	runner := &fakeRunner{}
	e := newTestServer(t, runner, fakeStore{}, nil, nil)
	rec, _ := do(e, http.MethodPost, "/v1/cycles/run", `{"deadline_ms":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, runner.runs)
}

func TestLastCycleFallsBackToStore(t *testing.T) {
	e := newTestServer(t, &fakeRunner{}, fakeStore{rec: models.CycleRecord{CycleID: "persisted"}}, nil, nil)
	rec, env := do(e, http.MethodGet, "/v1/cycles/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "persisted")

	runner := &fakeRunner{last: &models.CycleRecord{CycleID: "in-memory"}}
	e = newTestServer(t, runner, fakeStore{err: errors.New("unused")}, nil, nil)
	_, env = do(e, http.MethodGet, "/v1/cycles/last", "")
	assert.Contains(t, string(env.Data), "in-memory")
}

func TestLastCycleErrors(t *testing.T) {
	e := newTestServer(t, &fakeRunner{}, fakeStore{err: models.ErrNotFound}, nil, nil)
	rec, _ := do(e, http.MethodGet, "/v1/cycles/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	e = newTestServer(t, &fakeRunner{}, fakeStore{err: errors.New("clickhouse down")}, nil, nil)
	rec, _ = do(e, http.MethodGet, "/v1/cycles/last", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMarketStatus(t *testing.T) {
	e := newTestServer(t, &fakeRunner{}, fakeStore{}, nil, nil)

	// Good Friday 2025
	rec, env := do(e, http.MethodGet, "/v1/market/status?at=2025-04-18T15:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st MarketStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Holiday)
	assert.False(t, st.Open)
	assert.Equal(t, market.StatusClosed, st.Status)
	assert.Equal(t, "America/New_York", st.Timezone)

	rec, _ = do(e, http.MethodGet, "/v1/market/status?at=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, &fakeRunner{}, fakeStore{}, nil, map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	})
	rec, _ := do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	e = newTestServer(t, &fakeRunner{}, fakeStore{}, nil, map[string]HealthCheck{
		"clickhouse": func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	rec, env := do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, string(env.Data), "refused")
}
