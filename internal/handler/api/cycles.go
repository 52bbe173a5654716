package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	"TradeLoop/internal/service/ratelimit"
	xhttp "TradeLoop/pkg/http"
	xlogger "TradeLoop/pkg/logger"
	"TradeLoop/pkg/market"
	"TradeLoop/pkg/util"

	"github.com/labstack/echo/v4"
)

// CycleRunner is the part of the orchestrator the API drives.
type CycleRunner interface {
	RunOnce(ctx context.Context, deadline time.Duration) models.CycleRecord
	LastRecord() (models.CycleRecord, bool)
}

// HealthCheck reports one dependency.
type HealthCheck func(ctx context.Context) error

type RunRequest struct {
	DeadlineMS int `json:"deadline_ms" validate:"omitempty,gte=50,lte=10000"`
}

type MarketStatus struct {
	At         time.Time     `json:"at"`
	Status     market.Status `json:"status"`
	Open       bool          `json:"open"`
	TradingDay bool          `json:"trading_day"`
	Holiday    bool          `json:"holiday"`
	NextOpen   time.Time     `json:"next_open"`
	Mode       market.Mode   `json:"mode"`
	Timezone   string        `json:"timezone"`
}

// CyclesHandler serves manual runs and inspection of the decision loop.
type CyclesHandler struct {
	logger   *xlogger.Logger
	runner   CycleRunner
	store    domrepo.CycleStore
	schedule *market.Schedule
	limiter  *ratelimit.Keyed
	checks   map[string]HealthCheck
	now      func() time.Time
}

// NewCyclesHandler wires the handler; store may be nil when no durable cycle store is enabled.
func NewCyclesHandler(logger *xlogger.Logger, runner CycleRunner, store domrepo.CycleStore, schedule *market.Schedule, limiter *ratelimit.Keyed, checks map[string]HealthCheck) *CyclesHandler {
	if limiter == nil {
		limiter = ratelimit.New(0.2, 1)
	}
	return &CyclesHandler{
		logger:   logger,
		runner:   runner,
		store:    store,
		schedule: schedule,
		limiter:  limiter,
		checks:   checks,
		now:      time.Now,
	}
}

func (h *CyclesHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/v1")
	g.POST("/cycles/run", h.Run)
	g.GET("/cycles/last", h.Last)
	g.GET("/market/status", h.MarketStatus)
}

// Run executes one cycle outside the cadence and returns its record.
func (h *CyclesHandler) Run(c echo.Context) error {
	if !h.limiter.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("manual cycle runs are rate limited"))
	}
	req := &RunRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rec := h.runner.RunOnce(c.Request().Context(), time.Duration(req.DeadlineMS)*time.Millisecond)
	h.logger.Info("manual cycle run",
		xlogger.String("cycle_id", rec.CycleID),
		xlogger.String("outcome", string(rec.Outcome)),
		xlogger.String("remote_ip", c.RealIP()),
	)
	return xhttp.SuccessResponse(c, rec)
}

// Last returns the newest record held in memory, else the newest persisted one.
func (h *CyclesHandler) Last(c echo.Context) error {
	if rec, ok := h.runner.LastRecord(); ok {
		return xhttp.SuccessResponse(c, rec)
	}
	if h.store == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no cycle has run yet"))
	}
	rec, err := h.store.Last(c.Request().Context())
	if errors.Is(err, models.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no cycle has run yet"))
	}
	if err != nil {
		h.logger.Error("cycle store last error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("cycle store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *CyclesHandler) MarketStatus(c echo.Context) error {
	at := h.now()
	if raw := c.QueryParam("at"); raw != "" {
		t, ok := util.ParseTime(raw)
		if !ok {
			return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{Code: "ERR_TIME", Field: "at", Message: "at must be RFC3339, a date or unix seconds"}})
		}
		at = t
	}
	s := h.schedule
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, MarketStatus{
		At:         at,
		Status:     s.Status(at),
		Open:       s.IsOpen(at),
		TradingDay: s.IsTradingDay(at),
		Holiday:    s.IsHoliday(at),
		NextOpen:   s.NextOpen(at),
		Mode:       s.Mode(),
		Timezone:   s.Location().String(),
	})
}

func (h *CyclesHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	out := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			out[name] = err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, out)
	}
	return xhttp.SuccessResponse(c, out)
}
