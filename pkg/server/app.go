package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"TradeLoop/internal/handler/api"
	"TradeLoop/internal/service/finnhub"
	"TradeLoop/internal/usecase"
	"TradeLoop/pkg/config"
	xhttp "TradeLoop/pkg/http"
	pkgkafka "TradeLoop/pkg/kafka"
	applogger "TradeLoop/pkg/logger"
	"TradeLoop/pkg/queue"

	pyroscope "github.com/grafana/pyroscope-go"
)

// Components are the long-running parts of the application. Queue, Consumer and
// Quotes are nil when their backend is disabled.
type Components struct {
	Cycle    *usecase.Cycle
	Handler  *api.CyclesHandler
	Queue    *queue.RedisQueue
	Consumer *pkgkafka.Consumer
	Feedback *usecase.FeedbackHandler
	Quotes   *finnhub.QuoteBook
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg  *config.Config
	log  *applogger.Logger
	c    Components
	http *xhttp.Server

	profiler *pyroscope.Profiler
	wg       sync.WaitGroup
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	var h xhttp.Handler
	if c.Handler != nil {
		h = c.Handler
	}
	return &App{cfg: cfg, log: l, c: c, http: xhttp.NewServer(l, h, opts...)}
}

func (a *App) Cycle() *usecase.Cycle { return a.c.Cycle }

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component, runs the decision loop until ctx ends and then
// shuts down in reverse order.
func (a *App) RunContext(ctx context.Context) error {
	a.startProfiler()

	if a.c.Queue != nil {
		if err := a.c.Queue.Start(ctx); err != nil {
			a.log.Warn("alert queue start failed, alerts are log-only", applogger.Error(err))
			a.c.Queue = nil
		} else {
			a.log.AttachDigest(&applogger.DigestConfig{
				Interval:  time.Minute,
				MaxUnique: 50,
				MsgType:   "log_digest",
				Publisher: a.c.Queue,
			})
		}
	}

	if a.c.Consumer != nil && a.c.Feedback != nil {
		a.c.Consumer.RegisterHandler(a.c.Feedback)
		if err := a.c.Consumer.Start(); err != nil {
			a.log.Warn("kafka consumer start failed, learning disabled", applogger.Error(err))
			a.c.Consumer = nil
		} else {
			a.log.Info("feedback consumer started", applogger.String("topic", a.c.Feedback.Topic()))
		}
	}

	if a.c.Quotes != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.c.Quotes.Run(ctx); err != nil {
				a.log.Error("quote stream stopped", applogger.Error(err))
			}
		}()
	}

	if err := a.http.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	err := a.c.Cycle.RunForever(ctx, a.cfg.Loop.Cadence)
	a.log.Info("shutdown signal received")
	a.shutdown()
	return err
}

// shutdown gracefully stops all services. Stores are closed by the DI cleanup.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.c.Quotes != nil {
		if err := a.c.Quotes.Close(); err != nil {
			a.log.Warn("quote stream close error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	a.log.DetachDigest()
	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(ctx); err != nil {
			a.log.Warn("alert queue stop error", applogger.Error(err))
		}
	}
	a.wg.Wait()
	if a.profiler != nil {
		_ = a.profiler.Stop()
	}
	a.log.Info("shutdown complete")
}

func (a *App) startProfiler() {
	if a.cfg.Profiling.ServerAddress == "" {
		return
	}
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: a.cfg.Profiling.AppName,
		ServerAddress:   a.cfg.Profiling.ServerAddress,
		Tags:            map[string]string{"env": a.cfg.Environment},
		Logger:          pyroscopeLogger{a.log},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		a.log.Warn("profiler start failed", applogger.Error(err))
		return
	}
	a.profiler = p
}

type pyroscopeLogger struct{ l *applogger.Logger }

func (p pyroscopeLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...), applogger.String("component", "pyroscope"))
}

func (p pyroscopeLogger) Debugf(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...), applogger.String("component", "pyroscope"))
}

func (p pyroscopeLogger) Errorf(format string, args ...interface{}) {
	p.l.Warn(fmt.Sprintf(format, args...), applogger.String("component", "pyroscope"))
}
