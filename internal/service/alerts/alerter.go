package alerts

import (
	"context"
	"strings"
	"time"

	domsvc "TradeLoop/internal/domain/service"
	svcmetrics "TradeLoop/internal/service/metrics"
	"TradeLoop/internal/service/ratelimit"
	"TradeLoop/pkg/logger"
	"TradeLoop/pkg/queue"
)

// MsgTypeAlert is the queue message type carrying an Alert.
const MsgTypeAlert = "alert"

type Alert struct {
	Source   string    `json:"source"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

// Router logs every alert and enqueues warning and critical ones for delivery. The same
// source, severity and message is delivered at most once per cooldown.
type Router struct {
	log      *logger.Logger
	pub      queue.Publisher
	cooldown *ratelimit.Keyed
	now      func() time.Time
}

// NewRouter builds a router; pub may be nil, in which case alerts are only logged.
func NewRouter(l *logger.Logger, pub queue.Publisher, cooldown time.Duration) *Router {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Router{log: l, pub: pub, cooldown: ratelimit.Every(cooldown), now: time.Now}
}

func (r *Router) Alert(ctx context.Context, severity, source, message string) {
	severity = normalize(severity)
	now := r.now()
	if !r.cooldown.AllowAt(source+":"+severity+":"+message, now) {
		svcmetrics.Alerts.WithLabelValues(severity, "suppressed").Inc()
		r.log.Debug("alert suppressed", logger.String("source", source), logger.String("severity", severity))
		return
	}

	fields := []logger.Field{
		logger.String("source", source),
		logger.String("severity", severity),
		logger.String("alert", message),
	}
	switch severity {
	case domsvc.SeverityCritical:
		r.log.Error("alert", fields...)
	case domsvc.SeverityWarning:
		r.log.Warn("alert", fields...)
	default:
		r.log.Info("alert", fields...)
	}

	if severity == domsvc.SeverityInfo || r.pub == nil {
		svcmetrics.Alerts.WithLabelValues(severity, "logged").Inc()
		return
	}
	err := r.pub.PublishMessage(ctx, MsgTypeAlert, Alert{Source: source, Severity: severity, Message: message, RaisedAt: now.UTC()})
	if err != nil {
		svcmetrics.Alerts.WithLabelValues(severity, "enqueue_failed").Inc()
		r.log.Warn("alert enqueue failed", append(fields, logger.Error(err))...)
		return
	}
	svcmetrics.Alerts.WithLabelValues(severity, "enqueued").Inc()
}

func normalize(severity string) string {
	switch s := strings.ToLower(strings.TrimSpace(severity)); s {
	case domsvc.SeverityCritical, domsvc.SeverityWarning:
		return s
	case "warn":
		return domsvc.SeverityWarning
	case "error", "fatal":
		return domsvc.SeverityCritical
	default:
		return domsvc.SeverityInfo
	}
}

var _ domsvc.Alerter = (*Router)(nil)
