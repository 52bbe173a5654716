package repository

import (
	"context"
	"sync"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	pkgkafka "TradeLoop/pkg/kafka"
	applogger "TradeLoop/pkg/logger"
)

// Publisher is the subset of *pkgkafka.Producer the audit sink needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaAuditSink publishes every cycle record, keyed by cycle id, to the audit topic.
// Append only enqueues: a single background worker publishes in cycle order, so a slow
// broker never holds up the loop. Records beyond the buffer are dropped with a warning.
type KafkaAuditSink struct {
	pub     Publisher
	topic   string
	timeout time.Duration
	l       *applogger.Logger

	records chan models.CycleRecord
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

const auditBuffer = 256

func NewKafkaAuditSink(pub Publisher, topic string, l *applogger.Logger) *KafkaAuditSink {
	s := &KafkaAuditSink{
		pub:     pub,
		topic:   topic,
		timeout: 2 * time.Second,
		l:       l,
		records: make(chan models.CycleRecord, auditBuffer),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *KafkaAuditSink) Append(_ context.Context, rec models.CycleRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.l.Warn("kafka audit sink closed, record dropped", applogger.String("cycle_id", rec.CycleID))
		return
	}
	select {
	case s.records <- rec:
	default:
		s.l.Warn("kafka audit buffer full, record dropped",
			applogger.String("cycle_id", rec.CycleID),
			applogger.Int("buffer", cap(s.records)),
		)
	}
}

func (s *KafkaAuditSink) run() {
	defer s.wg.Done()
	for rec := range s.records {
		s.publish(rec)
	}
}

func (s *KafkaAuditSink) publish(rec models.CycleRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.pub.Publish(ctx, s.topic, []byte(rec.CycleID), rec); err != nil {
		s.l.Error("kafka audit publish error",
			applogger.String("topic", s.topic),
			applogger.String("cycle_id", rec.CycleID),
			applogger.Error(err),
		)
	}
}

// Close stops accepting records and waits until the queued ones are published.
func (s *KafkaAuditSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// AuditFanout appends to several sinks in order.
type AuditFanout []domrepo.AuditSink

func (f AuditFanout) Append(ctx context.Context, rec models.CycleRecord) {
	for _, s := range f {
		s.Append(ctx, rec)
	}
}

// LogAuditSink writes a one-line summary of each record. Used when no durable sink is enabled.
type LogAuditSink struct{ l *applogger.Logger }

func NewLogAuditSink(l *applogger.Logger) LogAuditSink { return LogAuditSink{l: l} }

func (s LogAuditSink) Append(_ context.Context, rec models.CycleRecord) {
	s.l.Debug("cycle record",
		applogger.String("cycle_id", rec.CycleID),
		applogger.String("outcome", string(rec.Outcome)),
		applogger.String("regime", string(rec.Regime)),
	)
}

var (
	_ domrepo.AuditSink = (*KafkaAuditSink)(nil)
	_ domrepo.AuditSink = AuditFanout(nil)
	_ domrepo.AuditSink = LogAuditSink{}
	_ Publisher         = (*pkgkafka.Producer)(nil)
)
