package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	pkgch "TradeLoop/pkg/clickhouse"
	applogger "TradeLoop/pkg/logger"
)

// CHCycleStore persists cycle records to ClickHouse and serves the latest one for
// inspection. Append never blocks the loop: inserts run in the background.
type CHCycleStore struct {
	db      *sql.DB
	table   string
	timeout time.Duration
	l       *applogger.Logger
	wg      sync.WaitGroup
}

func NewCHCycleStore(ch *pkgch.Client, l *applogger.Logger) *CHCycleStore {
	return &CHCycleStore{db: ch.DB(), table: ch.Table("cycle_records"), timeout: 5 * time.Second, l: l}
}

func (s *CHCycleStore) Append(ctx context.Context, rec models.CycleRecord) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ictx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.Insert(ictx, rec); err != nil {
			s.l.Error("clickhouse cycle insert error",
				applogger.String("cycle_id", rec.CycleID),
				applogger.Error(err),
			)
		}
	}()
}

// Insert writes one record synchronously.
func (s *CHCycleStore) Insert(ctx context.Context, rec models.CycleRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cycle record: %w", err)
	}
	var strategyID, verdict string
	if rec.Selected != nil {
		strategyID = rec.Selected.StrategyID
	}
	if rec.Decision != nil {
		verdict = string(rec.Decision.Verdict)
	}
	q := fmt.Sprintf("INSERT INTO %s (cycle_id, started_at, finished_at, regime, outcome, strategy_id, verdict, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err = s.db.ExecContext(ctx, q,
		rec.CycleID,
		rec.StartedAt,
		rec.FinishedAt,
		string(rec.Regime),
		string(rec.Outcome),
		strategyID,
		verdict,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert cycle record: %w", err)
	}
	return nil
}

// Last returns the most recently started cycle, models.ErrNotFound when none exists.
func (s *CHCycleStore) Last(ctx context.Context) (models.CycleRecord, error) {
	q := fmt.Sprintf("SELECT payload FROM %s ORDER BY started_at DESC LIMIT 1", s.table)
	var payload string
	if err := s.db.QueryRowContext(ctx, q).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CycleRecord{}, models.ErrNotFound
		}
		return models.CycleRecord{}, fmt.Errorf("last cycle record: %w", err)
	}
	var rec models.CycleRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return models.CycleRecord{}, fmt.Errorf("decode cycle record: %w", err)
	}
	return rec, nil
}

// Close waits for pending inserts.
func (s *CHCycleStore) Close() error {
	s.wg.Wait()
	return nil
}

var (
	_ domrepo.CycleStore = (*CHCycleStore)(nil)
	_ domrepo.AuditSink  = (*CHCycleStore)(nil)
)
