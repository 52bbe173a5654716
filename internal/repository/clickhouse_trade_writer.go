package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"TradeLoop/internal/domain/models"
	pkgch "TradeLoop/pkg/clickhouse"
)

// CHTradeWriter appends live trades to the table the market source aggregates bars from.
type CHTradeWriter struct {
	db     *sql.DB
	table  string
	source string
}

func NewCHTradeWriter(ch *pkgch.Client, source string) *CHTradeWriter {
	return &CHTradeWriter{db: ch.DB(), table: ch.Table("trades"), source: source}
}

// StoreBatch inserts with multi-row VALUES, chunked to bound statement size.
func (w *CHTradeWriter) StoreBatch(ctx context.Context, trades []models.Quote) error {
	const chunkSize = 2000
	for start := 0; start < len(trades); start += chunkSize {
		end := start + chunkSize
		if end > len(trades) {
			end = len(trades)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*5)
		for _, t := range trades[start:end] {
			if t.Symbol == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, t.Timestamp, t.Symbol, t.Price, t.Volume, w.source)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (t, symbol, price, volume, source) VALUES %s", w.table, strings.Join(values, ","))
		if _, err := w.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
	}
	return nil
}
