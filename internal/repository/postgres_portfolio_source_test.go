package repository

import (
	"context"
	"testing"
	"time"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPortfolio(t *testing.T, maxAge time.Duration) (*PGPortfolioSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	c, err := postgres.NewFromConn(db)
	require.NoError(t, err)
	src := NewPGPortfolioSource(c, maxAge)
	src.now = func() time.Time { return asOf }
	return src, mock
}

func snapshotRows(id string, takenAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "taken_at", "equity", "var", "correlation_breakdown"}).
		AddRow(id, takenAt, 1_000_000.0, 42_000.0, true)
}

func TestPortfolioSnapshotWithPositions(t *testing.T) {
	src, mock := newMockPortfolio(t, 5*time.Minute)

	mock.ExpectQuery(`SELECT \* FROM "portfolio_snapshots" ORDER BY taken_at DESC`).
		WillReturnRows(snapshotRows("s1", asOf.Add(-time.Minute)))
	mock.ExpectQuery(`SELECT \* FROM "portfolio_positions" WHERE snapshot_id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_id", "symbol", "quantity", "market_value"}).
			AddRow("s1", "SPY", 100.0, 50_000.0).
			AddRow("s1", "SPY", -20.0, -10_000.0).
			AddRow("s1", "QQQ", 10.0, 4_000.0))

	snap, err := src.GetSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.SnapshotID)
	assert.Equal(t, 42_000.0, snap.VaR)
	assert.True(t, snap.CorrelationBreakdown)
	assert.Len(t, snap.Positions, 3)
	assert.Equal(t, 40_000.0, snap.ExposureTo("SPY"))
	assert.Equal(t, 4_000.0, snap.ExposureTo("QQQ"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPortfolioNoSnapshot(t *testing.T) {
	src, mock := newMockPortfolio(t, 0)
	mock.ExpectQuery(`FROM "portfolio_snapshots"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "taken_at", "equity", "var", "correlation_breakdown"}))

	_, err := src.GetSnapshot(context.Background())
	assert.ErrorIs(t, err, models.ErrNoSnapshot)
}

func TestPortfolioStaleSnapshot(t *testing.T) {
	src, mock := newMockPortfolio(t, time.Minute)
	mock.ExpectQuery(`FROM "portfolio_snapshots"`).WillReturnRows(snapshotRows("old", asOf.Add(-time.Hour)))

	_, err := src.GetSnapshot(context.Background())
	assert.ErrorIs(t, err, models.ErrNoSnapshot)
	assert.ErrorContains(t, err, "old")
}
