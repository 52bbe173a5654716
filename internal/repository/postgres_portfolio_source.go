package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	"TradeLoop/pkg/postgres"

	"gorm.io/gorm"
)

// portfolioSnapshot is written by the risk desk; this service only reads it.
type portfolioSnapshot struct {
	ID                   string    `gorm:"column:id;primaryKey"`
	TakenAt              time.Time `gorm:"column:taken_at"`
	Equity               float64   `gorm:"column:equity"`
	VaR                  float64   `gorm:"column:var"`
	CorrelationBreakdown bool      `gorm:"column:correlation_breakdown"`
}

func (portfolioSnapshot) TableName() string { return "portfolio_snapshots" }

type portfolioPosition struct {
	SnapshotID  string  `gorm:"column:snapshot_id"`
	Symbol      string  `gorm:"column:symbol"`
	Quantity    float64 `gorm:"column:quantity"`
	MarketValue float64 `gorm:"column:market_value"`
}

func (portfolioPosition) TableName() string { return "portfolio_positions" }

// PGPortfolioSource reads the newest portfolio snapshot and its positions.
type PGPortfolioSource struct {
	db     *gorm.DB
	maxAge time.Duration
	now    func() time.Time
}

// NewPGPortfolioSource rejects snapshots older than maxAge; zero disables the check.
func NewPGPortfolioSource(c *postgres.Client, maxAge time.Duration) *PGPortfolioSource {
	return &PGPortfolioSource{db: c.DB(), maxAge: maxAge, now: time.Now}
}

func (s *PGPortfolioSource) GetSnapshot(ctx context.Context) (models.PortfolioState, error) {
	var snap portfolioSnapshot
	err := s.db.WithContext(ctx).Order("taken_at DESC").Take(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PortfolioState{}, models.ErrNoSnapshot
	}
	if err != nil {
		return models.PortfolioState{}, fmt.Errorf("load snapshot: %w", err)
	}
	if s.maxAge > 0 && s.now().Sub(snap.TakenAt) > s.maxAge {
		return models.PortfolioState{}, fmt.Errorf("%w: snapshot %s taken %s ago", models.ErrNoSnapshot, snap.ID, s.now().Sub(snap.TakenAt).Round(time.Second))
	}

	var rows []portfolioPosition
	if err := s.db.WithContext(ctx).Where("snapshot_id = ?", snap.ID).Find(&rows).Error; err != nil {
		return models.PortfolioState{}, fmt.Errorf("load positions: %w", err)
	}

	out := models.PortfolioState{
		SnapshotID:           snap.ID,
		TakenAt:              snap.TakenAt,
		Equity:               snap.Equity,
		VaR:                  snap.VaR,
		CorrelationBreakdown: snap.CorrelationBreakdown,
		Positions:            make([]models.Position, 0, len(rows)),
		Exposure:             make(map[string]float64, len(rows)),
	}
	for _, r := range rows {
		out.Positions = append(out.Positions, models.Position{Symbol: r.Symbol, Quantity: r.Quantity, MarketValue: r.MarketValue})
		out.Exposure[r.Symbol] += r.MarketValue
	}
	return out, nil
}

var _ domrepo.PortfolioSource = (*PGPortfolioSource)(nil)
