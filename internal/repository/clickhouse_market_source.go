package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	pkgch "TradeLoop/pkg/clickhouse"
	applogger "TradeLoop/pkg/logger"
)

// MarketTables names the ClickHouse tables the market source reads.
type MarketTables struct {
	Trades string
	News   string
	Flow   string
}

// CHMarketSource builds a MarketContext from ClickHouse: bars aggregated from raw trades,
// recent news and the options flow window.
type CHMarketSource struct {
	db       *sql.DB
	tables   MarketTables
	tf       domrepo.Timeframe
	lookback int
	news     time.Duration
	l        *applogger.Logger
	now      func() time.Time
}

func NewCHMarketSource(ch *pkgch.Client, tf domrepo.Timeframe, lookback int, newsWindow time.Duration) *CHMarketSource {
	if lookback <= 0 {
		lookback = 120
	}
	if newsWindow <= 0 {
		newsWindow = 30 * time.Minute
	}
	return &CHMarketSource{
		db: ch.DB(),
		tables: MarketTables{
			Trades: ch.Table("trades"),
			News:   ch.Table("news"),
			Flow:   ch.Table("options_flow"),
		},
		tf:       tf,
		lookback: lookback,
		news:     newsWindow,
		l:        applogger.NewNop(),
		now:      time.Now,
	}
}

// SetLogger injects a structured logger.
func (s *CHMarketSource) SetLogger(l *applogger.Logger) { s.l = l }

// GetContext fails only when bars cannot be read. News and flow are best effort: their
// producers abstain on an empty section.
func (s *CHMarketSource) GetContext(ctx context.Context, symbols []string) (models.MarketContext, error) {
	start := time.Now()
	mc := models.MarketContext{
		Symbols: symbols,
		AsOf:    s.now().UTC(),
		Bars:    make(map[string][]models.Candle, len(symbols)),
		Quotes:  make(map[string]models.Quote, len(symbols)),
	}
	for _, sym := range symbols {
		bars, err := s.latestBars(ctx, sym)
		if err != nil {
			s.l.Error("clickhouse bars query error",
				applogger.String("symbol", sym),
				applogger.String("tf", string(s.tf)),
				applogger.Error(err),
			)
			return models.MarketContext{}, err
		}
		if len(bars) == 0 {
			continue
		}
		mc.Bars[sym] = bars
		last := bars[len(bars)-1]
		mc.Quotes[sym] = models.Quote{Symbol: sym, Price: last.Close, Volume: last.Volume, Timestamp: last.Bucket}
	}

	want := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		want[sym] = true
	}
	news, err := s.recentNews(ctx, mc.AsOf.Add(-s.news), want)
	if err != nil {
		s.l.Warn("clickhouse news query error", applogger.Error(err))
	}
	mc.News = news

	flow, err := s.flow(ctx, mc.AsOf.Add(-s.news), want)
	if err != nil {
		s.l.Warn("clickhouse flow query error", applogger.Error(err))
	}
	mc.Flow = flow

	s.l.Debug("clickhouse market context ok",
		applogger.Int("symbols", len(mc.Bars)),
		applogger.Int("news", len(mc.News)),
		applogger.Int("flow", len(mc.Flow)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return mc, nil
}

func (s *CHMarketSource) latestBars(ctx context.Context, symbol string) ([]models.Candle, error) {
	const qtpl = `
        SELECT %s AS bucket, symbol,
               argMin(price, t) AS open, max(price) AS high, min(price) AS low,
               argMax(price, t) AS close, sum(volume) AS vol
        FROM %s
        WHERE symbol = ?
        GROUP BY bucket, symbol
        ORDER BY bucket DESC
        LIMIT ?
    `
	q := fmt.Sprintf(qtpl, s.tf.Bucket(), s.tables.Trades)
	rows, err := s.db.QueryContext(ctx, q, symbol, s.lookback)
	if err != nil {
		return nil, fmt.Errorf("get bars %s: %w", symbol, err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, s.lookback)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// oldest first
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHMarketSource) recentNews(ctx context.Context, since time.Time, want map[string]bool) ([]models.NewsItem, error) {
	q := fmt.Sprintf(`
        SELECT symbol, headline, sentiment, relevance, published_at
        FROM %s
        WHERE published_at >= ?
        ORDER BY published_at DESC
        LIMIT 500
    `, s.tables.News)
	rows, err := s.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("get news: %w", err)
	}
	defer rows.Close()

	var out []models.NewsItem
	for rows.Next() {
		var n models.NewsItem
		if err := rows.Scan(&n.Symbol, &n.Headline, &n.Sentiment, &n.Relevance, &n.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		if want[n.Symbol] {
			out = append(out, n)
		}
	}
	return out, rows.Err()
}

func (s *CHMarketSource) flow(ctx context.Context, since time.Time, want map[string]bool) (map[string]models.FlowSnapshot, error) {
	q := fmt.Sprintf(`
        SELECT symbol, sum(call_premium), sum(put_premium), sum(dark_pool_volume)
        FROM %s
        WHERE ts >= ?
        GROUP BY symbol
    `, s.tables.Flow)
	rows, err := s.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}
	defer rows.Close()

	out := map[string]models.FlowSnapshot{}
	for rows.Next() {
		var f models.FlowSnapshot
		if err := rows.Scan(&f.Symbol, &f.CallPremium, &f.PutPremium, &f.DarkPoolVolume); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		if want[f.Symbol] {
			out[f.Symbol] = f
		}
	}
	return out, rows.Err()
}

// MarketSchema creates the tables the market source and cycle store read and write.
func MarketSchema(ch *pkgch.Client) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            t DateTime64(3, 'UTC'),
            symbol LowCardinality(String),
            price Float64,
            volume Float64,
            source LowCardinality(String)
        ) ENGINE = MergeTree ORDER BY (symbol, t) TTL toDateTime(t) + INTERVAL 30 DAY`, ch.Table("trades")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            symbol LowCardinality(String),
            headline String,
            sentiment Float64,
            relevance Float64,
            published_at DateTime64(3, 'UTC')
        ) ENGINE = MergeTree ORDER BY (published_at, symbol)`, ch.Table("news")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            ts DateTime64(3, 'UTC'),
            symbol LowCardinality(String),
            call_premium Float64,
            put_premium Float64,
            dark_pool_volume Float64
        ) ENGINE = MergeTree ORDER BY (symbol, ts)`, ch.Table("options_flow")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            cycle_id String,
            started_at DateTime64(3, 'UTC'),
            finished_at DateTime64(3, 'UTC'),
            regime LowCardinality(String),
            outcome LowCardinality(String),
            strategy_id String,
            verdict LowCardinality(String),
            payload String
        ) ENGINE = MergeTree ORDER BY started_at`, ch.Table("cycle_records")),
	}
}

var _ domrepo.MarketDataSource = (*CHMarketSource)(nil)
