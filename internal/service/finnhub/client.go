package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	svcmetrics "TradeLoop/internal/service/metrics"
	"TradeLoop/pkg/logger"

	"github.com/gorilla/websocket"
)

// TradeSink receives every batch of trades read from the feed.
type TradeSink interface {
	StoreBatch(ctx context.Context, trades []models.Quote) error
}

// QuoteBook keeps the latest trade per symbol from the Finnhub websocket and serves it
// as a live overlay on the market context.
type QuoteBook struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	maxAge         time.Duration
	sink           TradeSink
	log            *logger.Logger
	now            func() time.Time

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool

	mu     sync.RWMutex
	quotes map[string]models.Quote
}

type Option func(*QuoteBook)

// WithMaxAge hides quotes older than d from Latest.
func WithMaxAge(d time.Duration) Option { return func(q *QuoteBook) { q.maxAge = d } }

// WithTradeSink forwards every received batch, e.g. to the ClickHouse trades table.
func WithTradeSink(s TradeSink) Option { return func(q *QuoteBook) { q.sink = s } }

func New(l *logger.Logger, apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, opts ...Option) *QuoteBook {
	q := &QuoteBook{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		maxAge:         time.Minute,
		log:            l,
		now:            time.Now,
		quotes:         make(map[string]models.Quote, len(symbols)),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.reconnectDelay <= 0 {
		q.reconnectDelay = 5 * time.Second
	}
	if q.pingInterval <= 0 {
		q.pingInterval = 30 * time.Second
	}
	return q
}

// Latest returns fresh quotes for the requested symbols.
func (q *QuoteBook) Latest(symbols []string) map[string]models.Quote {
	now := q.now()
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make(map[string]models.Quote, len(symbols))
	for _, s := range symbols {
		qt, ok := q.quotes[s]
		if !ok {
			continue
		}
		if q.maxAge > 0 && now.Sub(qt.Timestamp) > q.maxAge {
			continue
		}
		out[s] = qt
	}
	return out
}

// Run connects, subscribes and reads until ctx ends, reconnecting after every failure.
func (q *QuoteBook) Run(ctx context.Context) error {
	for {
		err := q.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		q.log.Warn("finnhub session ended", logger.Error(err), logger.Duration("retry_in_ms", q.reconnectDelay))
		svcmetrics.QuoteReconnects.Inc()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(q.reconnectDelay):
		}
	}
}

func (q *QuoteBook) session(ctx context.Context) error {
	if err := q.Connect(ctx); err != nil {
		return err
	}
	defer q.Close()
	if err := q.Subscribe(); err != nil {
		return err
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go q.pingLoop(sctx)
	go func() {
		<-sctx.Done()
		// unblocks ReadMessage
		q.Close()
	}()
	return q.readLoop(sctx)
}

// Connect establishes the WebSocket connection.
func (q *QuoteBook) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", q.websocketURL, q.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	q.connMu.Lock()
	q.conn = conn
	q.connected = true
	q.connMu.Unlock()
	q.log.Info("finnhub connected", logger.Strings("symbols", q.symbols))
	return nil
}

// Subscribe subscribes to configured symbols.
func (q *QuoteBook) Subscribe() error {
	q.connMu.Lock()
	defer q.connMu.Unlock()
	if q.conn == nil || !q.connected {
		return fmt.Errorf("finnhub not connected")
	}
	for _, s := range q.symbols {
		if err := q.conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

func (q *QuoteBook) readLoop(ctx context.Context) error {
	q.connMu.Lock()
	conn := q.conn
	q.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("finnhub conn nil")
	}
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		var m fhMessage
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
			// pings and subscription acks
			continue
		}
		q.apply(ctx, m.Data)
	}
}

func (q *QuoteBook) apply(ctx context.Context, data []fhTrade) {
	if len(data) == 0 {
		return
	}
	now := q.now()
	batch := make([]models.Quote, 0, len(data))
	q.mu.Lock()
	for _, d := range data {
		qt := models.Quote{Symbol: d.S, Price: d.P, Volume: d.V, Timestamp: time.UnixMilli(d.T).UTC()}
		batch = append(batch, qt)
		if prev, ok := q.quotes[d.S]; ok && prev.Timestamp.After(qt.Timestamp) {
			continue
		}
		q.quotes[d.S] = qt
		svcmetrics.QuoteTrades.WithLabelValues(d.S).Inc()
		svcmetrics.QuoteLag.Observe(now.Sub(qt.Timestamp).Seconds())
	}
	q.mu.Unlock()

	if q.sink != nil {
		sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := q.sink.StoreBatch(sctx, batch); err != nil {
			q.log.Warn("trade sink store", logger.Int("trades", len(batch)), logger.Error(err))
		}
	}
}

func (q *QuoteBook) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(q.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.connMu.Lock()
			if q.conn != nil {
				_ = q.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			q.connMu.Unlock()
		}
	}
}

// Close closes the WS connection.
func (q *QuoteBook) Close() error {
	q.connMu.Lock()
	defer q.connMu.Unlock()
	q.connected = false
	if q.conn != nil {
		err := q.conn.Close()
		q.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (q *QuoteBook) IsConnected() bool {
	q.connMu.Lock()
	defer q.connMu.Unlock()
	return q.connected
}

var _ domrepo.QuoteBook = (*QuoteBook)(nil)
