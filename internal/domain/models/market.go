package models

import "time"

// Candle is one OHLCV bar.
type Candle struct {
	Bucket time.Time `json:"t"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// Quote is the latest traded price seen on the live stream.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// NewsItem carries a headline with a pre-scored sentiment in [-1,1].
type NewsItem struct {
	Symbol      string    `json:"symbol"`
	Headline    string    `json:"headline"`
	Sentiment   float64   `json:"sentiment"`
	Relevance   float64   `json:"relevance"`
	PublishedAt time.Time `json:"published_at"`
}

// FlowSnapshot aggregates options and off-exchange flow for one symbol.
type FlowSnapshot struct {
	Symbol         string  `json:"symbol"`
	CallPremium    float64 `json:"call_premium"`
	PutPremium     float64 `json:"put_premium"`
	DarkPoolVolume float64 `json:"dark_pool_volume"`
}

// MarketContext is the read-only market view handed to every producer in a cycle.
type MarketContext struct {
	Symbols []string                `json:"symbols"`
	AsOf    time.Time               `json:"as_of"`
	Bars    map[string][]Candle     `json:"bars,omitempty"`
	Quotes  map[string]Quote        `json:"quotes,omitempty"`
	News    []NewsItem              `json:"news,omitempty"`
	Flow    map[string]FlowSnapshot `json:"flow,omitempty"`
}

// Closes returns the close series for a symbol, oldest first.
func (m MarketContext) Closes(symbol string) []float64 {
	bars := m.Bars[symbol]
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		out = append(out, b.Close)
	}
	return out
}

// Empty reports whether the context carries no usable data.
func (m MarketContext) Empty() bool {
	return len(m.Bars) == 0 && len(m.Quotes) == 0 && len(m.News) == 0 && len(m.Flow) == 0
}
