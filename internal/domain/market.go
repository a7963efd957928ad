package domain

import "time"

// CryptoPrice is the latest spot price for an asset. Prices are tracked in
// both USD (exchange native) and EUR (display currency). Timestamps are
// always UTC.
type CryptoPrice struct {
	Symbol      string    `json:"symbol"`
	PriceUSD    float64   `json:"price_usd"`
	PriceEUR    float64   `json:"price_eur"`
	Change24h   float64   `json:"change_24h_pct"`
	High24h     float64   `json:"high_24h"`
	Low24h      float64   `json:"low_24h"`
	Volume24h   float64   `json:"volume_24h"`
	Timestamp   time.Time `json:"timestamp"`
}

// HistoryPoint is a single point of price history built from an exchange
// kline: close price in EUR plus the candle's high/low and volume.
type HistoryPoint struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// TechnicalIndicators holds the indicator snapshot computed from price
// history. Zero values mean "not enough data".
type TechnicalIndicators struct {
	RSI            float64 `json:"rsi"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	MACDHistogram  float64 `json:"macd_histogram"`
	MA20           float64 `json:"ma20"`
	MA50           float64 `json:"ma50"`
	BollingerUpper float64 `json:"bollinger_upper"`
	BollingerLower float64 `json:"bollinger_lower"`
	Support        float64 `json:"support"`
	Resistance     float64 `json:"resistance"`
	VolumeTrend    string  `json:"volume_trend"`
}

// MarketData aggregates everything the analysis pipeline needs for one
// symbol in one polling cycle.
type MarketData struct {
	Symbol       string              `json:"symbol"`
	CurrentPrice CryptoPrice         `json:"current_price"`
	Indicators   TechnicalIndicators `json:"indicators"`
	FearGreed    int                 `json:"fear_greed,omitempty"` // 0 means unknown
	FundingRate  float64             `json:"funding_rate"`
	HasFunding   bool                `json:"has_funding"`
	OpenInterest float64             `json:"open_interest"`
	History      []HistoryPoint      `json:"-"`
}

// MaxHistoryPoints caps the in-memory price history per symbol.
const MaxHistoryPoints = 200

// PriceChange returns the percent change over the trailing window, using
// the oldest and newest history points inside it. Returns 0 when fewer
// than two points fall inside the window.
func (m *MarketData) PriceChange(window time.Duration) float64 {
	if len(m.History) < 2 {
		return 0
	}
	cutoff := m.CurrentPrice.Timestamp.Add(-window)

	var oldest, newest *HistoryPoint
	for i := range m.History {
		p := &m.History[i]
		if p.Timestamp.Before(cutoff) {
			continue
		}
		if oldest == nil || p.Timestamp.Before(oldest.Timestamp) {
			oldest = p
		}
		if newest == nil || p.Timestamp.After(newest.Timestamp) {
			newest = p
		}
	}
	if oldest == nil || newest == nil || oldest == newest || oldest.Price == 0 {
		return 0
	}
	return (newest.Price - oldest.Price) / oldest.Price * 100
}

// Extremes holds min/max/avg EUR price over a history window.
type Extremes struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}
