// Package market defines market data types, indicator math, and the
// context analyzer that classifies current conditions for the decision
// engine.
package market

import "time"

// Kline represents a single OHLCV candle.
type Kline struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// Snapshot represents the current top-of-book state for a symbol.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid returns the bid/ask midpoint, falling back to last price when the
// book is one-sided.
func (s Snapshot) Mid() float64 {
	if s.Bid > 0 && s.Ask > 0 {
		return (s.Bid + s.Ask) / 2
	}
	return s.Price
}

// SpreadPercent returns the relative bid/ask spread.
func (s Snapshot) SpreadPercent() float64 {
	mid := s.Mid()
	if mid <= 0 || s.Bid <= 0 || s.Ask <= 0 {
		return 0
	}
	return (s.Ask - s.Bid) / mid
}

// IndicatorSet holds the rolling indicator values derived from a symbol's
// kline window.
type IndicatorSet struct {
	Symbol        string  `json:"symbol"`
	RSI           float64 `json:"rsi"`
	ATR           float64 `json:"atr"`
	ShortMomentum float64 `json:"short_momentum"` // % change over the short lookback
	LongMomentum  float64 `json:"long_momentum"`  // % change over the long lookback
	AvgVolume     float64 `json:"avg_volume"`
	SpreadPercent float64 `json:"spread_percent"`
}

// ATRPercent returns ATR as a fraction of price (realized volatility proxy).
func (i IndicatorSet) ATRPercent(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return i.ATR / price
}

// DataFeed is the market data collaborator consumed by the coordinator.
type DataFeed interface {
	GetSnapshot(symbol string) (Snapshot, error)
	GetIndicators(symbol string, window int) (IndicatorSet, error)
}
