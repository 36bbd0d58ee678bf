package market

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimFeed provides simulated market data for development and paper trading.
// Prices follow a random walk per symbol; indicator values are computed from
// the generated kline history so the pipeline sees internally consistent data.
type SimFeed struct {
	mu         sync.RWMutex
	rng        *rand.Rand
	prices     map[string]float64
	lastUpdate time.Time
}

// NewSimFeed creates a simulated feed seeded with realistic base prices.
// A zero seed uses the current time.
func NewSimFeed(seed int64) *SimFeed {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimFeed{
		rng: rand.New(rand.NewSource(seed)),
		prices: map[string]float64{
			"SPY":  560.00,
			"QQQ":  495.00,
			"AAPL": 230.00,
			"TSLA": 340.00,
			"NVDA": 135.00,
			"MSFT": 425.00,
			"AMZN": 205.00,
			"META": 580.00,
		},
		lastUpdate: time.Now(),
	}
}

// updatePrices adds small random variations to simulate market movement.
func (f *SimFeed) updatePrices() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if time.Since(f.lastUpdate) < time.Second {
		return
	}

	for symbol, price := range f.prices {
		// Random walk: -0.5% to +0.5% per tick
		change := (f.rng.Float64() - 0.5) * 0.01
		f.prices[symbol] = price * (1 + change)
	}
	f.lastUpdate = time.Now()
}

// basePrice returns the current simulated price, registering unknown symbols
// at a default level.
func (f *SimFeed) basePrice(symbol string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.prices[symbol]
	if !ok {
		price = 100.0
		f.prices[symbol] = price
	}
	return price
}

// GetSnapshot returns the current top-of-book state for a symbol.
func (f *SimFeed) GetSnapshot(symbol string) (Snapshot, error) {
	if symbol == "" {
		return Snapshot{}, fmt.Errorf("symbol is required")
	}
	f.updatePrices()
	price := f.basePrice(symbol)

	f.mu.Lock()
	// Spread of 1 to 5 basis points around the last price.
	halfSpread := price * (0.00005 + f.rng.Float64()*0.0002)
	high := price * (1 + f.rng.Float64()*0.01)
	low := price * (1 - f.rng.Float64()*0.01)
	volume := 500_000 + f.rng.Float64()*2_000_000
	f.mu.Unlock()

	return Snapshot{
		Symbol:    symbol,
		Price:     price,
		Bid:       price - halfSpread,
		Ask:       price + halfSpread,
		Volume:    volume,
		High:      high,
		Low:       low,
		Timestamp: time.Now(),
	}, nil
}

// GetIndicators generates a kline history ending at the current price and
// computes the indicator set from it.
func (f *SimFeed) GetIndicators(symbol string, window int) (IndicatorSet, error) {
	if window <= 0 {
		return IndicatorSet{}, fmt.Errorf("window must be positive, got %d", window)
	}
	f.updatePrices()
	price := f.basePrice(symbol)

	f.mu.Lock()
	klines := f.generateKlinesLocked(price, window)
	f.mu.Unlock()

	snap, err := f.GetSnapshot(symbol)
	if err != nil {
		return IndicatorSet{}, err
	}
	return ComputeIndicators(symbol, klines, snap), nil
}

// generateKlinesLocked builds a backward random walk that terminates at the
// current price.
func (f *SimFeed) generateKlinesLocked(endPrice float64, limit int) []Kline {
	klines := make([]Kline, limit)
	now := time.Now()
	interval := time.Minute

	// Walk backwards from the current price so the last close matches it.
	price := endPrice
	for i := limit - 1; i >= 0; i-- {
		openTime := now.Add(-time.Duration(limit-i) * interval)
		closeTime := openTime.Add(interval)

		volatility := 0.004
		close := price
		change := (f.rng.Float64() - 0.5) * volatility * 2
		open := close / (1 + change)

		high := math.Max(open, close) * (1 + f.rng.Float64()*volatility*0.5)
		low := math.Min(open, close) * (1 - f.rng.Float64()*volatility*0.5)
		volume := 10_000 + f.rng.Float64()*50_000

		klines[i] = Kline{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: closeTime.UnixMilli(),
		}

		price = open
	}

	return klines
}
