package market

import (
	"testing"
	"time"
)

// TestClassifySpreadWide tests that a spread above 0.2% of mid is WIDE
func TestClassifySpreadWide(t *testing.T) {
	analyzer := NewContextAnalyzer()

	snap := Snapshot{Symbol: "SPY", Price: 100, Bid: 99.8, Ask: 100.2}
	ctx := analyzer.Analyze(snap, IndicatorSet{})

	if ctx.SpreadQuality != SpreadWide {
		t.Errorf("Expected WIDE spread, got %s", ctx.SpreadQuality)
	}
}

// TestClassifySpreadTight tests tight spread classification
func TestClassifySpreadTight(t *testing.T) {
	analyzer := NewContextAnalyzer()

	snap := Snapshot{Symbol: "SPY", Price: 100, Bid: 99.99, Ask: 100.01}
	ctx := analyzer.Analyze(snap, IndicatorSet{})

	if ctx.SpreadQuality != SpreadTight {
		t.Errorf("Expected TIGHT spread, got %s", ctx.SpreadQuality)
	}
}

// TestClassifyVolatilityBuckets tests ATR/price bucketing
func TestClassifyVolatilityBuckets(t *testing.T) {
	analyzer := NewContextAnalyzer()

	cases := []struct {
		name     string
		atr      float64
		price    float64
		expected Volatility
	}{
		{"extreme", 4.0, 100, VolatilityExtreme},
		{"high", 2.5, 100, VolatilityHigh},
		{"normal", 1.5, 100, VolatilityNormal},
		{"low", 0.7, 100, VolatilityLow},
		{"very_low", 0.3, 100, VolatilityVeryLow},
	}

	for _, tc := range cases {
		snap := Snapshot{Symbol: "SPY", Price: tc.price, Bid: tc.price - 0.01, Ask: tc.price + 0.01}
		ind := IndicatorSet{ATR: tc.atr}

		ctx := analyzer.Analyze(snap, ind)
		if ctx.Volatility != tc.expected {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.expected, ctx.Volatility)
		}
	}
}

// TestClassifyTrend tests trend classification from momentum
func TestClassifyTrend(t *testing.T) {
	analyzer := NewContextAnalyzer()

	cases := []struct {
		name     string
		short    float64
		long     float64
		expected Trend
	}{
		{"strong_bullish", 2.0, 1.0, TrendStrongBullish},
		{"bullish", 0.8, 0.5, TrendBullish},
		{"neutral_disagreement", 1.0, -0.5, TrendNeutral},
		{"bearish", -0.8, -0.5, TrendBearish},
		{"strong_bearish", -2.0, -1.0, TrendStrongBearish},
		{"flat", 0.1, 0.1, TrendNeutral},
	}

	for _, tc := range cases {
		ind := IndicatorSet{ShortMomentum: tc.short, LongMomentum: tc.long}
		got := analyzer.classifyTrend(ind)
		if got != tc.expected {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

// TestClassifySessionPhases tests time-of-day bucketing
func TestClassifySessionPhases(t *testing.T) {
	analyzer := NewContextAnalyzer()

	open := time.Date(2025, 6, 2, 9, 45, 0, 0, time.UTC)
	mid := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)
	close := time.Date(2025, 6, 2, 15, 45, 0, 0, time.UTC)

	if got := analyzer.classifySession(open); got != SessionOpen {
		t.Errorf("Expected OPEN, got %s", got)
	}
	if got := analyzer.classifySession(mid); got != SessionMid {
		t.Errorf("Expected MID, got %s", got)
	}
	if got := analyzer.classifySession(close); got != SessionClose {
		t.Errorf("Expected CLOSE, got %s", got)
	}
}

// TestCalculateRSIBounds tests RSI behavior on monotonic series
func TestCalculateRSIBounds(t *testing.T) {
	rising := make([]Kline, 20)
	falling := make([]Kline, 20)
	for i := 0; i < 20; i++ {
		rising[i] = Kline{Close: 100 + float64(i)}
		falling[i] = Kline{Close: 100 - float64(i)}
	}

	if rsi := CalculateRSI(rising, 14); rsi != 100 {
		t.Errorf("Expected RSI 100 for rising series, got %f", rsi)
	}
	if rsi := CalculateRSI(falling, 14); rsi != 0 {
		t.Errorf("Expected RSI 0 for falling series, got %f", rsi)
	}
	if rsi := CalculateRSI(rising[:5], 14); rsi != 50 {
		t.Errorf("Expected neutral RSI 50 on short window, got %f", rsi)
	}
}

// TestCalculateATR tests true range averaging
func TestCalculateATR(t *testing.T) {
	klines := []Kline{
		{High: 102, Low: 98, Close: 100},
		{High: 103, Low: 99, Close: 101},
		{High: 104, Low: 100, Close: 102},
	}

	atr := CalculateATR(klines, 2)
	if atr != 4.0 {
		t.Errorf("Expected ATR 4.0, got %f", atr)
	}
}

// TestCalculateMomentum tests percent change calculation
func TestCalculateMomentum(t *testing.T) {
	klines := []Kline{
		{Close: 100},
		{Close: 101},
		{Close: 102},
		{Close: 105},
	}

	mom := CalculateMomentum(klines, 3)
	if mom != 5.0 {
		t.Errorf("Expected momentum 5.0%%, got %f", mom)
	}
}
