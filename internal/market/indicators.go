package market

import "math"

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates Simple Moving Average over closes
func CalculateSMA(klines []Kline, period int) float64 {
	if len(klines) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	startIdx := len(klines) - period

	for i := startIdx; i < len(klines); i++ {
		sum += klines[i].Close
	}

	return sum / float64(period)
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the Relative Strength Index
func CalculateRSI(klines []Kline, period int) float64 {
	if len(klines) < period+1 {
		return 50.0 // Neutral RSI
	}

	gains := 0.0
	losses := 0.0
	startIdx := len(klines) - period

	for i := startIdx; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// CalculateATR calculates the Average True Range
func CalculateATR(klines []Kline, period int) float64 {
	if len(klines) < period+1 {
		return 0
	}

	trSum := 0.0
	startIdx := len(klines) - period

	for i := startIdx; i < len(klines); i++ {
		highLow := klines[i].High - klines[i].Low
		highClose := math.Abs(klines[i].High - klines[i-1].Close)
		lowClose := math.Abs(klines[i].Low - klines[i-1].Close)

		tr := math.Max(highLow, math.Max(highClose, lowClose))
		trSum += tr
	}

	return trSum / float64(period)
}

// ============================================================================
// MOMENTUM
// ============================================================================

// CalculateMomentum returns the percent change of close over the period
func CalculateMomentum(klines []Kline, period int) float64 {
	if len(klines) < period+1 {
		return 0
	}

	current := klines[len(klines)-1].Close
	past := klines[len(klines)-1-period].Close
	if past == 0 {
		return 0
	}

	return (current - past) / past * 100.0
}

// CalculateAverageVolume returns the mean volume over the period
func CalculateAverageVolume(klines []Kline, period int) float64 {
	if len(klines) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	startIdx := len(klines) - period

	for i := startIdx; i < len(klines); i++ {
		sum += klines[i].Volume
	}

	return sum / float64(period)
}

// ComputeIndicators derives the full indicator set from a kline window and
// the latest snapshot. Lookbacks: RSI 14, ATR 14, momentum 5/20.
func ComputeIndicators(symbol string, klines []Kline, snap Snapshot) IndicatorSet {
	return IndicatorSet{
		Symbol:        symbol,
		RSI:           CalculateRSI(klines, 14),
		ATR:           CalculateATR(klines, 14),
		ShortMomentum: CalculateMomentum(klines, 5),
		LongMomentum:  CalculateMomentum(klines, 20),
		AvgVolume:     CalculateAverageVolume(klines, 20),
		SpreadPercent: snap.SpreadPercent(),
	}
}
