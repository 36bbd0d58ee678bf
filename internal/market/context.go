package market

import "time"

// Trend classifies directional bias from short/long momentum.
type Trend string

const (
	TrendStrongBullish Trend = "STRONG_BULLISH"
	TrendBullish       Trend = "BULLISH"
	TrendNeutral       Trend = "NEUTRAL"
	TrendBearish       Trend = "BEARISH"
	TrendStrongBearish Trend = "STRONG_BEARISH"
)

// Volatility buckets realized volatility (ATR/price).
type Volatility string

const (
	VolatilityVeryLow Volatility = "VERY_LOW"
	VolatilityLow     Volatility = "LOW"
	VolatilityNormal  Volatility = "NORMAL"
	VolatilityHigh    Volatility = "HIGH"
	VolatilityExtreme Volatility = "EXTREME"
)

// SpreadQuality classifies the bid/ask spread.
type SpreadQuality string

const (
	SpreadTight  SpreadQuality = "TIGHT"
	SpreadNormal SpreadQuality = "NORMAL"
	SpreadWide   SpreadQuality = "WIDE"
)

// SessionPhase buckets the trading session by time of day.
type SessionPhase string

const (
	SessionOpen  SessionPhase = "OPEN"
	SessionMid   SessionPhase = "MID"
	SessionClose SessionPhase = "CLOSE"
)

// Context is the discrete market classification consumed by the decision
// engine. Derived per cycle, never persisted.
type Context struct {
	Trend         Trend         `json:"trend"`
	Volatility    Volatility    `json:"volatility"`
	SpreadQuality SpreadQuality `json:"spread_quality"`
	SessionPhase  SessionPhase  `json:"session_phase"`
}

// Spread and volatility classification thresholds.
const (
	wideSpreadThreshold  = 0.002
	tightSpreadThreshold = 0.0005

	extremeVolThreshold = 0.035
	highVolThreshold    = 0.02
	lowVolThreshold     = 0.01
	veryLowVolThreshold = 0.005

	strongTrendMomentum = 1.5
	trendMomentum       = 0.4
)

// ContextAnalyzer derives a Context from a snapshot and indicator set.
// Pure classification only, no I/O.
type ContextAnalyzer struct {
	sessionOpen  time.Duration // minutes after session start considered OPEN
	sessionClose time.Duration // minutes before session end considered CLOSE
}

// NewContextAnalyzer creates a context analyzer with default session bounds
// (first 30 minutes OPEN, last 30 minutes CLOSE of a 6.5h session).
func NewContextAnalyzer() *ContextAnalyzer {
	return &ContextAnalyzer{
		sessionOpen:  30 * time.Minute,
		sessionClose: 30 * time.Minute,
	}
}

// Analyze classifies the current market conditions.
func (a *ContextAnalyzer) Analyze(snap Snapshot, ind IndicatorSet) Context {
	return Context{
		Trend:         a.classifyTrend(ind),
		Volatility:    a.classifyVolatility(snap, ind),
		SpreadQuality: a.classifySpread(snap),
		SessionPhase:  a.classifySession(snap.Timestamp),
	}
}

// classifyTrend derives trend from short/long momentum sign and magnitude.
// Both lookbacks must agree in sign before a directional call is made.
func (a *ContextAnalyzer) classifyTrend(ind IndicatorSet) Trend {
	short := ind.ShortMomentum
	long := ind.LongMomentum

	switch {
	case short > strongTrendMomentum && long > 0:
		return TrendStrongBullish
	case short > trendMomentum && long > 0:
		return TrendBullish
	case short < -strongTrendMomentum && long < 0:
		return TrendStrongBearish
	case short < -trendMomentum && long < 0:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// classifyVolatility buckets ATR as a fraction of price.
func (a *ContextAnalyzer) classifyVolatility(snap Snapshot, ind IndicatorSet) Volatility {
	atrPct := ind.ATRPercent(snap.Price)

	switch {
	case atrPct >= extremeVolThreshold:
		return VolatilityExtreme
	case atrPct >= highVolThreshold:
		return VolatilityHigh
	case atrPct < veryLowVolThreshold:
		return VolatilityVeryLow
	case atrPct < lowVolThreshold:
		return VolatilityLow
	default:
		return VolatilityNormal
	}
}

// classifySpread marks the spread WIDE above 0.2% of mid.
func (a *ContextAnalyzer) classifySpread(snap Snapshot) SpreadQuality {
	spread := snap.SpreadPercent()

	switch {
	case spread > wideSpreadThreshold:
		return SpreadWide
	case spread < tightSpreadThreshold:
		return SpreadTight
	default:
		return SpreadNormal
	}
}

// classifySession buckets time of day against a 09:30-16:00 session clock.
func (a *ContextAnalyzer) classifySession(ts time.Time) SessionPhase {
	if ts.IsZero() {
		return SessionMid
	}

	minutes := ts.Hour()*60 + ts.Minute()
	sessionStart := 9*60 + 30
	sessionEnd := 16 * 60

	switch {
	case minutes < sessionStart+int(a.sessionOpen.Minutes()):
		return SessionOpen
	case minutes >= sessionEnd-int(a.sessionClose.Minutes()):
		return SessionClose
	default:
		return SessionMid
	}
}
