package signal

import (
	"context"
	"fmt"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
)

// MomentumProducer is a deterministic producer that proposes entries in the
// direction of an established trend, with stops derived from ATR.
type MomentumProducer struct {
	id            string
	atrStopMult   float64
	atrTargetMult float64
}

// NewMomentumProducer creates a momentum producer with default ATR
// multipliers (1.5x stop, 2.5x target).
func NewMomentumProducer() *MomentumProducer {
	return &MomentumProducer{
		id:            "momentum",
		atrStopMult:   1.5,
		atrTargetMult: 2.5,
	}
}

// ID returns the producer identifier.
func (p *MomentumProducer) ID() string { return p.id }

// Deterministic reports that this producer has a bounded latency.
func (p *MomentumProducer) Deterministic() bool { return true }

// Propose emits a trend-following proposal, or NoOpinion when the market
// is directionless.
func (p *MomentumProducer) Propose(_ context.Context, mctx market.Context, snap market.Snapshot, ind market.IndicatorSet) Result {
	var action Action
	var base float64

	switch mctx.Trend {
	case market.TrendStrongBullish:
		action, base = ActionBuy, 0.75
	case market.TrendBullish:
		action, base = ActionBuy, 0.6
	case market.TrendStrongBearish:
		action, base = ActionSell, 0.75
	case market.TrendBearish:
		action, base = ActionSell, 0.6
	default:
		return NoOpinion(p.id)
	}

	// Momentum entries degrade in stretched RSI territory.
	confidence := base
	if action == ActionBuy && ind.RSI > 65 {
		confidence -= 0.15
	}
	if action == ActionSell && ind.RSI < 35 {
		confidence -= 0.15
	}
	if mctx.Volatility == market.VolatilityExtreme {
		confidence -= 0.2
	}
	if confidence < 0.3 {
		return NoOpinion(p.id)
	}

	stop, target := atrLevels(snap.Price, ind.ATR, action, p.atrStopMult, p.atrTargetMult)

	return OK(Signal{
		Symbol:     snap.Symbol,
		Action:     action,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("trend %s, rsi %.1f, short momentum %.2f%%", mctx.Trend, ind.RSI, ind.ShortMomentum),
		StopLoss:   &stop,
		TakeProfit: &target,
		Source:     p.id,
	})
}

// atrLevels derives stop/target levels from ATR on either side of price.
func atrLevels(price, atr float64, action Action, stopMult, targetMult float64) (stop, target float64) {
	if atr <= 0 {
		atr = price * 0.005
	}
	if action == ActionBuy {
		return price - atr*stopMult, price + atr*targetMult
	}
	return price + atr*stopMult, price - atr*targetMult
}
