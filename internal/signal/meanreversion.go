package signal

import (
	"context"
	"fmt"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
)

// MeanReversionProducer is a deterministic producer that fades RSI extremes
// in non-trending markets.
type MeanReversionProducer struct {
	id            string
	oversoldRSI   float64
	overboughtRSI float64
	atrStopMult   float64
	atrTargetMult float64
}

// NewMeanReversionProducer creates a mean-reversion producer with default
// RSI bands (30/70) and ATR multipliers (1.0x stop, 1.5x target).
func NewMeanReversionProducer() *MeanReversionProducer {
	return &MeanReversionProducer{
		id:            "mean_reversion",
		oversoldRSI:   30,
		overboughtRSI: 70,
		atrStopMult:   1.0,
		atrTargetMult: 1.5,
	}
}

// ID returns the producer identifier.
func (p *MeanReversionProducer) ID() string { return p.id }

// Deterministic reports that this producer has a bounded latency.
func (p *MeanReversionProducer) Deterministic() bool { return true }

// Propose fades an RSI extreme, or NoOpinion when RSI is mid-range or the
// market is trending strongly against the fade.
func (p *MeanReversionProducer) Propose(_ context.Context, mctx market.Context, snap market.Snapshot, ind market.IndicatorSet) Result {
	var action Action
	var confidence float64

	switch {
	case ind.RSI <= p.oversoldRSI:
		action = ActionBuy
		confidence = 0.5 + (p.oversoldRSI-ind.RSI)/100
	case ind.RSI >= p.overboughtRSI:
		action = ActionSell
		confidence = 0.5 + (ind.RSI-p.overboughtRSI)/100
	default:
		return NoOpinion(p.id)
	}

	// Never fade a strong trend.
	if action == ActionBuy && mctx.Trend == market.TrendStrongBearish {
		return NoOpinion(p.id)
	}
	if action == ActionSell && mctx.Trend == market.TrendStrongBullish {
		return NoOpinion(p.id)
	}

	if confidence > 0.85 {
		confidence = 0.85
	}

	stop, target := atrLevels(snap.Price, ind.ATR, action, p.atrStopMult, p.atrTargetMult)

	return OK(Signal{
		Symbol:     snap.Symbol,
		Action:     action,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("rsi %.1f outside %.0f/%.0f band, trend %s", ind.RSI, p.oversoldRSI, p.overboughtRSI, mctx.Trend),
		StopLoss:   &stop,
		TakeProfit: &target,
		Source:     p.id,
	})
}
