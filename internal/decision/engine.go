// Package decision implements the fast multi-factor decision engine. It
// turns a market context plus collected signal results into a single
// trading decision per cycle, inside a strict latency budget.
package decision

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/signal"
)

// Action represents the engine's verdict for a cycle
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

// Regime selects which factor weighting profile is active.
type Regime string

const (
	RegimeMomentum      Regime = "MOMENTUM"
	RegimeMeanReversion Regime = "MEAN_REVERSION"
)

// TradingDecision is the single output of a completed decision cycle.
type TradingDecision struct {
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"` // reference price at decision time
	Action         Action    `json:"action"`
	Confidence     float64   `json:"confidence"`     // 0..1
	SizeMultiplier float64   `json:"sizeMultiplier"` // 0..1.2, adjusted downstream by the risk gate
	StopLoss       float64   `json:"stopLoss"`
	TakeProfit     float64   `json:"takeProfit"`
	Reasoning      string    `json:"reasoning"`
	CycleID        string    `json:"cycleId"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsEntry reports whether the decision opens a position.
func (d TradingDecision) IsEntry() bool {
	return d.Action == ActionBuy || d.Action == ActionSell
}

// FactorWeights defines the weight of each scoring factor.
type FactorWeights struct {
	TrendAlignment    float64
	RSIPositioning    float64
	VolumeConfirm     float64
	AdvisoryAgreement float64
}

// GetFactorWeights returns the weighting profile for a regime.
func GetFactorWeights(regime Regime) FactorWeights {
	switch regime {
	case RegimeMeanReversion:
		return FactorWeights{
			TrendAlignment:    0.15,
			RSIPositioning:    0.40, // RSI extremes drive mean-reversion entries
			VolumeConfirm:     0.20,
			AdvisoryAgreement: 0.25,
		}
	default:
		return FactorWeights{
			TrendAlignment:    0.40, // trend carries momentum entries
			RSIPositioning:    0.15,
			VolumeConfirm:     0.20,
			AdvisoryAgreement: 0.25,
		}
	}
}

// EngineConfig holds decision engine configuration
type EngineConfig struct {
	Budget              time.Duration `json:"budget"`               // wall clock from context availability
	MinConfidence       float64       `json:"min_confidence"`       // floor below which the engine waits
	DispersionThreshold float64       `json:"dispersion_threshold"` // opposing-weight fraction that forces WAIT
	RSIOverbought       float64       `json:"rsi_overbought"`
	RSIOversold         float64       `json:"rsi_oversold"`
}

// DefaultEngineConfig returns default configuration
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Budget:              100 * time.Millisecond,
		MinConfidence:       0.45,
		DispersionThreshold: 0.35,
		RSIOverbought:       80,
		RSIOversold:         20,
	}
}

// Engine scores collected signals against the market context.
type Engine struct {
	config *EngineConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine creates a decision engine.
func NewEngine(config *EngineConfig, logger zerolog.Logger) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	return &Engine{
		config: config,
		logger: logger.With().Str("component", "DecisionEngine").Logger(),
		now:    time.Now,
	}
}

// Budget returns the engine's wall-clock budget.
func (e *Engine) Budget() time.Duration { return e.config.Budget }

// Evaluate produces the cycle's decision. The deadline is the instant the
// latency budget expires, measured from context availability; past it the
// engine fails safe to WAIT rather than deciding on stale inputs.
func (e *Engine) Evaluate(cycleID string, mctx market.Context, snap market.Snapshot, ind market.IndicatorSet, results []signal.Result, regime Regime, deadline time.Time) TradingDecision {
	wait := func(reason string) TradingDecision {
		return TradingDecision{
			Symbol:    snap.Symbol,
			Action:    ActionWait,
			Reasoning: reason,
			CycleID:   cycleID,
			Timestamp: e.now(),
		}
	}

	if !deadline.IsZero() && e.now().After(deadline) {
		return wait("budget_exceeded")
	}

	// Hard rejection rules run before any scoring.
	if mctx.SpreadQuality == market.SpreadWide {
		return wait("wide_spread")
	}

	signals := genuineSignals(results)
	if len(signals) == 0 {
		return wait("no_signals")
	}

	action, agreeWeight, opposeWeight := tallyVotes(signals)
	if action == ActionWait {
		return wait("no_directional_signal")
	}

	// Anti-chasing: stretched RSI vetoes entries in the stretched direction.
	if action == ActionBuy && ind.RSI > e.config.RSIOverbought {
		return wait(fmt.Sprintf("rsi_overbought_%.0f", ind.RSI))
	}
	if action == ActionSell && ind.RSI < e.config.RSIOversold {
		return wait(fmt.Sprintf("rsi_oversold_%.0f", ind.RSI))
	}

	// Source dispersion above the threshold means no effective consensus.
	if total := agreeWeight + opposeWeight; total > 0 && opposeWeight/total > e.config.DispersionThreshold {
		return wait("source_dispersion")
	}

	weights := GetFactorWeights(regime)
	score := weights.TrendAlignment*trendAlignmentScore(action, mctx.Trend) +
		weights.RSIPositioning*rsiPositionScore(action, ind.RSI) +
		weights.VolumeConfirm*volumeConfirmScore(snap, ind) +
		weights.AdvisoryAgreement*advisoryAgreementScore(action, results)

	confidence := clamp01(score * consensusStrength(signals, action))
	if confidence < e.config.MinConfidence {
		return wait(fmt.Sprintf("low_confidence_%.2f", confidence))
	}

	if !deadline.IsZero() && e.now().After(deadline) {
		return wait("budget_exceeded")
	}

	stop, target := pickLevels(signals, action)

	decision := TradingDecision{
		Symbol:         snap.Symbol,
		Price:          snap.Price,
		Action:         action,
		Confidence:     confidence,
		SizeMultiplier: 1.0,
		StopLoss:       stop,
		TakeProfit:     target,
		Reasoning:      fmt.Sprintf("%s consensus from %d sources, regime %s, trend %s", action, len(signals), regime, mctx.Trend),
		CycleID:        cycleID,
		Timestamp:      e.now(),
	}

	e.logger.Debug().
		Str("symbol", snap.Symbol).
		Str("cycle_id", cycleID).
		Str("action", string(action)).
		Float64("confidence", confidence).
		Msg("decision produced")

	return decision
}

// genuineSignals filters results down to real proposals. Timeouts,
// malformed answers and abstentions all count as absence of a signal.
func genuineSignals(results []signal.Result) []signal.Signal {
	var signals []signal.Signal
	for _, r := range results {
		if r.HasSignal() {
			signals = append(signals, *r.Signal)
		}
	}
	return signals
}

// tallyVotes picks the dominant direction by confidence-weighted vote.
func tallyVotes(signals []signal.Signal) (Action, float64, float64) {
	var buyWeight, sellWeight float64
	for _, s := range signals {
		switch s.Action {
		case signal.ActionBuy:
			buyWeight += s.Confidence
		case signal.ActionSell:
			sellWeight += s.Confidence
		}
	}

	switch {
	case buyWeight == 0 && sellWeight == 0:
		return ActionWait, 0, 0
	case buyWeight >= sellWeight:
		return ActionBuy, buyWeight, sellWeight
	default:
		return ActionSell, sellWeight, buyWeight
	}
}

// trendAlignmentScore rewards decisions aligned with the classified trend.
func trendAlignmentScore(action Action, trend market.Trend) float64 {
	var aligned map[market.Trend]float64
	if action == ActionBuy {
		aligned = map[market.Trend]float64{
			market.TrendStrongBullish: 1.0,
			market.TrendBullish:       0.8,
			market.TrendNeutral:       0.5,
			market.TrendBearish:       0.2,
			market.TrendStrongBearish: 0.0,
		}
	} else {
		aligned = map[market.Trend]float64{
			market.TrendStrongBearish: 1.0,
			market.TrendBearish:       0.8,
			market.TrendNeutral:       0.5,
			market.TrendBullish:       0.2,
			market.TrendStrongBullish: 0.0,
		}
	}
	return aligned[trend]
}

// rsiPositionScore rewards entries with RSI headroom in the trade direction.
func rsiPositionScore(action Action, rsi float64) float64 {
	if action == ActionBuy {
		switch {
		case rsi < 35:
			return 1.0
		case rsi < 55:
			return 0.8
		case rsi < 70:
			return 0.5
		default:
			return 0.2
		}
	}
	switch {
	case rsi > 65:
		return 1.0
	case rsi > 45:
		return 0.8
	case rsi > 30:
		return 0.5
	default:
		return 0.2
	}
}

// volumeConfirmScore rewards current volume running above its average.
func volumeConfirmScore(snap market.Snapshot, ind market.IndicatorSet) float64 {
	if ind.AvgVolume <= 0 || snap.Volume <= 0 {
		return 0.5 // no flow information either way
	}
	ratio := snap.Volume / ind.AvgVolume
	switch {
	case ratio >= 1.5:
		return 1.0
	case ratio >= 1.0:
		return 0.75
	case ratio >= 0.6:
		return 0.5
	default:
		return 0.25
	}
}

// advisoryAgreementScore folds in the advisory opinion when present. An
// absent advisory opinion is neutral, never blocking.
func advisoryAgreementScore(action Action, results []signal.Result) float64 {
	for _, r := range results {
		if !r.HasSignal() {
			continue
		}
		// Advisory sources are the non-deterministic ones; they tag their
		// results with their own source id, and the coordinator passes the
		// full result set through so agreement can be measured here.
		if r.Advisory {
			if string(r.Signal.Action) == string(action) {
				return 0.5 + 0.5*r.Signal.Confidence
			}
			return 0.2
		}
	}
	return 0.5
}

// consensusStrength scales the factor score by how confident the agreeing
// producers are.
func consensusStrength(signals []signal.Signal, action Action) float64 {
	var sum float64
	var n int
	for _, s := range signals {
		if string(s.Action) == string(action) {
			sum += s.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	avg := sum / float64(n)
	return 0.6 + 0.6*avg // 0.6..1.2 band, rewards strong agreement
}

// pickLevels takes stop/target from the highest-confidence agreeing signal.
func pickLevels(signals []signal.Signal, action Action) (stop, target float64) {
	best := -1.0
	for _, s := range signals {
		if string(s.Action) != string(action) || s.Confidence <= best {
			continue
		}
		best = s.Confidence
		if s.StopLoss != nil {
			stop = *s.StopLoss
		}
		if s.TakeProfit != nil {
			target = *s.TakeProfit
		}
	}
	return stop, target
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
