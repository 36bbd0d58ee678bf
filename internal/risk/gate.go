package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/decision"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
)

// ErrRiskViolation marks a decision that exceeds configured limits.
var ErrRiskViolation = errors.New("decision exceeds risk limits")

// Recommendation is the gate's verdict when a decision is not passed
// through unchanged.
type Recommendation string

const (
	RecommendProceed     Recommendation = "PROCEED"
	RecommendReduceSize  Recommendation = "REDUCE_SIZE"
	RecommendClose       Recommendation = "CLOSE"
	RecommendStopTrading Recommendation = "STOP_TRADING"
)

// PositionRisk describes the risk contribution of a single position.
type PositionRisk struct {
	Symbol       string  `json:"symbol"`
	RiskFraction float64 `json:"riskFraction"` // of account equity
}

// Assessment is the gate's full risk evaluation of a candidate decision.
type Assessment struct {
	PortfolioRisk   float64        `json:"portfolioRisk"` // 0..1
	PositionRisks   []PositionRisk `json:"positionRisks"`
	CorrelationRisk float64        `json:"correlationRisk"`
	Alerts          []string       `json:"alerts"`
	Recommendation  Recommendation `json:"recommendation"`
}

// GateConfig holds risk gate configuration
type GateConfig struct {
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
	MaxPortfolioRisk       float64 `json:"max_portfolio_risk"` // fraction of equity
	MaxPositionRisk        float64 `json:"max_position_risk"`  // fraction of equity
	ATRStopMultiplier      float64 `json:"atr_stop_multiplier"`
	ATRTargetMultiplier    float64 `json:"atr_target_multiplier"`
	MaxSizeMultiplier      float64 `json:"max_size_multiplier"`
}

// DefaultGateConfig returns safe defaults
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		MaxConcurrentPositions: 5,
		MaxPortfolioRisk:       0.02,
		MaxPositionRisk:        0.01,
		ATRStopMultiplier:      1.5,
		ATRTargetMultiplier:    2.5,
		MaxSizeMultiplier:      1.2,
	}
}

// Gate validates candidate decisions against position and exposure limits,
// recomputes protective levels from ATR, and intersects the tuner's and
// governor's size multipliers. Failures fail safe: a gate that cannot
// assess risk recommends STOP_TRADING, never "proceed by default".
type Gate struct {
	config *GateConfig
	tuner  *LiveStrategyTuner
	logger zerolog.Logger

	mu            sync.RWMutex
	openPositions map[string]PositionRisk
}

// NewGate creates a risk gate around a strategy tuner.
func NewGate(config *GateConfig, tuner *LiveStrategyTuner, logger zerolog.Logger) *Gate {
	if config == nil {
		config = DefaultGateConfig()
	}
	return &Gate{
		config:        config,
		tuner:         tuner,
		logger:        logger.With().Str("component", "RiskGate").Logger(),
		openPositions: make(map[string]PositionRisk),
	}
}

// Tuner exposes the embedded strategy tuner.
func (g *Gate) Tuner() *LiveStrategyTuner { return g.tuner }

// Validate assesses a candidate decision. It returns the (possibly
// derated) decision together with the assessment; callers must not submit
// a decision unless the recommendation is PROCEED and the size multiplier
// is positive.
func (g *Gate) Validate(d decision.TradingDecision, snap market.Snapshot, ind market.IndicatorSet, governorDamper float64) (decision.TradingDecision, Assessment) {
	if !d.IsEntry() {
		return d, Assessment{Recommendation: RecommendProceed}
	}

	// Fail safe on inputs the gate cannot reason about.
	if invalidInput(snap.Price) || invalidInput(ind.ATR) || snap.Price <= 0 {
		g.logger.Error().
			Str("symbol", d.Symbol).
			Float64("price", snap.Price).
			Float64("atr", ind.ATR).
			Msg("risk assessment impossible, failing safe")
		return zeroed(d), Assessment{
			Alerts:         []string{"risk assessment failed: invalid market inputs"},
			Recommendation: RecommendStopTrading,
		}
	}

	// Producer-supplied levels are advisory; protective levels come from ATR.
	d.StopLoss, d.TakeProfit = g.protectiveLevels(d.Action, snap.Price, ind.ATR)

	assessment := Assessment{Recommendation: RecommendProceed}

	g.mu.RLock()
	openCount := len(g.openPositions)
	portfolioRisk := 0.0
	for _, p := range g.openPositions {
		portfolioRisk += p.RiskFraction
		assessment.PositionRisks = append(assessment.PositionRisks, p)
	}
	g.mu.RUnlock()

	positionRisk := math.Min(math.Abs(snap.Price-d.StopLoss)/snap.Price, g.config.MaxPositionRisk)
	assessment.PortfolioRisk = clampFraction((portfolioRisk + positionRisk) / g.config.MaxPortfolioRisk)

	if openCount >= g.config.MaxConcurrentPositions {
		assessment.Alerts = append(assessment.Alerts,
			fmt.Sprintf("max concurrent positions reached (%d/%d)", openCount, g.config.MaxConcurrentPositions))
		assessment.Recommendation = RecommendReduceSize
		return zeroed(d), assessment
	}

	if portfolioRisk+positionRisk > g.config.MaxPortfolioRisk {
		assessment.Alerts = append(assessment.Alerts,
			fmt.Sprintf("portfolio risk %.2f%% would exceed cap %.2f%%",
				(portfolioRisk+positionRisk)*100, g.config.MaxPortfolioRisk*100))
		assessment.Recommendation = RecommendReduceSize
		return zeroed(d), assessment
	}

	// Intersect the sizing inputs: engine multiplier, volatility/pause
	// multiplier, governor advisory.
	entryMult := g.tuner.EntryMultiplier()
	multiplier := d.SizeMultiplier * entryMult * governorDamper

	// Stops wider than the single-position risk budget scale the size down.
	rawRisk := math.Abs(snap.Price-d.StopLoss) / snap.Price
	if rawRisk > g.config.MaxPositionRisk {
		scale := g.config.MaxPositionRisk / rawRisk
		multiplier *= scale
		assessment.Alerts = append(assessment.Alerts,
			fmt.Sprintf("stop distance %.2f%% above single-position budget, size scaled by %.2f", rawRisk*100, scale))
	}

	if multiplier > g.config.MaxSizeMultiplier {
		multiplier = g.config.MaxSizeMultiplier
	}
	d.SizeMultiplier = multiplier

	if entryMult == 0 {
		assessment.Alerts = append(assessment.Alerts, "strategy tuner paused, new entries zeroed")
		assessment.Recommendation = RecommendReduceSize
		return d, assessment
	}
	if len(assessment.Alerts) > 0 && assessment.Recommendation == RecommendProceed {
		assessment.Recommendation = RecommendReduceSize
	}

	return d, assessment
}

// RegisterOpen records an opened position and its risk contribution.
func (g *Gate) RegisterOpen(symbol string, riskFraction float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openPositions[symbol] = PositionRisk{Symbol: symbol, RiskFraction: riskFraction}
}

// RegisterClose removes a closed position.
func (g *Gate) RegisterClose(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.openPositions, symbol)
}

// OpenPositionCount returns the number of tracked positions.
func (g *Gate) OpenPositionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.openPositions)
}

// protectiveLevels derives stop/target from ATR on either side of price.
func (g *Gate) protectiveLevels(action decision.Action, price, atr float64) (stop, target float64) {
	if atr <= 0 {
		atr = price * 0.005
	}
	if action == decision.ActionBuy {
		return price - atr*g.config.ATRStopMultiplier, price + atr*g.config.ATRTargetMultiplier
	}
	return price + atr*g.config.ATRStopMultiplier, price - atr*g.config.ATRTargetMultiplier
}

func invalidInput(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func zeroed(d decision.TradingDecision) decision.TradingDecision {
	d.SizeMultiplier = 0
	return d
}

func clampFraction(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
