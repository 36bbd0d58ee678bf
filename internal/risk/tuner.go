// Package risk validates candidate decisions against position and exposure
// limits, and owns the live-tunable strategy policy (pause-on-losses,
// volatility sizing, regime selection).
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/decision"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
)

// TunerState is the pause state machine position.
type TunerState string

const (
	TunerActive TunerState = "ACTIVE"
	TunerPaused TunerState = "PAUSED"
)

// Volatility multiplier bands.
const (
	highVolCutoff = 0.02 // above: half size
	lowVolCutoff  = 0.01 // below: size up
)

// TunerConfig holds strategy tuner configuration
type TunerConfig struct {
	PauseAfterLosses int           `json:"pause_after_losses"`
	PauseDuration    time.Duration `json:"pause_duration"`
}

// DefaultTunerConfig returns default configuration
func DefaultTunerConfig() *TunerConfig {
	return &TunerConfig{
		PauseAfterLosses: 3,
		PauseDuration:    30 * time.Minute,
	}
}

// PolicySnapshot is the read-only view of the live policy.
type PolicySnapshot struct {
	State              TunerState      `json:"state"`
	Regime             decision.Regime `json:"regime"`
	PositionMultiplier float64         `json:"positionMultiplier"`
	ConsecutiveLosses  int             `json:"consecutiveLosses"`
	PausedUntil        *time.Time      `json:"pausedUntil,omitempty"`
}

// LiveStrategyTuner adapts the trading policy to realized results and
// market conditions. Pause state and regime are independent: the regime
// picks the decision engine's weighting profile, the pause state zeroes
// sizing for new entries.
type LiveStrategyTuner struct {
	config *TunerConfig
	logger zerolog.Logger

	mu                sync.RWMutex
	state             TunerState
	pausedUntil       time.Time
	consecutiveLosses int
	regime            decision.Regime
	volMultiplier     float64

	nowFn func() time.Time
}

// NewLiveStrategyTuner creates a tuner in the ACTIVE/MOMENTUM state.
func NewLiveStrategyTuner(config *TunerConfig, logger zerolog.Logger) *LiveStrategyTuner {
	if config == nil {
		config = DefaultTunerConfig()
	}
	return &LiveStrategyTuner{
		config:        config,
		logger:        logger.With().Str("component", "LiveStrategyTuner").Logger(),
		state:         TunerActive,
		regime:        decision.RegimeMomentum,
		volMultiplier: 1.0,
		nowFn:         time.Now,
	}
}

// RecordTradeResult feeds a realized trade outcome into the pause machine.
// Three consecutive losses pause new entries for the configured duration.
func (t *LiveStrategyTuner) RecordTradeResult(pnl float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resumeIfDueLocked()

	if pnl < 0 {
		t.consecutiveLosses++
	} else {
		t.consecutiveLosses = 0
	}

	if t.state == TunerActive && t.consecutiveLosses >= t.config.PauseAfterLosses {
		t.state = TunerPaused
		t.pausedUntil = t.nowFn().Add(t.config.PauseDuration)
		t.logger.Warn().
			Int("consecutive_losses", t.consecutiveLosses).
			Time("paused_until", t.pausedUntil).
			Msg("loss streak pause engaged")
	}
}

// ObserveMarket recomputes the volatility multiplier and the regime flag
// from current conditions. Called once per decision cycle.
func (t *LiveStrategyTuner) ObserveMarket(mctx market.Context, snap market.Snapshot, ind market.IndicatorSet) {
	t.mu.Lock()
	defer t.mu.Unlock()

	vol := ind.ATRPercent(snap.Price)
	switch {
	case vol > highVolCutoff:
		t.volMultiplier = 0.5
	case vol < lowVolCutoff:
		t.volMultiplier = 1.2
	default:
		t.volMultiplier = 1.0
	}

	// Strong directional trends favor momentum weighting; everything else
	// trades mean reversion.
	prev := t.regime
	switch mctx.Trend {
	case market.TrendStrongBullish, market.TrendStrongBearish:
		t.regime = decision.RegimeMomentum
	case market.TrendNeutral:
		t.regime = decision.RegimeMeanReversion
	default:
		if mctx.Volatility == market.VolatilityVeryLow || mctx.Volatility == market.VolatilityLow {
			t.regime = decision.RegimeMeanReversion
		} else {
			t.regime = decision.RegimeMomentum
		}
	}
	if prev != t.regime {
		t.logger.Info().Str("from", string(prev)).Str("to", string(t.regime)).Msg("regime switch")
	}
}

// EntryMultiplier returns the effective size multiplier for NEW entries:
// zero while paused, the volatility-derived value otherwise. Managing or
// closing existing positions is not constrained by this value.
func (t *LiveStrategyTuner) EntryMultiplier() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resumeIfDueLocked()
	if t.state == TunerPaused {
		return 0
	}
	return t.volMultiplier
}

// Regime returns the active weighting regime.
func (t *LiveStrategyTuner) Regime() decision.Regime {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.regime
}

// Snapshot returns the current policy state.
func (t *LiveStrategyTuner) Snapshot() PolicySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resumeIfDueLocked()
	snap := PolicySnapshot{
		State:              t.state,
		Regime:             t.regime,
		PositionMultiplier: t.volMultiplier,
		ConsecutiveLosses:  t.consecutiveLosses,
	}
	if t.state == TunerPaused {
		until := t.pausedUntil
		snap.PausedUntil = &until
		snap.PositionMultiplier = 0
	}
	return snap
}

// resumeIfDueLocked transitions PAUSED back to ACTIVE once the pause
// expires, resetting the loss streak.
func (t *LiveStrategyTuner) resumeIfDueLocked() {
	if t.state == TunerPaused && !t.nowFn().Before(t.pausedUntil) {
		t.state = TunerActive
		t.consecutiveLosses = 0
		t.logger.Info().Msg("loss streak pause expired, resuming")
	}
}
