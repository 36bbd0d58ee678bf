// Package governor owns the authoritative daily performance state and the
// daily circuit breakers. It is the sole writer of "trading halted" state;
// every mutation flows through ApplyFill, called by the coordinator in fill
// arrival order.
package governor

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the governor's position in its daily state machine.
type State string

const (
	StateNormal            State = "NORMAL"
	StateApproachingTarget State = "APPROACHING_TARGET"
	StateTargetReached     State = "TARGET_REACHED"
	StateLossLimitReached  State = "LOSS_LIMIT_REACHED"
	StateLowWinRateHalt    State = "LOW_WIN_RATE_HALT"
)

// Terminal reports whether the state halts trading for the rest of the day.
func (s State) Terminal() bool {
	switch s {
	case StateTargetReached, StateLossLimitReached, StateLowWinRateHalt:
		return true
	}
	return false
}

// PerformanceState is the day-scoped snapshot exposed to collaborators.
// Regime and PositionMultiplier are folded in by the coordinator from the
// live risk policy; the governor owns everything else.
type PerformanceState struct {
	DailyPnL           float64    `json:"dailyPnL"`
	Target             float64    `json:"target"`
	LossLimit          float64    `json:"lossLimit"`
	TotalTrades        int        `json:"totalTrades"`
	WinningTrades      int        `json:"winningTrades"`
	LosingTrades       int        `json:"losingTrades"`
	ConsecutiveLosses  int        `json:"consecutiveLosses"`
	Paused             bool       `json:"paused"`
	PausedUntil        *time.Time `json:"pausedUntil,omitempty"`
	WinRate            float64    `json:"winRate"`
	Regime             string     `json:"regime"`
	PositionMultiplier float64    `json:"positionMultiplier"`
	State              State      `json:"state"`
	TradingDay         string     `json:"tradingDay"` // YYYY-MM-DD
}

// Halt describes a daily circuit breaker trip. Emitted at most once per day.
type Halt struct {
	Reason string `json:"reason"`
	State  State  `json:"state"`
}

// Journal persists the day state so a restart mid-session does not re-arm a
// tripped breaker. Implementations must tolerate being nil-safe no-ops.
type Journal interface {
	Save(state PerformanceState) error
	Load(day string) (*PerformanceState, error)
}

// Config holds governor configuration
type Config struct {
	DailyTarget         float64 `json:"daily_target"`
	DailyLossLimit      float64 `json:"daily_loss_limit"` // positive number, breach at -limit
	ApproachFraction    float64 `json:"approach_fraction"`
	MinTradesForWinRate int     `json:"min_trades_for_win_rate"`
	WinRateFloor        float64 `json:"win_rate_floor"`
}

// DefaultConfig returns safe defaults. The loss limit is a single
// authoritative value; nothing else in the system carries its own copy.
func DefaultConfig() *Config {
	return &Config{
		DailyTarget:         300.0,
		DailyLossLimit:      300.0,
		ApproachFraction:    0.80,
		MinTradesForWinRate: 10,
		WinRateFloor:        0.40,
	}
}

// Governor enforces the daily circuit breakers.
type Governor struct {
	config *Config
	logger zerolog.Logger

	mu                sync.RWMutex
	state             State
	dailyPnL          float64
	totalTrades       int
	winningTrades     int
	losingTrades      int
	consecutiveLosses int
	tradingDay        string
	haltEmitted       bool

	journal Journal
	nowFn   func() time.Time
}

// New creates a governor for the current trading day, restoring any
// journaled state for that day.
func New(config *Config, journal Journal, logger zerolog.Logger) *Governor {
	if config == nil {
		config = DefaultConfig()
	}
	g := &Governor{
		config:  config,
		journal: journal,
		logger:  logger.With().Str("component", "PerformanceGovernor").Logger(),
		state:   StateNormal,
		nowFn:   time.Now,
	}
	g.tradingDay = g.nowFn().Format("2006-01-02")
	g.restore()
	return g
}

// restore reloads journaled state for the current day, if any.
func (g *Governor) restore() {
	if g.journal == nil {
		return
	}
	saved, err := g.journal.Load(g.tradingDay)
	if err != nil {
		g.logger.Warn().Err(err).Msg("day journal load failed, starting fresh")
		return
	}
	if saved == nil {
		return
	}
	g.dailyPnL = saved.DailyPnL
	g.totalTrades = saved.TotalTrades
	g.winningTrades = saved.WinningTrades
	g.losingTrades = saved.LosingTrades
	g.consecutiveLosses = saved.ConsecutiveLosses
	g.state = saved.State
	g.haltEmitted = saved.State.Terminal()
	g.logger.Info().
		Str("state", string(saved.State)).
		Float64("daily_pnl", saved.DailyPnL).
		Int("trades", saved.TotalTrades).
		Msg("restored day state from journal")
}

// ApplyFill records a confirmed fill's realized P&L and evaluates the
// circuit breakers. It returns a Halt exactly once, on the transition into
// a terminal state; afterwards the state stays terminal until day rollover.
func (g *Governor) ApplyFill(pnl float64) *Halt {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked()

	g.dailyPnL += pnl
	g.totalTrades++
	if pnl >= 0 {
		g.winningTrades++
		g.consecutiveLosses = 0
	} else {
		g.losingTrades++
		g.consecutiveLosses++
	}

	halt := g.evaluateLocked()
	g.persistLocked()
	return halt
}

// evaluateLocked runs the state machine. Terminal states are monotonic for
// the trading day.
func (g *Governor) evaluateLocked() *Halt {
	if g.state.Terminal() {
		return nil
	}

	switch {
	case g.dailyPnL >= g.config.DailyTarget:
		g.state = StateTargetReached
		return g.emitLocked(fmt.Sprintf("Daily profit target reached: $%.2f", g.dailyPnL))

	case g.dailyPnL <= -g.config.DailyLossLimit:
		g.state = StateLossLimitReached
		return g.emitLocked(fmt.Sprintf("Daily loss limit reached: $%.2f", g.dailyPnL))

	case g.totalTrades >= g.config.MinTradesForWinRate && g.winRateLocked() < g.config.WinRateFloor:
		g.state = StateLowWinRateHalt
		return g.emitLocked(fmt.Sprintf("Win rate %.1f%% below %.1f%% floor after %d trades",
			g.winRateLocked()*100, g.config.WinRateFloor*100, g.totalTrades))

	case g.dailyPnL >= g.config.ApproachFraction*g.config.DailyTarget:
		g.state = StateApproachingTarget
		return nil

	default:
		g.state = StateNormal
		return nil
	}
}

// emitLocked returns the halt event, guaranteed at most once per day.
func (g *Governor) emitLocked(reason string) *Halt {
	if g.haltEmitted {
		return nil
	}
	g.haltEmitted = true
	g.logger.Warn().Str("state", string(g.state)).Str("reason", reason).Msg("daily circuit breaker tripped")
	return &Halt{Reason: reason, State: g.state}
}

// AllowEntry reports whether new entries are currently permitted. Closing
// existing positions is always allowed; this gate covers entries only.
func (g *Governor) AllowEntry() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked()
	if g.state.Terminal() {
		return false, fmt.Sprintf("trading halted: %s", g.state)
	}
	return true, ""
}

// SizeDamper returns the advisory size multiplier. Approaching the daily
// target derates new entries; otherwise neutral.
func (g *Governor) SizeDamper() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state == StateApproachingTarget {
		return 0.5
	}
	return 1.0
}

// Snapshot returns a read-only copy of the day state.
func (g *Governor) Snapshot() PerformanceState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return PerformanceState{
		DailyPnL:          g.dailyPnL,
		Target:            g.config.DailyTarget,
		LossLimit:         g.config.DailyLossLimit,
		TotalTrades:       g.totalTrades,
		WinningTrades:     g.winningTrades,
		LosingTrades:      g.losingTrades,
		ConsecutiveLosses: g.consecutiveLosses,
		WinRate:           g.winRateLocked(),
		State:             g.state,
		TradingDay:        g.tradingDay,
	}
}

// State returns the current governor state.
func (g *Governor) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// ResetDay explicitly resets the governor for a new trading day.
func (g *Governor) ResetDay() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked(g.nowFn().Format("2006-01-02"))
}

// rolloverLocked resets automatically when the calendar day changes.
func (g *Governor) rolloverLocked() {
	today := g.nowFn().Format("2006-01-02")
	if today != g.tradingDay {
		g.logger.Info().Str("from", g.tradingDay).Str("to", today).Msg("day rollover, resetting governor")
		g.resetLocked(today)
	}
}

func (g *Governor) resetLocked(day string) {
	g.state = StateNormal
	g.dailyPnL = 0
	g.totalTrades = 0
	g.winningTrades = 0
	g.losingTrades = 0
	g.consecutiveLosses = 0
	g.haltEmitted = false
	g.tradingDay = day
	g.persistLocked()
}

func (g *Governor) winRateLocked() float64 {
	if g.totalTrades == 0 {
		return 0
	}
	return float64(g.winningTrades) / float64(g.totalTrades)
}

func (g *Governor) persistLocked() {
	if g.journal == nil {
		return
	}
	state := PerformanceState{
		DailyPnL:          g.dailyPnL,
		Target:            g.config.DailyTarget,
		LossLimit:         g.config.DailyLossLimit,
		TotalTrades:       g.totalTrades,
		WinningTrades:     g.winningTrades,
		LosingTrades:      g.losingTrades,
		ConsecutiveLosses: g.consecutiveLosses,
		WinRate:           g.winRateLocked(),
		State:             g.state,
		TradingDay:        g.tradingDay,
	}
	if err := g.journal.Save(state); err != nil {
		g.logger.Warn().Err(err).Msg("day journal save failed")
	}
}
