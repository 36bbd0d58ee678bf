// Package coordinator owns the decision cycle. It serializes cycles per
// symbol, collects producer signals with a bounded wait, runs the decision
// engine and risk gate, and is the single writer of daily performance state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/bus"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/decision"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/execution"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/governor"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/risk"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/signal"
)

// AgentID is the coordinator's address on the message bus.
const AgentID = "coordinator"

var (
	// ErrCycleInFlight is returned when a cycle is requested for a symbol
	// that already has one running.
	ErrCycleInFlight = errors.New("decision cycle already in flight for symbol")

	// ErrTradingHalted is returned after a daily circuit breaker has tripped.
	ErrTradingHalted = errors.New("trading halted for the day")
)

// Config holds coordinator configuration
type Config struct {
	CycleBudget     time.Duration `json:"cycle_budget"`
	IndicatorWindow int           `json:"indicator_window"`
	MailboxSize     int           `json:"mailbox_size"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		CycleBudget:     100 * time.Millisecond,
		IndicatorWindow: 50,
		MailboxSize:     64,
	}
}

// Coordinator routes agent messages and runs decision cycles. Per-symbol
// serialization, the halted flag, and daily performance state are all owned
// here; producers never mutate shared state.
type Coordinator struct {
	config    *Config
	logger    zerolog.Logger
	bus       *bus.Bus
	feed      market.DataFeed
	analyzer  *market.ContextAnalyzer
	producers []signal.Producer
	engine    *decision.Engine
	tuner     *risk.LiveStrategyTuner
	gate      *risk.Gate
	governor  *governor.Governor
	executor  execution.Executor

	mu         sync.Mutex
	inFlight   map[string]struct{}
	halted     bool
	haltReason string

	stopCh chan struct{}
	doneCh chan struct{}
}

// Deps bundles the coordinator's collaborators.
type Deps struct {
	Bus       *bus.Bus
	Feed      market.DataFeed
	Analyzer  *market.ContextAnalyzer
	Producers []signal.Producer
	Engine    *decision.Engine
	Tuner     *risk.LiveStrategyTuner
	Gate      *risk.Gate
	Governor  *governor.Governor
	Executor  execution.Executor
}

// New creates a coordinator.
func New(config *Config, deps Deps, logger zerolog.Logger) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Coordinator{
		config:    config,
		logger:    logger.With().Str("component", "Coordinator").Logger(),
		bus:       deps.Bus,
		feed:      deps.Feed,
		analyzer:  deps.Analyzer,
		producers: deps.Producers,
		engine:    deps.Engine,
		tuner:     deps.Tuner,
		gate:      deps.Gate,
		governor:  deps.Governor,
		executor:  deps.Executor,
		inFlight:  make(map[string]struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the fill-event loop. It must be called once before cycles run.
func (c *Coordinator) Start() {
	go c.fillLoop()
}

// Stop shuts the fill loop down and waits for it to exit.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// producerResult pairs a producer's result with whether it was deterministic.
type producerResult struct {
	result        signal.Result
	deterministic bool
}

// RunCycle executes one decision cycle for a symbol. A second request for
// the same symbol while one is in flight is rejected with ErrCycleInFlight;
// cycles for different symbols run independently.
func (c *Coordinator) RunCycle(ctx context.Context, symbol string) (decision.TradingDecision, error) {
	c.mu.Lock()
	if c.halted {
		reason := c.haltReason
		c.mu.Unlock()
		return decision.TradingDecision{}, fmt.Errorf("%w: %s", ErrTradingHalted, reason)
	}
	if _, busy := c.inFlight[symbol]; busy {
		c.mu.Unlock()
		return decision.TradingDecision{}, fmt.Errorf("%w: %s", ErrCycleInFlight, symbol)
	}
	c.inFlight[symbol] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, symbol)
		c.mu.Unlock()
	}()

	cycleID := uuid.New().String()
	deadline := time.Now().Add(c.config.CycleBudget)
	cycleCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	snap, err := c.feed.GetSnapshot(symbol)
	if err != nil {
		return decision.TradingDecision{}, fmt.Errorf("snapshot for %s: %w", symbol, err)
	}
	ind, err := c.feed.GetIndicators(symbol, c.config.IndicatorWindow)
	if err != nil {
		return decision.TradingDecision{}, fmt.Errorf("indicators for %s: %w", symbol, err)
	}

	mctx := c.analyzer.Analyze(snap, ind)
	c.tuner.ObserveMarket(mctx, snap, ind)

	c.publish(bus.NewMessage(AgentID, bus.Broadcast, bus.PriorityNormal, bus.SignalRequest{
		CycleID:    cycleID,
		Symbol:     symbol,
		Context:    mctx,
		Snapshot:   snap,
		Indicators: ind,
		Deadline:   deadline,
	}))

	results := c.collectSignals(cycleCtx, cycleID, mctx, snap, ind, deadline)

	d := c.engine.Evaluate(cycleID, mctx, snap, ind, results, c.tuner.Regime(), deadline)

	if d.IsEntry() {
		if allowed, reason := c.governor.AllowEntry(); !allowed {
			d = c.rejectEntry(d, reason)
		} else {
			validated, assessment := c.gate.Validate(d, snap, ind, c.governor.SizeDamper())
			d = validated
			if assessment.Recommendation == risk.RecommendStopTrading {
				c.logger.Error().
					Str("symbol", symbol).
					Strs("alerts", assessment.Alerts).
					Msg("risk assessment failed closed")
			}
		}
	}

	c.publish(bus.NewMessage(AgentID, bus.Broadcast, bus.PriorityHigh, bus.Decision{Decision: d}))

	if d.IsEntry() && d.SizeMultiplier > 0 {
		c.mu.Lock()
		halted := c.halted
		c.mu.Unlock()
		if halted {
			return c.rejectEntry(d, "halted during cycle"), nil
		}
		c.submit(ctx, d)
	}

	return d, nil
}

// collectSignals fans the request out to all producers and waits until every
// deterministic producer has answered or the deadline passes, whichever is
// first. Late advisory results are discarded.
func (c *Coordinator) collectSignals(ctx context.Context, cycleID string, mctx market.Context, snap market.Snapshot, ind market.IndicatorSet, deadline time.Time) []signal.Result {
	resultCh := make(chan producerResult, len(c.producers))
	deterministic := 0
	for _, p := range c.producers {
		if p.Deterministic() {
			deterministic++
		}
		go func(p signal.Producer) {
			resultCh <- producerResult{result: p.Propose(ctx, mctx, snap, ind), deterministic: p.Deterministic()}
		}(p)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var results []signal.Result
	received := 0
	deterministicDone := 0
	for received < len(c.producers) {
		select {
		case pr := <-resultCh:
			received++
			results = append(results, pr.result)
			c.publish(bus.NewMessage(pr.result.Source, AgentID, bus.PriorityNormal, bus.SignalResponse{CycleID: cycleID, Result: pr.result}))
			if pr.deterministic {
				deterministicDone++
			}
			if deterministicDone == deterministic {
				return results
			}
		case <-timer.C:
			c.logger.Warn().
				Str("cycle_id", cycleID).
				Int("received", received).
				Int("expected", len(c.producers)).
				Msg("signal collection hit cycle deadline")
			return results
		}
	}
	return results
}

// rejectEntry downgrades an entry decision to WAIT.
func (c *Coordinator) rejectEntry(d decision.TradingDecision, reason string) decision.TradingDecision {
	d.Action = decision.ActionWait
	d.Confidence = 0
	d.SizeMultiplier = 0
	d.Reasoning = reason
	return d
}

// submit hands the decision to the execution collaborator. A rejected or
// failed order mutates nothing; state changes only on confirmed fills.
func (c *Coordinator) submit(ctx context.Context, d decision.TradingDecision) {
	res, err := c.executor.Submit(ctx, d)
	if err != nil {
		c.logger.Error().Err(err).Str("cycle_id", d.CycleID).Msg("order submission failed")
		return
	}
	c.publish(bus.NewMessage(AgentID, bus.Broadcast, bus.PriorityHigh, bus.ExecutionResult{Result: res}))

	if res.Status != execution.StatusFilled {
		c.logger.Warn().
			Str("cycle_id", d.CycleID).
			Str("status", string(res.Status)).
			Str("reason", res.Reason).
			Msg("order not filled")
		return
	}

	riskFraction := 0.0
	if d.Price > 0 {
		riskFraction = math.Abs(d.Price-d.StopLoss) / d.Price * d.SizeMultiplier
	}
	c.gate.RegisterOpen(d.Symbol, riskFraction)
}

// fillLoop is the single writer of performance state. Fills are applied in
// arrival order; a governor halt is broadcast exactly once.
func (c *Coordinator) fillLoop() {
	defer close(c.doneCh)
	fills := c.executor.Fills()
	for {
		select {
		case f, ok := <-fills:
			if !ok {
				return
			}
			c.applyFill(f)
		case <-c.stopCh:
			return
		}
	}
}

// applyFill updates governor, tuner, and gate for one confirmed fill. Only
// final closing fills carry realized P&L and mutate daily state.
func (c *Coordinator) applyFill(f execution.Fill) {
	if !f.Final {
		return
	}

	c.gate.RegisterClose(f.Symbol)
	c.tuner.RecordTradeResult(f.RealizedPnL)

	halt := c.governor.ApplyFill(f.RealizedPnL)
	c.logger.Info().
		Str("symbol", f.Symbol).
		Str("cycle_id", f.CycleID).
		Float64("pnl", f.RealizedPnL).
		Msg("fill applied")

	if halt != nil {
		c.handleHalt(halt.Reason)
	}
}

// handleHalt sets the halted flag and broadcasts STOP_TRADING. In-flight
// cycles observe the flag before submitting; new cycles are rejected until
// Reset.
func (c *Coordinator) handleHalt(reason string) {
	c.mu.Lock()
	if c.halted {
		c.mu.Unlock()
		return
	}
	c.halted = true
	c.haltReason = reason
	c.mu.Unlock()

	c.logger.Error().Str("reason", reason).Msg("trading halted")
	c.publish(bus.NewMessage(AgentID, bus.Broadcast, bus.PriorityCritical, bus.StopTrading{
		Reason: reason,
		State:  c.GetPerformanceState(),
	}))
}

// HaltManually trips the circuit breaker from an operator action. It shares
// the at-most-once broadcast with governor-driven halts.
func (c *Coordinator) HaltManually(reason string) {
	c.handleHalt(reason)
}

// Halted reports whether the daily circuit breaker has tripped.
func (c *Coordinator) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

// Reset clears the halt and starts a fresh trading day.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.halted = false
	c.haltReason = ""
	c.mu.Unlock()
	c.governor.ResetDay()
	c.logger.Info().Msg("day state reset")
}

// GetPerformanceState returns the authoritative day state with the live risk
// policy folded in.
func (c *Coordinator) GetPerformanceState() governor.PerformanceState {
	state := c.governor.Snapshot()
	policy := c.tuner.Snapshot()
	state.Regime = string(policy.Regime)
	state.PositionMultiplier = policy.PositionMultiplier
	state.Paused = policy.State == risk.TunerPaused
	state.PausedUntil = policy.PausedUntil
	return state
}

// InFlight returns the symbols with a cycle currently running.
func (c *Coordinator) InFlight() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	symbols := make([]string, 0, len(c.inFlight))
	for s := range c.inFlight {
		symbols = append(symbols, s)
	}
	return symbols
}

// publish sends a bus message, logging rather than failing the cycle when
// routing fails.
func (c *Coordinator) publish(msg bus.AgentMessage) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(msg); err != nil {
		c.logger.Debug().Err(err).Str("type", string(msg.Type)).Msg("bus publish failed")
	}
}
