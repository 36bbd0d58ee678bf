package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/bus"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/decision"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/execution"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/governor"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/risk"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/signal"
)

type stubFeed struct{}

func (stubFeed) GetSnapshot(symbol string) (market.Snapshot, error) {
	return market.Snapshot{
		Symbol:    symbol,
		Price:     450.0,
		Bid:       449.9,
		Ask:       450.1,
		Volume:    1000,
		High:      452,
		Low:       448,
		Timestamp: time.Now(),
	}, nil
}

func (stubFeed) GetIndicators(symbol string, window int) (market.IndicatorSet, error) {
	return market.IndicatorSet{
		RSI:           55,
		ATR:           2.0,
		ShortMomentum: 0.2,
		LongMomentum:  0.1,
		AvgVolume:     900,
		SpreadPercent: 0.0005,
	}, nil
}

type stubProducer struct {
	id            string
	deterministic bool
	delay         time.Duration
	result        signal.Result
}

func (p *stubProducer) ID() string          { return p.id }
func (p *stubProducer) Deterministic() bool { return p.deterministic }

func (p *stubProducer) Propose(ctx context.Context, _ market.Context, _ market.Snapshot, _ market.IndicatorSet) signal.Result {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return signal.TimedOut(p.id, ctx.Err())
		}
	}
	return p.result
}

type mockExecutor struct {
	mu        sync.Mutex
	submitted []decision.TradingDecision
	fills     chan execution.Fill
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{fills: make(chan execution.Fill, 16)}
}

func (m *mockExecutor) Submit(_ context.Context, d decision.TradingDecision) (execution.Result, error) {
	m.mu.Lock()
	m.submitted = append(m.submitted, d)
	m.mu.Unlock()
	return execution.Result{
		OrderID:   "order-1",
		CycleID:   d.CycleID,
		FilledQty: 100,
		AvgPrice:  d.Price,
		Status:    execution.StatusFilled,
	}, nil
}

func (m *mockExecutor) Fills() <-chan execution.Fill { return m.fills }
func (m *mockExecutor) Shutdown()                    { close(m.fills) }

func newTestCoordinator(t *testing.T, config *Config, producers ...signal.Producer) (*Coordinator, *bus.Bus, <-chan bus.AgentMessage) {
	t.Helper()
	logger := zerolog.Nop()
	b := bus.NewBus(logger)
	observer, err := b.Register("observer", 32)
	if err != nil {
		t.Fatalf("observer registration failed: %v", err)
	}

	tuner := risk.NewLiveStrategyTuner(nil, logger)
	c := New(config, Deps{
		Bus:       b,
		Feed:      stubFeed{},
		Analyzer:  market.NewContextAnalyzer(),
		Producers: producers,
		Engine:    decision.NewEngine(nil, logger),
		Tuner:     tuner,
		Gate:      risk.NewGate(nil, tuner, logger),
		Governor:  governor.New(nil, nil, logger),
		Executor:  newMockExecutor(),
	}, logger)
	return c, b, observer
}

func buySignal(source string) signal.Result {
	return signal.OK(signal.Signal{
		Symbol:     "AAPL",
		Action:     signal.ActionBuy,
		Confidence: 0.8,
		Reasoning:  "trend continuation",
		Source:     source,
	})
}

func TestRunCycleSerializationPerSymbol(t *testing.T) {
	slow := &stubProducer{id: "slow", deterministic: true, delay: 80 * time.Millisecond, result: buySignal("slow")}
	c, _, _ := newTestCoordinator(t, &Config{CycleBudget: 300 * time.Millisecond, IndicatorWindow: 50}, slow)

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.RunCycle(context.Background(), "AAPL")
		firstDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if _, err := c.RunCycle(context.Background(), "AAPL"); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("expected ErrCycleInFlight for concurrent same-symbol cycle, got %v", err)
	}

	// A different symbol is independent and runs while AAPL is in flight.
	if _, err := c.RunCycle(context.Background(), "MSFT"); err != nil {
		t.Errorf("cycle for a different symbol should run concurrently: %v", err)
	}

	if err := <-firstDone; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	// The symbol is free again once its cycle completes.
	if _, err := c.RunCycle(context.Background(), "AAPL"); err != nil {
		t.Errorf("cycle after completion should be accepted: %v", err)
	}
}

func TestNeverRespondingAdvisoryBoundedByBudget(t *testing.T) {
	stuck := &stubProducer{id: "advisory", deterministic: false, delay: 10 * time.Second}
	c, _, _ := newTestCoordinator(t, &Config{CycleBudget: 60 * time.Millisecond, IndicatorWindow: 50}, stuck)

	start := time.Now()
	d, err := c.RunCycle(context.Background(), "AAPL")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if elapsed > 250*time.Millisecond {
		t.Errorf("cycle took %v, should be bounded by the budget", elapsed)
	}
	if d.Action != decision.ActionWait {
		t.Errorf("expected WAIT, got %s", d.Action)
	}
	if d.Confidence != 0 {
		t.Errorf("expected confidence 0, got %f", d.Confidence)
	}
	if d.Reasoning != "budget_exceeded" {
		t.Errorf("expected reasoning budget_exceeded, got %q", d.Reasoning)
	}
}

func TestHaltRejectsNewCyclesAndBroadcasts(t *testing.T) {
	fast := &stubProducer{id: "momentum", deterministic: true, result: buySignal("momentum")}
	c, _, observer := newTestCoordinator(t, nil, fast)

	c.applyFill(execution.Fill{Symbol: "AAPL", CycleID: "c1", RealizedPnL: -301, Final: true})

	if !c.Halted() {
		t.Fatal("coordinator should be halted after loss limit breach")
	}

	if _, err := c.RunCycle(context.Background(), "AAPL"); !errors.Is(err, ErrTradingHalted) {
		t.Errorf("expected ErrTradingHalted, got %v", err)
	}

	var stop *bus.StopTrading
	for len(observer) > 0 {
		msg := <-observer
		if msg.Type == bus.MsgStopTrading {
			payload := msg.Payload.(bus.StopTrading)
			stop = &payload
		}
	}
	if stop == nil {
		t.Fatal("expected STOP_TRADING broadcast")
	}
	if stop.Reason != "Daily loss limit reached: $-301.00" {
		t.Errorf("unexpected halt reason %q", stop.Reason)
	}
	if stop.State.State != governor.StateLossLimitReached {
		t.Errorf("broadcast state should be LOSS_LIMIT_REACHED, got %s", stop.State.State)
	}

	// A second breaching fill must not emit another broadcast.
	c.applyFill(execution.Fill{Symbol: "AAPL", CycleID: "c2", RealizedPnL: -50, Final: true})
	for len(observer) > 0 {
		msg := <-observer
		if msg.Type == bus.MsgStopTrading {
			t.Error("STOP_TRADING must be broadcast at most once per day")
		}
	}

	c.Reset()
	if c.Halted() {
		t.Error("Reset should clear the halt")
	}
	if _, err := c.RunCycle(context.Background(), "AAPL"); err != nil {
		t.Errorf("cycle after reset should be accepted: %v", err)
	}
}

func TestEntryFillsRegisterAndCloseUpdatesState(t *testing.T) {
	fast := &stubProducer{id: "momentum", deterministic: true, result: buySignal("momentum")}
	c, _, _ := newTestCoordinator(t, nil, fast)

	c.applyFill(execution.Fill{Symbol: "AAPL", CycleID: "c1", RealizedPnL: 40, Final: true})
	c.applyFill(execution.Fill{Symbol: "AAPL", CycleID: "c2", RealizedPnL: -15, Final: true})

	state := c.GetPerformanceState()
	if state.DailyPnL != 25 {
		t.Errorf("expected daily P&L 25, got %f", state.DailyPnL)
	}
	if state.TotalTrades != 2 || state.WinningTrades != 1 || state.LosingTrades != 1 {
		t.Errorf("trade counters wrong: %+v", state)
	}
	if state.ConsecutiveLosses != 1 {
		t.Errorf("expected 1 consecutive loss, got %d", state.ConsecutiveLosses)
	}
}

func TestGetPerformanceStateFoldsRiskPolicy(t *testing.T) {
	fast := &stubProducer{id: "momentum", deterministic: true, result: buySignal("momentum")}
	c, _, _ := newTestCoordinator(t, nil, fast)

	// Three consecutive losing fills pause the tuner.
	for i := 0; i < 3; i++ {
		c.applyFill(execution.Fill{Symbol: "AAPL", RealizedPnL: -10, Final: true})
	}

	state := c.GetPerformanceState()
	if !state.Paused {
		t.Error("state should report the tuner pause")
	}
	if state.PausedUntil == nil {
		t.Error("paused state should carry a resume time")
	}
	if state.Regime == "" {
		t.Error("state should carry the active regime")
	}
	if state.PositionMultiplier != 0 {
		t.Errorf("paused policy should report multiplier 0, got %f", state.PositionMultiplier)
	}
}

func TestNonFinalFillsDoNotMutateState(t *testing.T) {
	fast := &stubProducer{id: "momentum", deterministic: true, result: buySignal("momentum")}
	c, _, _ := newTestCoordinator(t, nil, fast)

	c.applyFill(execution.Fill{Symbol: "AAPL", CycleID: "c1", Final: false})

	state := c.GetPerformanceState()
	if state.TotalTrades != 0 || state.DailyPnL != 0 {
		t.Errorf("entry fill must not mutate day state: %+v", state)
	}
}
