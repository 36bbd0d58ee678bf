package execution

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/decision"
)

// PaperConfig holds paper executor configuration
type PaperConfig struct {
	BaseQuantity float64       `json:"base_quantity"` // shares at multiplier 1.0
	HoldDuration time.Duration `json:"hold_duration"` // simulated time in position
	WinRate      float64       `json:"win_rate"`      // probability the target is hit before the stop
	Seed         int64         `json:"seed"`          // 0 means time-seeded
}

// DefaultPaperConfig returns default configuration
func DefaultPaperConfig() *PaperConfig {
	return &PaperConfig{
		BaseQuantity: 100,
		HoldDuration: 2 * time.Second,
		WinRate:      0.55,
	}
}

// PaperExecutor simulates order execution: entries fill immediately at the
// decision's reference price and each position later closes at either the
// stop or the target, emitting a final fill with realized P&L.
type PaperExecutor struct {
	config *PaperConfig
	logger zerolog.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	fills  chan Fill
	wg     sync.WaitGroup
	closed bool
}

// NewPaperExecutor creates a paper executor.
func NewPaperExecutor(config *PaperConfig, logger zerolog.Logger) *PaperExecutor {
	if config == nil {
		config = DefaultPaperConfig()
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperExecutor{
		config: config,
		logger: logger.With().Str("component", "PaperExecutor").Logger(),
		rng:    rand.New(rand.NewSource(seed)),
		fills:  make(chan Fill, 256),
	}
}

// Submit fills the entry immediately and schedules the closing fill.
func (e *PaperExecutor) Submit(ctx context.Context, d decision.TradingDecision) (Result, error) {
	if !d.IsEntry() {
		return Result{CycleID: d.CycleID, Status: StatusRejected, Reason: "not an entry decision"}, nil
	}
	if d.SizeMultiplier <= 0 {
		return Result{CycleID: d.CycleID, Status: StatusRejected, Reason: "zero size"}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{CycleID: d.CycleID, Status: StatusFailed, Reason: "cycle cancelled"}, err
	}

	orderID := uuid.New().String()
	qty := e.config.BaseQuantity * d.SizeMultiplier

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Result{CycleID: d.CycleID, Status: StatusFailed, Reason: "executor shut down"}, fmt.Errorf("executor shut down")
	}
	win := e.rng.Float64() < e.config.WinRate
	e.emitLocked(Fill{
		OrderID:   orderID,
		CycleID:   d.CycleID,
		Symbol:    d.Symbol,
		Side:      string(d.Action),
		Qty:       qty,
		AvgPrice:  d.Price,
		Timestamp: time.Now(),
	})
	e.mu.Unlock()

	e.wg.Add(1)
	go e.closePosition(orderID, d, qty, win)

	e.logger.Debug().
		Str("order_id", orderID).
		Str("symbol", d.Symbol).
		Str("side", string(d.Action)).
		Float64("qty", qty).
		Msg("paper order filled")

	return Result{
		OrderID:   orderID,
		CycleID:   d.CycleID,
		FilledQty: qty,
		AvgPrice:  d.Price,
		Status:    StatusFilled,
	}, nil
}

// closePosition emits the closing fill after the simulated hold.
func (e *PaperExecutor) closePosition(orderID string, d decision.TradingDecision, qty float64, win bool) {
	defer e.wg.Done()
	time.Sleep(e.config.HoldDuration)

	exitPrice := d.StopLoss
	if win {
		exitPrice = d.TakeProfit
	}

	pnl := (exitPrice - d.Price) * qty
	if d.Action == decision.ActionSell {
		pnl = -pnl
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.emitLocked(Fill{
		OrderID:     orderID,
		CycleID:     d.CycleID,
		Symbol:      d.Symbol,
		Side:        string(d.Action),
		Qty:         qty,
		AvgPrice:    exitPrice,
		RealizedPnL: pnl,
		Final:       true,
		Timestamp:   time.Now(),
	})
}

// emitLocked pushes a fill, dropping on a full buffer rather than blocking
// the simulation.
func (e *PaperExecutor) emitLocked(f Fill) {
	select {
	case e.fills <- f:
	default:
		e.logger.Warn().Str("cycle_id", f.CycleID).Msg("fill buffer full, dropping event")
	}
}

// Fills returns the fill-event stream.
func (e *PaperExecutor) Fills() <-chan Fill {
	return e.fills
}

// Shutdown stops the executor and closes the fill stream.
func (e *PaperExecutor) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	close(e.fills)
}
