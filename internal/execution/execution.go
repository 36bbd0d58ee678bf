// Package execution defines the execution collaborator interface and a
// paper implementation used in dry-run mode.
package execution

import (
	"context"
	"time"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/decision"
)

// OrderStatus represents the broker-reported order state
type OrderStatus string

const (
	StatusSubmitted OrderStatus = "SUBMITTED"
	StatusFilled    OrderStatus = "FILLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusFailed    OrderStatus = "FAILED"
)

// Result is the synchronous response to an order submission.
type Result struct {
	OrderID   string      `json:"orderId"`
	CycleID   string      `json:"cycleId"`
	FilledQty float64     `json:"filledQty"`
	AvgPrice  float64     `json:"avgPrice"`
	Status    OrderStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
}

// Fill is an asynchronous fill event. RealizedPnL is non-zero only on the
// final (closing) fill of a position; entry fills carry zero.
type Fill struct {
	OrderID     string    `json:"orderId"`
	CycleID     string    `json:"cycleId"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Qty         float64   `json:"qty"`
	AvgPrice    float64   `json:"avgPrice"`
	RealizedPnL float64   `json:"realizedPnL"`
	Final       bool      `json:"final"` // position fully closed
	Timestamp   time.Time `json:"timestamp"`
}

// Executor is the execution collaborator consumed by the coordinator.
// Fills delivers the fill-event stream keyed by cycle ID; the channel is
// closed on Shutdown.
type Executor interface {
	Submit(ctx context.Context, d decision.TradingDecision) (Result, error)
	Fills() <-chan Fill
	Shutdown()
}
