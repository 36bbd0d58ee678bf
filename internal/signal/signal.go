// Package signal defines the producer capability contract and the tagged
// result type that keeps fallback outcomes distinguishable from genuine
// signals.
package signal

import (
	"context"
	"errors"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
)

// Action represents a proposed trade direction
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Producer-level errors. Both are recovered locally by the coordinator and
// treated as absence of a signal, never as a blocking failure.
var (
	ErrAdvisoryTimeout  = errors.New("advisory producer missed deadline")
	ErrMalformedSignal  = errors.New("advisory response failed schema validation")
	ErrCapabilityUnsure = errors.New("advisory capability declined to answer")
)

// Signal is a single producer's trade proposal.
type Signal struct {
	Symbol     string   `json:"symbol"`
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"` // 0..1
	Reasoning  string   `json:"reasoning"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
	Source     string   `json:"source"`
}

// ResultKind tags the outcome of a Propose call.
type ResultKind string

const (
	// ResultSignal carries a genuine signal.
	ResultSignal ResultKind = "SIGNAL"
	// ResultTimeout means the producer missed its deadline.
	ResultTimeout ResultKind = "TIMEOUT"
	// ResultMalformed means an advisory response failed validation and
	// was discarded.
	ResultMalformed ResultKind = "MALFORMED"
	// ResultNoOpinion means the producer had nothing to propose.
	ResultNoOpinion ResultKind = "NO_OPINION"
)

// Result is the tagged outcome of a Propose call. Only ResultSignal carries
// a Signal; callers must branch on Kind and never treat a fallback as a
// genuine proposal.
type Result struct {
	Kind   ResultKind `json:"kind"`
	Source string     `json:"source"`
	Signal *Signal    `json:"signal,omitempty"`
	// Advisory marks results from non-deterministic, best-effort sources.
	Advisory bool  `json:"advisory,omitempty"`
	Err      error `json:"-"`
}

// OK wraps a genuine signal.
func OK(sig Signal) Result {
	return Result{Kind: ResultSignal, Source: sig.Source, Signal: &sig}
}

// TimedOut marks a missed deadline.
func TimedOut(source string, err error) Result {
	if err == nil {
		err = ErrAdvisoryTimeout
	}
	return Result{Kind: ResultTimeout, Source: source, Err: err}
}

// Malformed marks a discarded advisory response.
func Malformed(source string, err error) Result {
	if err == nil {
		err = ErrMalformedSignal
	}
	return Result{Kind: ResultMalformed, Source: source, Err: err}
}

// NoOpinion marks an intentional abstention.
func NoOpinion(source string) Result {
	return Result{Kind: ResultNoOpinion, Source: source}
}

// HasSignal reports whether the result carries a genuine signal.
func (r Result) HasSignal() bool {
	return r.Kind == ResultSignal && r.Signal != nil
}

// Producer is the capability contract implemented by every signal source.
// Deterministic producers must answer within their fixed budget; advisory
// producers are bounded by the context deadline and report Timeout or
// Malformed explicitly instead of guessing.
type Producer interface {
	ID() string
	Deterministic() bool
	Propose(ctx context.Context, mctx market.Context, snap market.Snapshot, ind market.IndicatorSet) Result
}
