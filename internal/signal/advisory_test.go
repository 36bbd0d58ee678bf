package signal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
)

// mockCapability is a scriptable advisory capability
type mockCapability struct {
	response string
	err      error
	delay    time.Duration
}

func (m *mockCapability) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func testSnapshot() market.Snapshot {
	return market.Snapshot{Symbol: "SPY", Price: 450, Bid: 449.98, Ask: 450.02, Timestamp: time.Now()}
}

func testContext() market.Context {
	return market.Context{
		Trend:         market.TrendBullish,
		Volatility:    market.VolatilityNormal,
		SpreadQuality: market.SpreadTight,
		SessionPhase:  market.SessionMid,
	}
}

// TestAdvisoryValidResponse tests a well-formed answer producing a signal
func TestAdvisoryValidResponse(t *testing.T) {
	cap := &mockCapability{
		response: `{"action": "BUY", "confidence": 0.7, "reasoning": "trend continuation", "stop_loss": 448.0, "take_profit": 455.0}`,
	}
	producer := NewAdvisoryProducer("advisory_llm", cap, nil, zerolog.Nop())

	result := producer.Propose(context.Background(), testContext(), testSnapshot(), market.IndicatorSet{RSI: 55})

	if !result.HasSignal() {
		t.Fatalf("Expected signal result, got %s", result.Kind)
	}
	if result.Signal.Action != ActionBuy {
		t.Errorf("Expected BUY, got %s", result.Signal.Action)
	}
	if result.Signal.Confidence != 0.7 {
		t.Errorf("Expected confidence 0.7, got %f", result.Signal.Confidence)
	}
	if result.Signal.Source != "advisory_llm" {
		t.Errorf("Expected source advisory_llm, got %s", result.Signal.Source)
	}
}

// TestAdvisoryMarkdownFencedResponse tests fenced JSON is handled
func TestAdvisoryMarkdownFencedResponse(t *testing.T) {
	cap := &mockCapability{
		response: "```json\n{\"action\": \"SELL\", \"confidence\": 0.6, \"reasoning\": \"fading\"}\n```",
	}
	producer := NewAdvisoryProducer("advisory_llm", cap, nil, zerolog.Nop())

	result := producer.Propose(context.Background(), testContext(), testSnapshot(), market.IndicatorSet{})

	if !result.HasSignal() {
		t.Fatalf("Expected signal result, got %s", result.Kind)
	}
	if result.Signal.Action != ActionSell {
		t.Errorf("Expected SELL, got %s", result.Signal.Action)
	}
}

// TestAdvisoryTimeout tests that a slow capability yields a tagged Timeout,
// never a guessed signal
func TestAdvisoryTimeout(t *testing.T) {
	cap := &mockCapability{
		response: `{"action": "BUY", "confidence": 0.9}`,
		delay:    500 * time.Millisecond,
	}
	cfg := &AdvisoryConfig{Timeout: 20 * time.Millisecond, RateLimitPerMin: 60}
	producer := NewAdvisoryProducer("advisory_llm", cap, cfg, zerolog.Nop())

	start := time.Now()
	result := producer.Propose(context.Background(), testContext(), testSnapshot(), market.IndicatorSet{})
	elapsed := time.Since(start)

	if result.Kind != ResultTimeout {
		t.Fatalf("Expected TIMEOUT result, got %s", result.Kind)
	}
	if result.Signal != nil {
		t.Error("Timeout result must not carry a signal")
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

// TestAdvisoryMalformedResponses tests schema validation failures
func TestAdvisoryMalformedResponses(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"not_json", "I think you should buy because the trend looks good"},
		{"unknown_action", `{"action": "YOLO", "confidence": 0.5}`},
		{"confidence_out_of_range", `{"action": "BUY", "confidence": 1.7}`},
		{"negative_confidence", `{"action": "SELL", "confidence": -0.2}`},
	}

	for _, tc := range cases {
		cap := &mockCapability{response: tc.response}
		producer := NewAdvisoryProducer("advisory_llm", cap, nil, zerolog.Nop())

		result := producer.Propose(context.Background(), testContext(), testSnapshot(), market.IndicatorSet{})

		if result.Kind != ResultMalformed {
			t.Errorf("%s: expected MALFORMED, got %s", tc.name, result.Kind)
		}
		if result.Signal != nil {
			t.Errorf("%s: malformed result must not carry a signal", tc.name)
		}
	}
}

// TestAdvisoryHoldBecomesNoOpinion tests HOLD answers count as abstention
func TestAdvisoryHoldBecomesNoOpinion(t *testing.T) {
	cap := &mockCapability{response: `{"action": "HOLD", "confidence": 0.4, "reasoning": "choppy"}`}
	producer := NewAdvisoryProducer("advisory_llm", cap, nil, zerolog.Nop())

	result := producer.Propose(context.Background(), testContext(), testSnapshot(), market.IndicatorSet{})

	if result.Kind != ResultNoOpinion {
		t.Errorf("Expected NO_OPINION for HOLD, got %s", result.Kind)
	}
}

// TestMomentumProducerFollowsTrend tests trend alignment
func TestMomentumProducerFollowsTrend(t *testing.T) {
	producer := NewMomentumProducer()
	snap := testSnapshot()
	ind := market.IndicatorSet{RSI: 55, ATR: 2.0, ShortMomentum: 1.8}

	bull := testContext()
	bull.Trend = market.TrendStrongBullish
	result := producer.Propose(context.Background(), bull, snap, ind)
	if !result.HasSignal() || result.Signal.Action != ActionBuy {
		t.Fatalf("Expected BUY in strong bullish trend, got %+v", result)
	}
	if result.Signal.StopLoss == nil || *result.Signal.StopLoss >= snap.Price {
		t.Error("BUY stop loss must sit below price")
	}

	neutral := testContext()
	neutral.Trend = market.TrendNeutral
	result = producer.Propose(context.Background(), neutral, snap, ind)
	if result.Kind != ResultNoOpinion {
		t.Errorf("Expected NO_OPINION in neutral trend, got %s", result.Kind)
	}
}

// TestMeanReversionFadesExtremes tests the RSI band logic
func TestMeanReversionFadesExtremes(t *testing.T) {
	producer := NewMeanReversionProducer()
	snap := testSnapshot()
	mctx := testContext()
	mctx.Trend = market.TrendNeutral

	result := producer.Propose(context.Background(), mctx, snap, market.IndicatorSet{RSI: 22, ATR: 2.0})
	if !result.HasSignal() || result.Signal.Action != ActionBuy {
		t.Fatalf("Expected BUY at RSI 22, got %+v", result)
	}

	result = producer.Propose(context.Background(), mctx, snap, market.IndicatorSet{RSI: 78, ATR: 2.0})
	if !result.HasSignal() || result.Signal.Action != ActionSell {
		t.Fatalf("Expected SELL at RSI 78, got %+v", result)
	}

	result = producer.Propose(context.Background(), mctx, snap, market.IndicatorSet{RSI: 50, ATR: 2.0})
	if result.Kind != ResultNoOpinion {
		t.Errorf("Expected NO_OPINION at RSI 50, got %s", result.Kind)
	}

	// Never fade a strong trend.
	strongBear := testContext()
	strongBear.Trend = market.TrendStrongBearish
	result = producer.Propose(context.Background(), strongBear, snap, market.IndicatorSet{RSI: 22, ATR: 2.0})
	if result.Kind != ResultNoOpinion {
		t.Errorf("Expected NO_OPINION when fading strong bearish trend, got %s", result.Kind)
	}
}
