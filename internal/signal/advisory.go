package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
)

// AdvisoryConfig holds advisory producer configuration
type AdvisoryConfig struct {
	Timeout         time.Duration `json:"timeout"`            // hard per-call deadline
	RateLimitPerMin int           `json:"rate_limit_per_min"` // external capability quota guard
}

// DefaultAdvisoryConfig returns default configuration
func DefaultAdvisoryConfig() *AdvisoryConfig {
	return &AdvisoryConfig{
		Timeout:         3 * time.Second,
		RateLimitPerMin: 10,
	}
}

// advisoryResponse is the strict schema an advisory answer must satisfy.
type advisoryResponse struct {
	Action     string   `json:"action"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
}

const advisorySystemPrompt = `You are a short-horizon trading analyst.
Respond with ONLY a JSON object: {"action": "BUY"|"SELL"|"HOLD",
"confidence": 0.0-1.0, "reasoning": "...", "stop_loss": number|null,
"take_profit": number|null}. No prose outside the JSON.`

// markdownFence matches a fenced code block wrapping the whole response.
var markdownFence = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripMarkdownCodeBlock removes markdown code fences from LLM responses.
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := markdownFence.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}

// AdvisoryProducer wraps an external model capability as a best-effort,
// timeout-bounded signal source. It never substitutes a guessed signal: a
// missed deadline yields Timeout and an invalid response yields Malformed.
type AdvisoryProducer struct {
	id         string
	capability Capability
	config     *AdvisoryConfig
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewAdvisoryProducer creates an advisory producer around a capability.
func NewAdvisoryProducer(id string, capability Capability, config *AdvisoryConfig, logger zerolog.Logger) *AdvisoryProducer {
	if config == nil {
		config = DefaultAdvisoryConfig()
	}
	perMin := config.RateLimitPerMin
	if perMin <= 0 {
		perMin = 10
	}
	return &AdvisoryProducer{
		id:         id,
		capability: capability,
		config:     config,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin),
		logger:     logger.With().Str("component", "AdvisoryProducer").Str("producer", id).Logger(),
	}
}

// ID returns the producer identifier.
func (p *AdvisoryProducer) ID() string { return p.id }

// Deterministic reports that this producer has unbounded upstream latency.
func (p *AdvisoryProducer) Deterministic() bool { return false }

// asAdvisory tags a result as coming from a best-effort source.
func asAdvisory(r Result) Result {
	r.Advisory = true
	return r
}

// Propose asks the external capability for an opinion within the configured
// deadline. Quota exhaustion counts as an abstention, not a failure.
func (p *AdvisoryProducer) Propose(ctx context.Context, mctx market.Context, snap market.Snapshot, ind market.IndicatorSet) Result {
	if !p.limiter.Allow() {
		p.logger.Debug().Str("symbol", snap.Symbol).Msg("advisory rate limit hit, abstaining")
		return asAdvisory(NoOpinion(p.id))
	}

	callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	prompt := p.buildPrompt(mctx, snap, ind)
	raw, err := p.capability.Complete(callCtx, advisorySystemPrompt, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			p.logger.Warn().Str("symbol", snap.Symbol).Dur("timeout", p.config.Timeout).Msg("advisory call missed deadline")
			return asAdvisory(TimedOut(p.id, fmt.Errorf("%w: %v", ErrAdvisoryTimeout, err)))
		}
		if errors.Is(err, context.Canceled) {
			return asAdvisory(TimedOut(p.id, fmt.Errorf("%w: cycle cancelled", ErrAdvisoryTimeout)))
		}
		p.logger.Warn().Err(err).Str("symbol", snap.Symbol).Msg("advisory call failed")
		return asAdvisory(Malformed(p.id, fmt.Errorf("%w: %v", ErrMalformedSignal, err)))
	}

	sig, err := p.parseResponse(snap.Symbol, raw)
	if err != nil {
		p.logger.Warn().Err(err).Str("symbol", snap.Symbol).Msg("advisory response discarded")
		return asAdvisory(Malformed(p.id, err))
	}
	if sig.Action == ActionHold {
		return asAdvisory(NoOpinion(p.id))
	}

	return asAdvisory(OK(sig))
}

// buildPrompt renders the market state for the capability.
func (p *AdvisoryProducer) buildPrompt(mctx market.Context, snap market.Snapshot, ind market.IndicatorSet) string {
	return fmt.Sprintf(
		"Symbol: %s\nPrice: %.4f (bid %.4f / ask %.4f)\nTrend: %s\nVolatility: %s\nSpread: %s\nSession: %s\nRSI(14): %.1f\nATR(14): %.4f\nShort momentum: %.2f%%\nLong momentum: %.2f%%",
		snap.Symbol, snap.Price, snap.Bid, snap.Ask,
		mctx.Trend, mctx.Volatility, mctx.SpreadQuality, mctx.SessionPhase,
		ind.RSI, ind.ATR, ind.ShortMomentum, ind.LongMomentum,
	)
}

// parseResponse validates the advisory answer against the strict schema.
func (p *AdvisoryProducer) parseResponse(symbol, raw string) (Signal, error) {
	cleaned := stripMarkdownCodeBlock(raw)

	var resp advisoryResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return Signal{}, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedSignal, err)
	}

	var action Action
	switch strings.ToUpper(resp.Action) {
	case "BUY":
		action = ActionBuy
	case "SELL":
		action = ActionSell
	case "HOLD":
		action = ActionHold
	default:
		return Signal{}, fmt.Errorf("%w: unknown action %q", ErrMalformedSignal, resp.Action)
	}

	if resp.Confidence < 0 || resp.Confidence > 1 {
		return Signal{}, fmt.Errorf("%w: confidence %.3f outside [0,1]", ErrMalformedSignal, resp.Confidence)
	}

	return Signal{
		Symbol:     symbol,
		Action:     action,
		Confidence: resp.Confidence,
		Reasoning:  resp.Reasoning,
		StopLoss:   resp.StopLoss,
		TakeProfit: resp.TakeProfit,
		Source:     p.id,
	}, nil
}
