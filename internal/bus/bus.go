package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/decision"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/execution"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/governor"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/market"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/signal"
)

// Broadcast is the destination that delivers a message to every registered agent.
const Broadcast = "BROADCAST"

// MessageType represents the different message types routed between agents
type MessageType string

const (
	MsgSignalRequest   MessageType = "SIGNAL_REQUEST"
	MsgSignalResponse  MessageType = "SIGNAL_RESPONSE"
	MsgDecision        MessageType = "DECISION"
	MsgExecutionResult MessageType = "EXECUTION_RESULT"
	MsgStopTrading     MessageType = "STOP_TRADING"
)

// Priority represents message delivery priority
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Payload is the closed set of message bodies. Each MessageType pairs with
// exactly one payload variant and the bus rejects mismatched pairs.
type Payload interface {
	messageType() MessageType
}

// SignalRequest asks producers to propose a signal for one cycle
type SignalRequest struct {
	CycleID    string              `json:"cycle_id"`
	Symbol     string              `json:"symbol"`
	Context    market.Context      `json:"context"`
	Snapshot   market.Snapshot     `json:"snapshot"`
	Indicators market.IndicatorSet `json:"indicators"`
	Deadline   time.Time           `json:"deadline"`
}

func (SignalRequest) messageType() MessageType { return MsgSignalRequest }

// SignalResponse carries one producer's tagged result for a cycle
type SignalResponse struct {
	CycleID string        `json:"cycle_id"`
	Result  signal.Result `json:"result"`
}

func (SignalResponse) messageType() MessageType { return MsgSignalResponse }

// Decision carries a completed cycle's trading decision
type Decision struct {
	Decision decision.TradingDecision `json:"decision"`
}

func (Decision) messageType() MessageType { return MsgDecision }

// ExecutionResult carries the execution collaborator's order outcome
type ExecutionResult struct {
	Result execution.Result `json:"result"`
}

func (ExecutionResult) messageType() MessageType { return MsgExecutionResult }

// StopTrading announces that the daily circuit breaker has tripped
type StopTrading struct {
	Reason string                    `json:"reason"`
	State  governor.PerformanceState `json:"state"`
}

func (StopTrading) messageType() MessageType { return MsgStopTrading }

// AgentMessage is one routed message. Immutable once created.
type AgentMessage struct {
	ID          string      `json:"id"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Type        MessageType `json:"type"`
	Payload     Payload     `json:"payload"`
	TimestampMs int64       `json:"timestamp_ms"`
	Priority    Priority    `json:"priority"`
}

// NewMessage creates a message with a fresh id and current timestamp.
func NewMessage(from, to string, priority Priority, payload Payload) AgentMessage {
	return AgentMessage{
		ID:          uuid.New().String(),
		From:        from,
		To:          to,
		Type:        payload.messageType(),
		Payload:     payload,
		TimestampMs: time.Now().UnixMilli(),
		Priority:    priority,
	}
}

// Bus routes messages between registered agents. Each agent owns a private
// buffered mailbox; delivery never blocks the publisher.
type Bus struct {
	mu        sync.RWMutex
	mailboxes map[string]chan AgentMessage
	logger    zerolog.Logger
	closed    bool
}

// NewBus creates a new message bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		mailboxes: make(map[string]chan AgentMessage),
		logger:    logger.With().Str("component", "Bus").Logger(),
	}
}

// Register creates a mailbox for an agent and returns its receive side.
func (b *Bus) Register(agentID string, buffer int) (<-chan AgentMessage, error) {
	if agentID == "" || agentID == Broadcast {
		return nil, fmt.Errorf("invalid agent id %q", agentID)
	}
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}
	if _, exists := b.mailboxes[agentID]; exists {
		return nil, fmt.Errorf("agent %q already registered", agentID)
	}

	mailbox := make(chan AgentMessage, buffer)
	b.mailboxes[agentID] = mailbox
	return mailbox, nil
}

// Unregister removes an agent's mailbox and closes it.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if mailbox, ok := b.mailboxes[agentID]; ok {
		delete(b.mailboxes, agentID)
		close(mailbox)
	}
}

// Publish validates and routes a message. Messages to unknown agents are an
// error; a full mailbox drops the message rather than blocking.
func (b *Bus) Publish(msg AgentMessage) error {
	if msg.Payload == nil {
		return fmt.Errorf("message %s has no payload", msg.ID)
	}
	if got := msg.Payload.messageType(); got != msg.Type {
		return fmt.Errorf("message %s declares type %s but carries %s payload", msg.ID, msg.Type, got)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	if msg.To == Broadcast {
		for agentID, mailbox := range b.mailboxes {
			if agentID == msg.From {
				continue
			}
			b.deliver(agentID, mailbox, msg)
		}
		return nil
	}

	mailbox, ok := b.mailboxes[msg.To]
	if !ok {
		return fmt.Errorf("no agent registered as %q", msg.To)
	}
	b.deliver(msg.To, mailbox, msg)
	return nil
}

func (b *Bus) deliver(agentID string, mailbox chan AgentMessage, msg AgentMessage) {
	select {
	case mailbox <- msg:
	default:
		b.logger.Warn().
			Str("agent", agentID).
			Str("type", string(msg.Type)).
			Str("message_id", msg.ID).
			Msg("mailbox full, dropping message")
	}
}

// Close shuts the bus down and closes all mailboxes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for agentID, mailbox := range b.mailboxes {
		delete(b.mailboxes, agentID)
		close(mailbox)
	}
}
