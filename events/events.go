package events

import (
	"context"
	"sync"

	"sidebet/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBetCreated              EventType = "bet_created"
	EventTypeBetStateChanged         EventType = "bet_state_changed"
	EventTypeParticipantJoined       EventType = "participant_joined"
	EventTypeResultAccepted          EventType = "result_accepted"
	EventTypeDisputeFiled            EventType = "dispute_filed"
	EventTypeDisputeResolved         EventType = "dispute_resolved"
	EventTypeTransactionSettled      EventType = "transaction_settled"
	EventTypeTrustScoreChanged       EventType = "trust_score_changed"
	EventTypeNotification            EventType = "notification"
	EventTypeSquaresGameStateChanged EventType = "squares_game_state_changed"
)

// AllEventTypes lists every event type, for subscribers that forward everything
var AllEventTypes = []EventType{
	EventTypeBetCreated,
	EventTypeBetStateChanged,
	EventTypeParticipantJoined,
	EventTypeResultAccepted,
	EventTypeDisputeFiled,
	EventTypeDisputeResolved,
	EventTypeTransactionSettled,
	EventTypeTrustScoreChanged,
	EventTypeNotification,
	EventTypeSquaresGameStateChanged,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BetCreatedEvent represents a newly created bet
type BetCreatedEvent struct {
	BetID      int64                `json:"bet_id"`
	CreatorID  int64                `json:"creator_id"`
	Visibility models.BetVisibility `json:"visibility"`
	Status     models.BetStatus     `json:"status"`
}

func (e BetCreatedEvent) Type() EventType {
	return EventTypeBetCreated
}

// BetStateChangedEvent represents a bet lifecycle transition
type BetStateChangedEvent struct {
	BetID     int64            `json:"bet_id"`
	CreatorID int64            `json:"creator_id"`
	OldStatus models.BetStatus `json:"old_status"`
	NewStatus models.BetStatus `json:"new_status"`
}

func (e BetStateChangedEvent) Type() EventType {
	return EventTypeBetStateChanged
}

// ParticipantJoinedEvent represents a user taking a side on a bet
type ParticipantJoinedEvent struct {
	BetID  int64           `json:"bet_id"`
	UserID int64           `json:"user_id"`
	Side   string          `json:"side"`
	Amount decimal.Decimal `json:"amount"`
}

func (e ParticipantJoinedEvent) Type() EventType {
	return EventTypeParticipantJoined
}

// ResultAcceptedEvent represents a participant acknowledging a declared outcome
type ResultAcceptedEvent struct {
	BetID         int64 `json:"bet_id"`
	UserID        int64 `json:"user_id"`
	AcceptedCount int   `json:"accepted_count"`
	TotalCount    int   `json:"total_count"`
}

func (e ResultAcceptedEvent) Type() EventType {
	return EventTypeResultAccepted
}

// DisputeFiledEvent represents a new dispute
type DisputeFiledEvent struct {
	DisputeID     int64                `json:"dispute_id"`
	BetID         int64                `json:"bet_id"`
	FiledBy       int64                `json:"filed_by"`
	AgainstUserID int64                `json:"against_user_id"`
	Reason        models.DisputeReason `json:"reason"`
}

func (e DisputeFiledEvent) Type() EventType {
	return EventTypeDisputeFiled
}

// DisputeResolvedEvent represents an admin outcome on a dispute
type DisputeResolvedEvent struct {
	DisputeID int64                `json:"dispute_id"`
	BetID     int64                `json:"bet_id"`
	Outcome   models.DisputeStatus `json:"outcome"`
	AdminID   int64                `json:"admin_id"`
}

func (e DisputeResolvedEvent) Type() EventType {
	return EventTypeDisputeResolved
}

// TransactionSettledEvent represents a ledger entry reaching a final status
type TransactionSettledEvent struct {
	TransactionID int64                    `json:"transaction_id"`
	UserID        int64                    `json:"user_id"`
	TxType        models.TransactionType   `json:"tx_type"`
	Status        models.TransactionStatus `json:"status"`
	Amount        decimal.Decimal          `json:"amount"`
	PlatformFee   decimal.Decimal          `json:"platform_fee"`
	NetAmount     decimal.Decimal          `json:"net_amount"`
	BalanceAfter  decimal.Decimal          `json:"balance_after"`
}

func (e TransactionSettledEvent) Type() EventType {
	return EventTypeTransactionSettled
}

// TrustScoreChangedEvent represents an applied trust score delta
type TrustScoreChangedEvent struct {
	UserID   int64              `json:"user_id"`
	Delta    float64            `json:"delta"`
	OldScore float64            `json:"old_score"`
	NewScore float64            `json:"new_score"`
	Reason   models.TrustReason `json:"reason"`
}

func (e TrustScoreChangedEvent) Type() EventType {
	return EventTypeTrustScoreChanged
}

// NotificationEvent carries a user notification to be delivered after commit
type NotificationEvent struct {
	Notification models.Notification `json:"notification"`
}

func (e NotificationEvent) Type() EventType {
	return EventTypeNotification
}

// SquaresGameStateChangedEvent represents a squares board transition
type SquaresGameStateChangedEvent struct {
	GameID    int64                    `json:"game_id"`
	OldStatus models.SquaresGameStatus `json:"old_status"`
	NewStatus models.SquaresGameStatus `json:"new_status"`
}

func (e SquaresGameStateChangedEvent) Type() EventType {
	return EventTypeSquaresGameStateChanged
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds pending events coupled to a unit of work and
// flushes them to the underlying Bus after commit.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Flush is called after a successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing pending events to main event bus")

	// Handlers outlive the request, so they get a context that is not cancelled with it
	eventCtx := context.WithoutCancel(ctx)
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// Discard is called after a rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}

// Pending returns the events queued so far
func (b *TransactionalBus) Pending() []Event {
	return b.pending
}
