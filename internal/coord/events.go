// Package coord is the event-driven core of the coordinator: feed callbacks
// become envelopes dispatched onto per-bracket sequential lanes, where
// registered handlers mutate the ledger, the risk gate and the bracket
// controller. Cross-bracket events proceed concurrently; events for one
// bracket are never reordered.
package coord

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"corral/internal/account"
	"corral/internal/order"
)

// EventType identifies what an envelope carries.
type EventType string

const (
	// EvtAccountSnapshot replaces the known trading account set.
	EvtAccountSnapshot EventType = "ACCOUNT_SNAPSHOT"
	// EvtEntrySignal asks for a new entry; runs the risk gate first.
	EvtEntrySignal EventType = "ENTRY_SIGNAL"
	// EvtOrderAccepted binds a gateway order id to a submission token.
	EvtOrderAccepted EventType = "ORDER_ACCEPTED"
	// EvtOrderStatus is a filled/unfilled/status snapshot for an order.
	EvtOrderStatus EventType = "ORDER_STATUS"
	// EvtExecution is one fill against an order.
	EvtExecution EventType = "EXECUTION"
	// EvtPriceTick is a market price update for an instrument.
	EvtPriceTick EventType = "PRICE_TICK"
	// EvtDayRollover marks the trading-day boundary.
	EvtDayRollover EventType = "DAY_ROLLOVER"
	// EvtWatchdogTick drives ack timeouts and degraded-leg retries.
	EvtWatchdogTick EventType = "WATCHDOG_TICK"
)

// EventEnvelope is the standard message consumed by the lanes.
type EventEnvelope struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`

	// ReplyCh lets synchronous callers (tests, recovery) wait for the
	// handler outcome.
	ReplyCh chan error `json:"-"`
}

// NewEnvelope marshals the payload and stamps id and time.
func NewEnvelope(t EventType, payload any) (EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   raw,
		CreatedAt: time.Now(),
	}, nil
}

type AccountSnapshotPayload struct {
	Accounts []account.Account `json:"accounts"`
}

type EntrySignalPayload struct {
	Request order.Request `json:"request"`
}

type OrderAcceptedPayload struct {
	Token   order.Token `json:"token"`
	OrderID string      `json:"order_id"`
}

type OrderStatusPayload struct {
	OrderID  string          `json:"order_id"`
	Filled   decimal.Decimal `json:"filled"`
	Unfilled decimal.Decimal `json:"unfilled"`
	Status   order.Status    `json:"status"`
}

type ExecutionPayload struct {
	OrderID  string          `json:"order_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type PriceTickPayload struct {
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
}

type DayRolloverPayload struct {
	Day string `json:"day"`
}
