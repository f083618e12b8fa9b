// Package ledger is the authoritative in-memory record of every order the
// coordinator has placed: requested parameters, current status and fill
// state, updated from feed events. All mutation happens on coordinator
// lanes; the ledger itself carries a mutex only for cross-lane reads.
package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"corral/internal/account"
	"corral/internal/fault"
	"corral/internal/observe"
	"corral/internal/order"
)

// PositionKey identifies a derived position.
type PositionKey struct {
	AccountID  string
	Instrument string
}

// Ledger owns Order records exclusively; every other component refers to
// orders by id and reads through Get.
type Ledger struct {
	mu       sync.RWMutex
	byID     map[string]*order.Order
	pending  map[order.Token]*order.Order
	position map[PositionKey]decimal.Decimal
	registry *account.Registry
	sink     observe.Sink
}

func New(registry *account.Registry, sink observe.Sink) *Ledger {
	return &Ledger{
		byID:     make(map[string]*order.Order),
		pending:  make(map[order.Token]*order.Order),
		position: make(map[PositionKey]decimal.Decimal),
		registry: registry,
		sink:     sink,
	}
}

// RecordSubmission stores a PENDING order before the gateway has assigned an
// id. The token must be unique among currently pending submissions; the
// ledger retains the first submission on a duplicate.
func (l *Ledger) RecordSubmission(token order.Token, req order.Request) error {
	if token.Empty() {
		return fault.New(fault.KindLedgerInconsistency, "submission with empty token")
	}
	if err := req.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.pending[token]; exists {
		return fault.New(fault.KindRecoverableProtocolAnomaly, "duplicate submission token %s", token)
	}
	now := time.Now()
	o := &order.Order{
		Token:       token,
		Request:     req,
		Status:      order.StatusPending,
		Unfilled:    req.Quantity,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	l.pending[token] = o
	observe.Emit(l.sink, observe.EventOrderSubmitted, observe.SeverityInfo, map[string]any{
		"token":      token.String(),
		"account":    req.AccountID,
		"instrument": req.Instrument,
		"side":       req.Side,
		"role":       req.Role,
		"qty":        req.Quantity.String(),
		"price":      req.Price.String(),
	})
	return nil
}

// OnAccepted binds the gateway-assigned id and moves the order to WORKING.
// An unknown token is a recoverable anomaly: warned and dropped.
func (l *Ledger) OnAccepted(token order.Token, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.pending[token]
	if !ok {
		return fault.New(fault.KindRecoverableProtocolAnomaly, "accepted for unknown token %s (order %s)", token, orderID)
	}
	delete(l.pending, token)
	o.ID = orderID
	o.Status = order.StatusWorking
	o.UpdatedAt = time.Now()
	l.byID[orderID] = o
	if l.registry != nil {
		l.registry.BindOrder(orderID, o.Request.AccountID)
	}
	observe.Emit(l.sink, observe.EventOrderAccepted, observe.SeverityInfo, map[string]any{
		"token": token.String(),
		"order": orderID,
		"role":  o.Request.Role,
	})
	return nil
}

// OnOrderUpdate merges a status snapshot for an order. Idempotent: replaying
// the same update leaves the ledger unchanged. Monotonic: a snapshot whose
// filled quantity is lower than what the ledger already recorded is stale
// and discarded with a consistency warning.
func (l *Ledger) OnOrderUpdate(orderID string, filled, unfilled decimal.Decimal, status order.Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byID[orderID]
	if !ok {
		return fault.New(fault.KindLedgerInconsistency, "update for unknown order %s", orderID)
	}
	if filled.LessThan(o.Filled) {
		observe.Emit(l.sink, observe.EventAnomaly, observe.SeverityWarn, map[string]any{
			"order":         orderID,
			"reason":        "filled_regression",
			"seen_filled":   o.Filled.String(),
			"update_filled": filled.String(),
		})
		return fault.New(fault.KindRecoverableProtocolAnomaly, "stale update for order %s: filled %s < %s", orderID, filled, o.Filled)
	}
	if filled.Equal(o.Filled) && unfilled.Equal(o.Unfilled) && status == o.Status {
		return nil
	}
	prev := o.Status
	o.Filled = filled
	o.Unfilled = unfilled
	o.Status = status
	o.UpdatedAt = time.Now()
	if err := o.CheckQuantityInvariant(); err != nil {
		observe.Emit(l.sink, observe.EventLedgerInconsistency, observe.SeverityWarn, map[string]any{
			"order":  orderID,
			"reason": err.Error(),
		})
	}
	if prev != status {
		observe.Emit(l.sink, observe.EventOrderTransition, observe.SeverityInfo, map[string]any{
			"order": orderID,
			"from":  prev,
			"to":    status,
			"role":  o.Request.Role,
		})
	}
	return nil
}

// OnExecution appends a fill and updates the derived position for the
// order's account/instrument. Buy executions add to the net position, sell
// executions subtract, regardless of the order's bracket role.
func (l *Ledger) OnExecution(orderID string, qty, price decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byID[orderID]
	if !ok {
		return fault.New(fault.KindLedgerInconsistency, "execution for unknown order %s", orderID)
	}
	if qty.Sign() <= 0 {
		return fault.New(fault.KindRecoverableProtocolAnomaly, "execution for order %s with non-positive qty %s", orderID, qty)
	}
	o.Fills = append(o.Fills, order.Fill{Quantity: qty, Price: price, At: time.Now()})
	o.UpdatedAt = time.Now()

	key := PositionKey{AccountID: o.Request.AccountID, Instrument: o.Request.Instrument}
	signed := qty
	if o.Request.Side == order.SideSell {
		signed = qty.Neg()
	}
	l.position[key] = l.position[key].Add(signed)
	return nil
}

// Get returns the order for a gateway-assigned id.
func (l *Ledger) Get(orderID string) (*order.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.byID[orderID]
	return o, ok
}

// GetByToken returns a still-pending submission.
func (l *Ledger) GetByToken(token order.Token) (*order.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.pending[token]
	return o, ok
}

// Position returns the derived signed net position for an
// account/instrument pair.
func (l *Ledger) Position(accountID, instrument string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.position[PositionKey{AccountID: accountID, Instrument: instrument}]
}

// Orders returns a snapshot copy of all id-bound orders, for the status API.
func (l *Ledger) Orders() []order.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]order.Order, 0, len(l.byID))
	for _, o := range l.byID {
		cp := *o
		cp.Fills = append([]order.Fill(nil), o.Fills...)
		out = append(out, cp)
	}
	return out
}

// Restore re-inserts an order during startup recovery. Only the store's
// hydration path may call this.
func (l *Ledger) Restore(o *order.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o.ID != "" {
		l.byID[o.ID] = o
		if l.registry != nil {
			l.registry.BindOrder(o.ID, o.Request.AccountID)
		}
	} else if !o.Token.Empty() {
		l.pending[o.Token] = o
	}
	for _, f := range o.Fills {
		key := PositionKey{AccountID: o.Request.AccountID, Instrument: o.Request.Instrument}
		signed := f.Quantity
		if o.Request.Side == order.SideSell {
			signed = signed.Neg()
		}
		l.position[key] = l.position[key].Add(signed)
	}
}
