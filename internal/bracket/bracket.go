// Package bracket manages the protective stop/target pair around each open
// position: submission on entry fill, break-even promotion, one-cancels-
// other, and the degraded retry path when a leg fails to submit.
package bracket

import (
	"time"

	"github.com/shopspring/decimal"

	"corral/internal/order"
)

// State is the per-bracket lifecycle.
type State string

const (
	StateAwaitingEntryFill State = "AWAITING_ENTRY_FILL"
	StateActive            State = "ACTIVE"
	StateBreakEven         State = "BREAK_EVEN"
	StateDegraded          State = "DEGRADED"
	StateClosed            State = "CLOSED"
)

// Key identifies a bracket; one bracket per account/instrument position.
type Key struct {
	AccountID  string
	Instrument string
}

// Config carries the sizing knobs for protective legs.
type Config struct {
	TickSize             decimal.Decimal
	StopTicks            int64
	TargetTicks          int64
	BreakEvenTicks       int64
	BreakEvenOffsetTicks int64

	// AckTimeout is how long a submitted leg may stay unacknowledged before
	// the watchdog treats it as missing.
	AckTimeout time.Duration
	// RetryDelay spaces the single corrective retry of a failed leg.
	RetryDelay time.Duration
}

// leg tracks one protective order through its life.
type leg struct {
	role        order.Role
	token       order.Token
	orderID     string
	status      order.Status
	submittedAt time.Time
	acked       bool
	retried     bool
	// missing is set when a submission failed (or was rejected) and the leg
	// needs a corrective re-submit.
	missing bool
	retryAt time.Time
}

func (l *leg) terminal() bool { return l.status.Terminal() }

// Bracket groups exactly one entry order with zero-or-one stop and
// zero-or-one target, plus break-even state.
type Bracket struct {
	Key   Key
	State State

	entryToken order.Token
	entryID    string
	entrySide  order.Side
	entryPrice decimal.Decimal
	filledQty  decimal.Decimal

	stop   *leg
	target *leg

	breakEvenDone bool
	escalated     bool
	closeReason   string
	realized      decimal.Decimal

	createdAt time.Time
	updatedAt time.Time
}

func (b *Bracket) isLong() bool { return b.entrySide == order.SideBuy }

// terminalLegs reports whether both protective legs are finished (filled,
// cancelled, rejected, or never materialized).
func (b *Bracket) terminalLegs() bool {
	for _, l := range []*leg{b.stop, b.target} {
		if l == nil {
			continue
		}
		if l.missing {
			return false
		}
		if !l.terminal() {
			return false
		}
	}
	return true
}

// Snapshot is the read-only view served by the status API.
type Snapshot struct {
	AccountID     string          `json:"account_id"`
	Instrument    string          `json:"instrument"`
	State         State           `json:"state"`
	Side          order.Side      `json:"side"`
	EntryToken    order.Token     `json:"entry_token,omitempty"`
	EntryOrderID  string          `json:"entry_order_id"`
	StopToken     order.Token     `json:"stop_token,omitempty"`
	StopOrderID   string          `json:"stop_order_id,omitempty"`
	TargetToken   order.Token     `json:"target_token,omitempty"`
	TargetOrderID string          `json:"target_order_id,omitempty"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	BreakEven     bool            `json:"break_even"`
	Escalated     bool            `json:"escalated"`
	CloseReason   string          `json:"close_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (b *Bracket) snapshot() Snapshot {
	s := Snapshot{
		AccountID:    b.Key.AccountID,
		Instrument:   b.Key.Instrument,
		State:        b.State,
		Side:         b.entrySide,
		EntryToken:   b.entryToken,
		EntryOrderID: b.entryID,
		EntryPrice:   b.entryPrice,
		FilledQty:    b.filledQty,
		BreakEven:    b.breakEvenDone,
		Escalated:    b.escalated,
		CloseReason:  b.closeReason,
		CreatedAt:    b.createdAt,
		UpdatedAt:    b.updatedAt,
	}
	if b.stop != nil {
		s.StopToken = b.stop.token
		s.StopOrderID = b.stop.orderID
	}
	if b.target != nil {
		s.TargetToken = b.target.token
		s.TargetOrderID = b.target.orderID
	}
	return s
}
