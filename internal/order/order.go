// Package order defines the order domain model shared by the ledger,
// the bracket controller and the gateway boundary.
package order

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Kind represents the order type at the gateway.
type Kind string

const (
	KindMarket     Kind = "market"
	KindLimit      Kind = "limit"
	KindStopMarket Kind = "stop_market"
	KindStopLimit  Kind = "stop_limit"
)

// Role identifies what an order is for inside a bracket.
// Immutable after creation.
type Role string

const (
	RoleEntry  Role = "entry"
	RoleStop   Role = "stop"
	RoleTarget Role = "target"
)

// Status is the lifecycle status of an order as reported by the gateway.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusWorking         Status = "WORKING"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// Terminal reports whether no further updates are expected for this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// AtLeastWorking reports whether the gateway has accepted the order.
func (s Status) AtLeastWorking() bool {
	return s != StatusPending && s != ""
}

func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusWorking:
		return StatusWorking, nil
	case StatusPartiallyFilled:
		return StatusPartiallyFilled, nil
	case StatusFilled:
		return StatusFilled, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", fmt.Errorf("order: unknown status %q", raw)
}

// Price is either an explicit limit/stop price or the market sentinel.
// The zero value is NOT a valid price; use MarketPrice() or Limit().
type Price struct {
	market bool
	value  decimal.Decimal
	set    bool
}

// MarketPrice returns the "at market" sentinel.
func MarketPrice() Price { return Price{market: true, set: true} }

// Limit returns an explicit price.
func Limit(v decimal.Decimal) Price { return Price{value: v, set: true} }

func (p Price) IsMarket() bool { return p.market }
func (p Price) IsZero() bool   { return !p.set }

// Value returns the numeric price. Only meaningful when !IsMarket().
func (p Price) Value() decimal.Decimal { return p.value }

func (p Price) String() string {
	if !p.set {
		return "<unset>"
	}
	if p.market {
		return "MARKET"
	}
	return p.value.String()
}

// MarshalJSON serializes the sentinel as the string "MARKET" and explicit
// prices as decimal strings, so envelopes and journal rows round-trip.
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.set {
		return []byte("null"), nil
	}
	if p.market {
		return json.Marshal("MARKET")
	}
	return json.Marshal(p.value.String())
}

func (p *Price) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Price{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "MARKET" {
		*p = MarketPrice()
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("order: invalid price %q: %w", s, err)
	}
	*p = Limit(v)
	return nil
}

// Request captures everything the coordinator asked the gateway for.
type Request struct {
	AccountID  string          `json:"account_id"`
	Instrument string          `json:"instrument"`
	Side       Side            `json:"side"`
	Kind       Kind            `json:"kind"`
	Role       Role            `json:"role"`
	Price      Price           `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Instrument) == "" {
		return fmt.Errorf("order: instrument is required")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("order: invalid side %q", r.Side)
	}
	if r.Quantity.Sign() <= 0 {
		return fmt.Errorf("order: quantity must be positive, got %s", r.Quantity)
	}
	if r.Price.IsZero() {
		return fmt.Errorf("order: price must be MARKET or an explicit limit")
	}
	if (r.Kind == KindLimit || r.Kind == KindStopLimit) && r.Price.IsMarket() {
		return fmt.Errorf("order: %s order requires an explicit price", r.Kind)
	}
	return nil
}

// Fill is one execution against an order.
type Fill struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	At       time.Time       `json:"at"`
}

// Order is the ledger's authoritative record of one order.
// ID is empty until the gateway accepts the submission; before that the
// order is addressable only by its correlation token.
type Order struct {
	ID       string          `json:"id"`
	Token    Token           `json:"token"`
	Request  Request         `json:"request"`
	Status   Status          `json:"status"`
	Filled   decimal.Decimal `json:"filled"`
	Unfilled decimal.Decimal `json:"unfilled"`
	Fills    []Fill          `json:"fills,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Remaining returns the quantity not yet filled.
func (o *Order) Remaining() decimal.Decimal { return o.Unfilled }

// AvgFillPrice returns the volume-weighted average fill price, or zero if
// nothing has filled.
func (o *Order) AvgFillPrice() decimal.Decimal {
	total := decimal.Zero
	qty := decimal.Zero
	for _, f := range o.Fills {
		total = total.Add(f.Price.Mul(f.Quantity))
		qty = qty.Add(f.Quantity)
	}
	if qty.Sign() == 0 {
		return decimal.Zero
	}
	return total.Div(qty)
}

// CheckQuantityInvariant verifies filled + unfilled == requested once the
// order is working or later.
func (o *Order) CheckQuantityInvariant() error {
	if !o.Status.AtLeastWorking() {
		return nil
	}
	if !o.Filled.Add(o.Unfilled).Equal(o.Request.Quantity) {
		return fmt.Errorf("order %s: filled %s + unfilled %s != requested %s",
			o.ID, o.Filled, o.Unfilled, o.Request.Quantity)
	}
	return nil
}
