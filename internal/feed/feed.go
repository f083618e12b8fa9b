// Package feed turns raw market/execution events into coordinator
// envelopes. Sources (JSONL replay, websocket) share one decoder that
// validates each event against an embedded JSON Schema before anything
// touches the lanes; malformed input is a protocol anomaly, never a crash.
package feed

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"corral/internal/account"
	"corral/internal/coord"
	"corral/internal/fault"
	"corral/internal/order"
)

// Dispatch delivers one decoded envelope to the coordinator.
type Dispatch func(coord.EventEnvelope) error

// Source is a long-running event producer. Run blocks until ctx is
// cancelled or the source is exhausted.
type Source interface {
	Run(ctx context.Context, dispatch Dispatch) error
}

// Decode validates and converts one raw feed event.
func Decode(raw []byte) (coord.EventEnvelope, error) {
	if err := validate(raw); err != nil {
		return coord.EventEnvelope{}, fault.Wrap(fault.KindRecoverableProtocolAnomaly, err, "feed event failed schema validation")
	}
	doc := gjson.ParseBytes(raw)
	typ := doc.Get("type").String()
	switch typ {
	case "account_snapshot":
		var accounts []account.Account
		doc.Get("accounts").ForEach(func(_, a gjson.Result) bool {
			accounts = append(accounts, account.Account{
				ID:      a.Get("id").String(),
				Primary: a.Get("primary").Bool(),
			})
			return true
		})
		return coord.NewEnvelope(coord.EvtAccountSnapshot, coord.AccountSnapshotPayload{Accounts: accounts})
	case "entry_signal":
		req := order.Request{
			AccountID:  doc.Get("account_id").String(),
			Instrument: doc.Get("instrument").String(),
			Side:       order.Side(doc.Get("side").String()),
			Kind:       order.Kind(doc.Get("kind").String()),
			Role:       order.RoleEntry,
			Quantity:   dec(doc.Get("quantity")),
		}
		if req.Kind == "" {
			req.Kind = order.KindMarket
		}
		if px := doc.Get("price"); px.Exists() {
			req.Price = order.Limit(dec(px))
		} else {
			req.Price = order.MarketPrice()
		}
		return coord.NewEnvelope(coord.EvtEntrySignal, coord.EntrySignalPayload{Request: req})
	case "order_accepted":
		return coord.NewEnvelope(coord.EvtOrderAccepted, coord.OrderAcceptedPayload{
			Token:   order.Token(doc.Get("token").String()),
			OrderID: doc.Get("order_id").String(),
		})
	case "order_status":
		status, err := order.ParseStatus(doc.Get("status").String())
		if err != nil {
			return coord.EventEnvelope{}, fault.Wrap(fault.KindRecoverableProtocolAnomaly, err, "order_status event")
		}
		return coord.NewEnvelope(coord.EvtOrderStatus, coord.OrderStatusPayload{
			OrderID:  doc.Get("order_id").String(),
			Filled:   dec(doc.Get("filled")),
			Unfilled: dec(doc.Get("unfilled")),
			Status:   status,
		})
	case "execution":
		return coord.NewEnvelope(coord.EvtExecution, coord.ExecutionPayload{
			OrderID:  doc.Get("order_id").String(),
			Quantity: dec(doc.Get("quantity")),
			Price:    dec(doc.Get("price")),
		})
	case "price_tick":
		return coord.NewEnvelope(coord.EvtPriceTick, coord.PriceTickPayload{
			Instrument: doc.Get("instrument").String(),
			Price:      dec(doc.Get("price")),
		})
	case "day_rollover":
		return coord.NewEnvelope(coord.EvtDayRollover, coord.DayRolloverPayload{
			Day: doc.Get("day").String(),
		})
	}
	return coord.EventEnvelope{}, fault.New(fault.KindRecoverableProtocolAnomaly, "unknown feed event type %q", typ)
}

// dec parses a numeric gjson result exactly; strings pass through so feeds
// may quote prices to avoid float formatting.
func dec(r gjson.Result) decimal.Decimal {
	d, err := decimal.NewFromString(r.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
