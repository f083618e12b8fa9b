// Package sim is an in-process gateway plus feed source: it assigns order
// ids, emits accepted/status/execution events, and fills resting stop and
// limit orders as the scripted price moves. Tests and the paper run mode
// use it in place of a real host adapter.
package sim

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"corral/internal/coord"
	"corral/internal/logger"
	"corral/internal/order"
	"corral/internal/pkg/decmath"
)

type simOrder struct {
	id     string
	token  order.Token
	req    order.Request
	status order.Status
	filled decimal.Decimal
	price  order.Price
	qty    decimal.Decimal
}

// Gateway emits feed events through the dispatch function on a single
// forwarding goroutine, so event order matches call order.
type Gateway struct {
	mu       sync.Mutex
	dispatch func(coord.EventEnvelope) error
	queue    chan coord.EventEnvelope
	done     chan struct{}
	nextID   int
	orders   map[string]*simOrder
	prices   map[string]decimal.Decimal

	// scripted failures, keyed by role: submissions that error synchronously
	// and submissions that are accepted then rejected by the "host".
	failSubmit  map[order.Role]int
	rejectAsync map[order.Role]int
}

func New(dispatch func(coord.EventEnvelope) error) *Gateway {
	g := &Gateway{
		dispatch:    dispatch,
		queue:       make(chan coord.EventEnvelope, 1024),
		done:        make(chan struct{}),
		orders:      make(map[string]*simOrder),
		prices:      make(map[string]decimal.Decimal),
		failSubmit:  make(map[order.Role]int),
		rejectAsync: make(map[order.Role]int),
	}
	go g.pump()
	return g
}

func (g *Gateway) Close() { close(g.done) }

func (g *Gateway) pump() {
	for {
		select {
		case evt := <-g.queue:
			if err := g.dispatch(evt); err != nil {
				logger.Warnf("sim: dispatch of %s failed: %v", evt.Type, err)
			}
		case <-g.done:
			return
		}
	}
}

func (g *Gateway) emit(t coord.EventType, payload any) {
	evt, err := coord.NewEnvelope(t, payload)
	if err != nil {
		logger.Errorf("sim: building %s event: %v", t, err)
		return
	}
	g.queue <- evt
}

// FailNextSubmit makes the next n submissions of the given role return an
// error synchronously.
func (g *Gateway) FailNextSubmit(role order.Role, n int) {
	g.mu.Lock()
	g.failSubmit[role] += n
	g.mu.Unlock()
}

// RejectNext makes the next n submissions of the given role be accepted and
// then rejected by the simulated host.
func (g *Gateway) RejectNext(role order.Role, n int) {
	g.mu.Lock()
	g.rejectAsync[role] += n
	g.mu.Unlock()
}

func (g *Gateway) SubmitEntry(req order.Request) (order.Token, error)  { return g.submit(req) }
func (g *Gateway) SubmitStop(req order.Request) (order.Token, error)   { return g.submit(req) }
func (g *Gateway) SubmitTarget(req order.Request) (order.Token, error) { return g.submit(req) }

func (g *Gateway) submit(req order.Request) (order.Token, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	g.mu.Lock()
	if g.failSubmit[req.Role] > 0 {
		g.failSubmit[req.Role]--
		g.mu.Unlock()
		return "", fmt.Errorf("sim: submission refused for %s", req.Role)
	}
	reject := false
	if g.rejectAsync[req.Role] > 0 {
		g.rejectAsync[req.Role]--
		reject = true
	}
	g.nextID++
	id := fmt.Sprintf("SIM-%d", g.nextID)
	token := order.NewToken(req.Role)
	o := &simOrder{
		id:     id,
		token:  token,
		req:    req,
		status: order.StatusWorking,
		price:  req.Price,
		qty:    req.Quantity,
	}
	g.orders[id] = o
	px := g.prices[req.Instrument]
	g.mu.Unlock()

	g.emit(coord.EvtOrderAccepted, coord.OrderAcceptedPayload{Token: token, OrderID: id})
	if reject {
		g.mu.Lock()
		o.status = order.StatusRejected
		g.mu.Unlock()
		g.emit(coord.EvtOrderStatus, coord.OrderStatusPayload{
			OrderID: id, Filled: decimal.Zero, Unfilled: req.Quantity, Status: order.StatusRejected,
		})
		return token, nil
	}
	g.emit(coord.EvtOrderStatus, coord.OrderStatusPayload{
		OrderID: id, Filled: decimal.Zero, Unfilled: req.Quantity, Status: order.StatusWorking,
	})
	if req.Kind == order.KindMarket {
		g.fill(o, px)
	}
	return token, nil
}

func (g *Gateway) Modify(orderID string, newPrice order.Price, newQty decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok || o.status.Terminal() {
		return fmt.Errorf("sim: modify of unknown or terminal order %s", orderID)
	}
	if !newPrice.IsZero() {
		o.price = newPrice
	}
	if newQty.Sign() > 0 {
		o.qty = newQty
	}
	return nil
}

func (g *Gateway) Cancel(orderID string) error {
	g.mu.Lock()
	o, ok := g.orders[orderID]
	if !ok || o.status.Terminal() {
		g.mu.Unlock()
		return fmt.Errorf("sim: cancel of unknown or terminal order %s", orderID)
	}
	o.status = order.StatusCancelled
	filled, unfilled := o.filled, o.qty.Sub(o.filled)
	g.mu.Unlock()

	g.emit(coord.EvtOrderStatus, coord.OrderStatusPayload{
		OrderID: orderID, Filled: filled, Unfilled: unfilled, Status: order.StatusCancelled,
	})
	return nil
}

// SetPrice moves the simulated market: emits the price tick, then fills any
// resting orders the move triggered.
func (g *Gateway) SetPrice(instrument string, px decimal.Decimal) {
	g.mu.Lock()
	g.prices[instrument] = px
	triggered := make([]*simOrder, 0, 2)
	for _, o := range g.orders {
		if o.req.Instrument != instrument || o.status.Terminal() {
			continue
		}
		if o.req.Kind != order.KindMarket && triggeredAt(o, px) {
			triggered = append(triggered, o)
		}
	}
	g.mu.Unlock()

	g.emit(coord.EvtPriceTick, coord.PriceTickPayload{Instrument: instrument, Price: px})
	for _, o := range triggered {
		g.fill(o, px)
	}
}

// triggeredAt decides whether a resting order executes at the new price.
func triggeredAt(o *simOrder, px decimal.Decimal) bool {
	if o.price.IsMarket() {
		return true
	}
	limit := o.price.Value()
	switch o.req.Kind {
	case order.KindLimit:
		if o.req.Side == order.SideSell {
			return decmath.GTE(px, limit)
		}
		return decmath.LTE(px, limit)
	case order.KindStopMarket, order.KindStopLimit:
		if o.req.Side == order.SideSell {
			return decmath.LTE(px, limit)
		}
		return decmath.GTE(px, limit)
	}
	return false
}

func (g *Gateway) fill(o *simOrder, px decimal.Decimal) {
	g.mu.Lock()
	if o.status.Terminal() {
		g.mu.Unlock()
		return
	}
	qty := o.qty.Sub(o.filled)
	o.filled = o.qty
	o.status = order.StatusFilled
	total := o.qty
	fillPx := px
	if !o.price.IsMarket() && o.req.Kind == order.KindLimit {
		fillPx = o.price.Value()
	}
	if fillPx.Sign() == 0 {
		fillPx = px
	}
	g.mu.Unlock()

	g.emit(coord.EvtExecution, coord.ExecutionPayload{OrderID: o.id, Quantity: qty, Price: fillPx})
	g.emit(coord.EvtOrderStatus, coord.OrderStatusPayload{
		OrderID: o.id, Filled: total, Unfilled: decimal.Zero, Status: order.StatusFilled,
	})
}

// PublishAccounts scripts an account snapshot onto the feed.
func (g *Gateway) PublishAccounts(p coord.AccountSnapshotPayload) {
	g.emit(coord.EvtAccountSnapshot, p)
}

// Rollover scripts a trading-day boundary.
func (g *Gateway) Rollover(day string) {
	g.emit(coord.EvtDayRollover, coord.DayRolloverPayload{Day: day})
}
