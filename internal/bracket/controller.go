package bracket

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"corral/internal/fault"
	"corral/internal/gateway"
	"corral/internal/ledger"
	"corral/internal/observe"
	"corral/internal/order"
	"corral/internal/pkg/decmath"
	"corral/internal/risk"
)

// Controller owns every bracket. Mutations for a single bracket are
// serialized by the coordinator's per-key lanes; the controller's lock only
// protects the cross-bracket indexes.
type Controller struct {
	mu   sync.RWMutex
	cfg  Config
	gw   gateway.Gateway
	book *ledger.Ledger
	gate *risk.Gate
	sink observe.Sink

	brackets   map[Key]*Bracket
	entryToken map[order.Token]Key
	byOrderID  map[string]Key
	legToken   map[order.Token]Key

	nowFn func() time.Time
}

func NewController(cfg Config, gw gateway.Gateway, book *ledger.Ledger, gate *risk.Gate, sink observe.Sink) *Controller {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Controller{
		cfg:        cfg,
		gw:         gw,
		book:       book,
		gate:       gate,
		sink:       sink,
		brackets:   make(map[Key]*Bracket),
		entryToken: make(map[order.Token]Key),
		byOrderID:  make(map[string]Key),
		legToken:   make(map[order.Token]Key),
		nowFn:      time.Now,
	}
}

// TrackEntry registers a freshly submitted entry order. The bracket starts
// in AWAITING_ENTRY_FILL; protective legs are created on the first fill.
func (c *Controller) TrackEntry(token order.Token, req order.Request) error {
	key := Key{AccountID: req.AccountID, Instrument: req.Instrument}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.brackets[key]; ok && existing.State != StateClosed {
		return fault.New(fault.KindConfigurationRejection, "bracket already open for %s/%s", key.AccountID, key.Instrument)
	}
	now := c.nowFn()
	b := &Bracket{
		Key:        key,
		State:      StateAwaitingEntryFill,
		entryToken: token,
		entrySide:  req.Side,
		createdAt:  now,
		updatedAt:  now,
	}
	c.brackets[key] = b
	c.entryToken[token] = key
	c.emitTransition(b, "", StateAwaitingEntryFill)
	return nil
}

// KeyForOrder resolves which bracket an order id belongs to, for lane
// routing.
func (c *Controller) KeyForOrder(orderID string) (Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.byOrderID[orderID]
	return k, ok
}

// KeyForToken resolves lane routing for pre-acceptance events.
func (c *Controller) KeyForToken(token order.Token) (Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if k, ok := c.entryToken[token]; ok {
		return k, true
	}
	k, ok := c.legToken[token]
	return k, ok
}

// OnAccepted binds a gateway-assigned id to whichever bracket the token
// belongs to.
func (c *Controller) OnAccepted(token order.Token, orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.entryToken[token]; ok {
		if b := c.brackets[key]; b != nil {
			b.entryID = orderID
			b.updatedAt = c.nowFn()
			c.byOrderID[orderID] = key
		}
		return
	}
	key, ok := c.legToken[token]
	if !ok {
		return
	}
	b := c.brackets[key]
	if b == nil {
		return
	}
	if l := c.legForToken(b, token); l != nil {
		l.orderID = orderID
		l.acked = true
		l.status = order.StatusWorking
		c.byOrderID[orderID] = key
	}
	b.updatedAt = c.nowFn()
}

func (c *Controller) legForToken(b *Bracket, token order.Token) *leg {
	if b.stop != nil && b.stop.token == token {
		return b.stop
	}
	if b.target != nil && b.target.token == token {
		return b.target
	}
	return nil
}

func (c *Controller) legForID(b *Bracket, orderID string) *leg {
	if b.stop != nil && b.stop.orderID == orderID {
		return b.stop
	}
	if b.target != nil && b.target.orderID == orderID {
		return b.target
	}
	return nil
}

// OnExecution reacts to a fill on any order the controller tracks. Entry
// first-fill activates the bracket; stop/target fills realize P&L and drive
// one-cancels-other.
func (c *Controller) OnExecution(orderID string, qty, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.byOrderID[orderID]
	if !ok {
		return
	}
	b := c.brackets[key]
	if b == nil || b.State == StateClosed {
		return
	}
	now := c.nowFn()
	b.updatedAt = now

	if orderID == b.entryID {
		first := b.filledQty.Sign() == 0
		b.filledQty = b.filledQty.Add(qty)
		if first {
			b.entryPrice = price
			if c.gate != nil {
				c.gate.OnBracketOpened()
			}
			c.activate(b)
		} else if b.State == StateActive || b.State == StateBreakEven {
			c.resizeLegs(b)
		}
		return
	}

	l := c.legForID(b, orderID)
	if l == nil {
		return
	}
	switch l.role {
	case order.RoleStop:
		// A stop fill owns the realized sign even when a target fill in the
		// same batch got there first: back out the target's delta and book
		// the stop's instead.
		if b.closeReason == "target_filled" {
			observe.Emit(c.sink, observe.EventAnomaly, observe.SeverityWarn, map[string]any{
				"order":  orderID,
				"reason": "stop_fill_after_target_fill",
			})
			b.closeReason = "stop_filled"
			c.unrealize(b)
			c.realize(b, qty, price)
			return
		}
		if b.closeReason == "" {
			b.closeReason = "stop_filled"
		}
		c.realize(b, qty, price)
	case order.RoleTarget:
		// Stop fill takes precedence when both legs report fills in the
		// same batch; the late target fill is recorded but not realized.
		if b.closeReason == "stop_filled" {
			observe.Emit(c.sink, observe.EventAnomaly, observe.SeverityWarn, map[string]any{
				"order":  orderID,
				"reason": "target_fill_after_stop_fill",
			})
			return
		}
		if b.closeReason == "" {
			b.closeReason = "target_filled"
		}
		c.realize(b, qty, price)
	}
}

func (c *Controller) realize(b *Bracket, qty, price decimal.Decimal) {
	delta := decmath.FavorableMove(b.isLong(), b.entryPrice, price).Mul(qty)
	b.realized = b.realized.Add(delta)
	if c.gate != nil {
		c.gate.OnClosingFill(delta)
	}
}

// unrealize backs out everything this bracket has booked against the gate.
func (c *Controller) unrealize(b *Bracket) {
	if b.realized.Sign() == 0 {
		return
	}
	if c.gate != nil {
		c.gate.OnClosingFill(b.realized.Neg())
	}
	b.realized = decimal.Zero
}

// OnOrderStatus reacts to status snapshots already merged by the ledger.
func (c *Controller) OnOrderStatus(orderID string, status order.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.byOrderID[orderID]
	if !ok {
		return
	}
	b := c.brackets[key]
	if b == nil || b.State == StateClosed {
		return
	}
	b.updatedAt = c.nowFn()

	if orderID == b.entryID {
		if b.State == StateAwaitingEntryFill && (status == order.StatusRejected || status == order.StatusCancelled) {
			c.close(b, "entry_"+string(status))
		}
		return
	}

	l := c.legForID(b, orderID)
	if l == nil {
		return
	}
	prev := l.status
	l.status = status
	if status == order.StatusRejected && prev != order.StatusRejected {
		c.degradeLeg(b, l, "leg_rejected")
		return
	}
	if status.Terminal() {
		c.cancelSibling(b, l)
		if b.terminalLegs() {
			reason := b.closeReason
			if reason == "" {
				reason = "legs_terminal"
			}
			c.close(b, reason)
		}
	}
}

// OnPrice promotes the stop to break-even once the move in the position's
// favor reaches the configured tick distance. Idempotent: repeated
// crossings issue no further modify.
func (c *Controller) OnPrice(instrument string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.brackets {
		if b.Key.Instrument != instrument || b.State != StateActive || b.breakEvenDone {
			continue
		}
		move := decmath.FavorableMove(b.isLong(), b.entryPrice, price)
		if decmath.TicksBetween(move, c.cfg.TickSize) < c.cfg.BreakEvenTicks {
			continue
		}
		if b.stop == nil || b.stop.orderID == "" || b.stop.terminal() {
			continue
		}
		bePrice := decmath.BreakEvenStop(b.isLong(), b.entryPrice, c.cfg.TickSize, c.cfg.BreakEvenOffsetTicks)
		if err := c.gw.Modify(b.stop.orderID, order.Limit(bePrice), b.filledQty); err != nil {
			observe.Emit(c.sink, observe.EventAnomaly, observe.SeverityWarn, map[string]any{
				"order":  b.stop.orderID,
				"reason": "break_even_modify_failed",
				"err":    err.Error(),
			})
			continue
		}
		b.breakEvenDone = true
		from := b.State
		b.State = StateBreakEven
		b.updatedAt = c.nowFn()
		c.emitTransition(b, from, StateBreakEven)
		observe.Emit(c.sink, observe.EventBreakEven, observe.SeverityInfo, map[string]any{
			"instrument": instrument,
			"stop":       b.stop.orderID,
			"price":      bePrice.String(),
		})
	}
}

// OnPositionFlat closes the bracket when the derived position for its
// account/instrument returns to zero outside the bracket's own orders.
func (c *Controller) OnPositionFlat(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.brackets[key]
	if b == nil || b.State == StateClosed || b.State == StateAwaitingEntryFill {
		return
	}
	if c.book != nil && c.book.Position(key.AccountID, key.Instrument).Sign() != 0 {
		return
	}
	reason := b.closeReason
	if reason == "" {
		reason = "external_flat"
	}
	c.close(b, reason)
}

// OnWatchdogTick drives the degraded path: unacknowledged legs past the ack
// timeout are marked missing, and missing legs past their retry delay get
// their single corrective re-submit (or the escalation when that was
// already spent).
func (c *Controller) OnWatchdogTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFn()
	for _, b := range c.brackets {
		if b.State != StateActive && b.State != StateBreakEven && b.State != StateDegraded {
			continue
		}
		for _, l := range []*leg{b.stop, b.target} {
			if l == nil {
				continue
			}
			if !l.acked && !l.missing && !l.submittedAt.IsZero() && now.Sub(l.submittedAt) > c.cfg.AckTimeout {
				c.degradeLeg(b, l, "ack_timeout")
			}
			if l.missing && !l.retryAt.IsZero() && !now.Before(l.retryAt) {
				c.retryLeg(b, l)
			}
		}
	}
}

// activate submits the protective pair sized to the filled quantity and
// moves the bracket to ACTIVE (or DEGRADED if a submission fails).
func (c *Controller) activate(b *Bracket) {
	from := b.State
	b.State = StateActive
	b.stop = &leg{role: order.RoleStop}
	b.target = &leg{role: order.RoleTarget}
	c.submitLeg(b, b.stop)
	c.submitLeg(b, b.target)
	if b.State == StateActive {
		c.emitTransition(b, from, StateActive)
	}
}

func (c *Controller) legRequest(b *Bracket, l *leg) order.Request {
	exitSide := b.entrySide.Opposite()
	req := order.Request{
		AccountID:  b.Key.AccountID,
		Instrument: b.Key.Instrument,
		Side:       exitSide,
		Role:       l.role,
		Quantity:   b.filledQty,
	}
	switch l.role {
	case order.RoleStop:
		req.Kind = order.KindStopMarket
		req.Price = order.Limit(decmath.ProtectiveStop(b.isLong(), b.entryPrice, c.cfg.TickSize, c.cfg.StopTicks))
	case order.RoleTarget:
		req.Kind = order.KindLimit
		req.Price = order.Limit(decmath.TargetPrice(b.isLong(), b.entryPrice, c.cfg.TickSize, c.cfg.TargetTicks))
	}
	return req
}

func (c *Controller) submitLeg(b *Bracket, l *leg) {
	req := c.legRequest(b, l)
	var token order.Token
	var err error
	switch l.role {
	case order.RoleStop:
		token, err = c.gw.SubmitStop(req)
	default:
		token, err = c.gw.SubmitTarget(req)
	}
	now := c.nowFn()
	if err != nil {
		c.degradeLeg(b, l, "submit_failed: "+err.Error())
		return
	}
	l.token = token
	l.submittedAt = now
	l.missing = false
	c.legToken[token] = b.Key
	if c.book != nil {
		if lerr := c.book.RecordSubmission(token, req); lerr != nil {
			observe.Emit(c.sink, observe.EventAnomaly, observe.SeverityWarn, map[string]any{
				"token":  token.String(),
				"reason": "leg_submission_not_recorded",
				"err":    lerr.Error(),
			})
		}
	}
}

// degradeLeg marks a leg missing and schedules the single corrective retry.
// A filled position is never silently left unprotected.
func (c *Controller) degradeLeg(b *Bracket, l *leg, reason string) {
	l.missing = true
	l.acked = false
	l.retryAt = c.nowFn().Add(c.cfg.RetryDelay)
	if b.State != StateDegraded {
		from := b.State
		b.State = StateDegraded
		c.emitTransition(b, from, StateDegraded)
	}
	observe.Emit(c.sink, observe.EventBracketDegraded, observe.SeverityWarn, map[string]any{
		"account":    b.Key.AccountID,
		"instrument": b.Key.Instrument,
		"role":       l.role,
		"reason":     reason,
	})
}

func (c *Controller) retryLeg(b *Bracket, l *leg) {
	if l.retried {
		c.escalate(b, l)
		return
	}
	l.retried = true
	l.retryAt = time.Time{}
	c.submitLeg(b, l)
	if !l.missing {
		// Submission accepted for processing again; recover to ACTIVE (or
		// BREAK_EVEN) once the sibling is healthy too.
		if sibling := c.siblingOf(b, l); sibling == nil || !sibling.missing {
			from := b.State
			if b.breakEvenDone {
				b.State = StateBreakEven
			} else {
				b.State = StateActive
			}
			c.emitTransition(b, from, b.State)
		}
	}
}

func (c *Controller) siblingOf(b *Bracket, l *leg) *leg {
	if b.stop == l {
		return b.target
	}
	return b.stop
}

// escalate reports a bracket whose corrective retry also failed. The
// bracket stays DEGRADED and a human gets paged through the notify sink.
func (c *Controller) escalate(b *Bracket, l *leg) {
	if b.escalated {
		return
	}
	b.escalated = true
	observe.Emit(c.sink, observe.EventBracketEscalated, observe.SeverityEscalate, map[string]any{
		"account":    b.Key.AccountID,
		"instrument": b.Key.Instrument,
		"role":       l.role,
		"entry":      b.entryID,
		"qty":        b.filledQty.String(),
	})
}

// resizeLegs tops protective quantities up after additional entry fills.
func (c *Controller) resizeLegs(b *Bracket) {
	for _, l := range []*leg{b.stop, b.target} {
		if l == nil || l.orderID == "" || l.terminal() || l.missing {
			continue
		}
		req := c.legRequest(b, l)
		if err := c.gw.Modify(l.orderID, req.Price, b.filledQty); err != nil {
			observe.Emit(c.sink, observe.EventAnomaly, observe.SeverityWarn, map[string]any{
				"order":  l.orderID,
				"reason": "leg_resize_failed",
				"err":    err.Error(),
			})
		}
	}
}

// cancelSibling implements one-cancels-other: when either protective leg
// goes terminal the other is cancelled. Cancellation is attempted even when
// the sibling also reported a fill; the gateway is the source of truth.
func (c *Controller) cancelSibling(b *Bracket, done *leg) {
	sibling := c.siblingOf(b, done)
	if sibling == nil || sibling.orderID == "" || sibling.terminal() {
		return
	}
	if err := c.gw.Cancel(sibling.orderID); err != nil {
		observe.Emit(c.sink, observe.EventAnomaly, observe.SeverityWarn, map[string]any{
			"order":  sibling.orderID,
			"reason": "oco_cancel_failed",
			"err":    err.Error(),
		})
	}
}

func (c *Controller) close(b *Bracket, reason string) {
	for _, l := range []*leg{b.stop, b.target} {
		if l == nil || l.orderID == "" || l.terminal() {
			continue
		}
		if err := c.gw.Cancel(l.orderID); err != nil {
			observe.Emit(c.sink, observe.EventAnomaly, observe.SeverityWarn, map[string]any{
				"order":  l.orderID,
				"reason": "close_cancel_failed",
				"err":    err.Error(),
			})
		}
	}
	from := b.State
	b.State = StateClosed
	b.closeReason = reason
	b.updatedAt = c.nowFn()
	if b.filledQty.Sign() > 0 && c.gate != nil {
		c.gate.OnBracketClosed()
	}
	c.emitTransition(b, from, StateClosed)
}

func (c *Controller) emitTransition(b *Bracket, from, to State) {
	observe.Emit(c.sink, observe.EventBracketTransition, observe.SeverityInfo, map[string]any{
		"account":    b.Key.AccountID,
		"instrument": b.Key.Instrument,
		"from":       string(from),
		"to":         string(to),
		"reason":     b.closeReason,
	})
}

// Get returns the bracket snapshot for a key.
func (c *Controller) Get(key Key) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.brackets[key]
	if !ok {
		return Snapshot{}, false
	}
	return b.snapshot(), true
}

// Snapshots returns all brackets ordered by account/instrument.
func (c *Controller) Snapshots() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, 0, len(c.brackets))
	for _, b := range c.brackets {
		out = append(out, b.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

// SetNow overrides the clock; test hook.
func (c *Controller) SetNow(fn func() time.Time) { c.nowFn = fn }
