package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"time"

	"corral/internal/account"
	"corral/internal/bracket"
	"corral/internal/fault"
	"corral/internal/gateway"
	"corral/internal/ledger"
	"corral/internal/logger"
	"corral/internal/observe"
	"corral/internal/order"
	"corral/internal/risk"
)

const laneBuffer = 256

// Persister is the slice of the store the coordinator writes through after
// state changes. Nil disables persistence (tests).
type Persister interface {
	SaveOrder(o order.Order) error
	AppendFill(orderID string, f order.Fill) error
	SaveBracket(s bracket.Snapshot) error
	AppendEvent(evt EventEnvelope) error
}

// Coordinator dispatches feed events onto per-bracket lanes. Events for one
// bracket key always land on the same lane and are processed in arrival
// order; events for different brackets proceed concurrently.
type Coordinator struct {
	registry *HandlerRegistry
	lanes    []chan EventEnvelope
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	accounts *account.Registry
	book     *ledger.Ledger
	gate     *risk.Gate
	brackets *bracket.Controller
	gw       gateway.Gateway
	sink     observe.Sink
	persist  Persister
}

// Deps bundles construction dependencies.
type Deps struct {
	Accounts *account.Registry
	Ledger   *ledger.Ledger
	Gate     *risk.Gate
	Brackets *bracket.Controller
	Gateway  gateway.Gateway
	Sink     observe.Sink
	Persist  Persister
	Lanes    int
}

func New(d Deps) *Coordinator {
	n := d.Lanes
	if n <= 0 {
		n = 8
	}
	reg := NewHandlerRegistry()
	reg.RegisterDefaultHandlers()
	c := &Coordinator{
		registry: reg,
		lanes:    make([]chan EventEnvelope, n),
		stopCh:   make(chan struct{}),
		accounts: d.Accounts,
		book:     d.Ledger,
		gate:     d.Gate,
		brackets: d.Brackets,
		gw:       d.Gateway,
		sink:     d.Sink,
		persist:  d.Persist,
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan EventEnvelope, laneBuffer)
	}
	return c
}

func (c *Coordinator) Start() {
	for i := range c.lanes {
		c.wg.Add(1)
		go c.runLane(i)
	}
	logger.Infof("coord: started %d lanes", len(c.lanes))
}

func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Dispatch routes an envelope to its lane. It blocks when the lane buffer
// is full; feed sources are the only producers, so backpressure propagates
// to them rather than dropping events.
func (c *Coordinator) Dispatch(evt EventEnvelope) error {
	lane := c.laneFor(evt)
	select {
	case c.lanes[lane] <- evt:
		return nil
	case <-c.stopCh:
		return fmt.Errorf("coord: coordinator is stopped")
	}
}

// DispatchSync waits for the handler outcome; used by tests and recovery.
func (c *Coordinator) DispatchSync(ctx context.Context, evt EventEnvelope) error {
	if evt.ReplyCh == nil {
		evt.ReplyCh = make(chan error, 1)
	}
	if err := c.Dispatch(evt); err != nil {
		return err
	}
	select {
	case err := <-evt.ReplyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return fmt.Errorf("coord: coordinator stopped during sync dispatch")
	}
}

// laneFor keeps per-order and per-bracket ordering: everything addressing
// one bracket key hashes to the same lane. Control events (account
// snapshots, day rollover, watchdog) run on lane 0.
func (c *Coordinator) laneFor(evt EventEnvelope) int {
	switch evt.Type {
	case EvtEntrySignal:
		var p EntrySignalPayload
		if json.Unmarshal(evt.Payload, &p) == nil {
			return c.hashLane(p.Request.AccountID + "/" + p.Request.Instrument)
		}
	case EvtOrderAccepted:
		var p OrderAcceptedPayload
		if json.Unmarshal(evt.Payload, &p) == nil {
			if key, ok := c.brackets.KeyForToken(p.Token); ok {
				return c.hashLane(key.AccountID + "/" + key.Instrument)
			}
			return c.hashLane(p.Token.String())
		}
	case EvtOrderStatus:
		var p OrderStatusPayload
		if json.Unmarshal(evt.Payload, &p) == nil {
			return c.laneForOrder(p.OrderID)
		}
	case EvtExecution:
		var p ExecutionPayload
		if json.Unmarshal(evt.Payload, &p) == nil {
			return c.laneForOrder(p.OrderID)
		}
	case EvtPriceTick:
		var p PriceTickPayload
		if json.Unmarshal(evt.Payload, &p) == nil {
			return c.hashLane(p.Instrument)
		}
	}
	return 0
}

func (c *Coordinator) laneForOrder(orderID string) int {
	if key, ok := c.brackets.KeyForOrder(orderID); ok {
		return c.hashLane(key.AccountID + "/" + key.Instrument)
	}
	return c.hashLane(orderID)
}

func (c *Coordinator) hashLane(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(c.lanes)))
}

func (c *Coordinator) runLane(idx int) {
	defer c.wg.Done()
	for {
		select {
		case evt := <-c.lanes[idx]:
			c.handleEvent(idx, evt)
		case <-c.stopCh:
			return
		}
	}
}

// handleEvent never lets a failure escape the lane: panics are recovered,
// errors are classified against the fault taxonomy and routed to the sink.
func (c *Coordinator) handleEvent(lane int, evt EventEnvelope) {
	var err error
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("coord: lane %d panic handling %s: %v", lane, evt.Type, r)
			debug.PrintStack()
			err = fmt.Errorf("panic: %v", r)
		}
		if evt.ReplyCh != nil {
			evt.ReplyCh <- err
			close(evt.ReplyCh)
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("coord: slow event %s took %v", evt.Type, dur)
		}
	}()

	if c.persist != nil && shouldJournal(evt.Type) {
		if jerr := c.persist.AppendEvent(evt); jerr != nil {
			logger.Errorf("coord: journal append failed for %s: %v", evt.Type, jerr)
		}
	}

	handler, ok := c.registry.Get(evt.Type)
	if !ok {
		logger.Warnf("coord: no handler registered for %s", evt.Type)
		return
	}

	err = handler.Handle(NewHandlerContext(c), evt.Payload, evt.ID)
	if err != nil {
		c.report(evt, err)
		// Classified faults are absorbed here; only unclassified handler
		// errors stay visible to synchronous callers.
		if fault.KindOf(err) != "" {
			err = nil
		}
	}
}

func (c *Coordinator) report(evt EventEnvelope, err error) {
	kind := fault.KindOf(err)
	sev := observe.SeverityWarn
	typ := observe.EventAnomaly
	switch kind {
	case fault.KindLedgerInconsistency:
		typ = observe.EventLedgerInconsistency
	case fault.KindConfigurationRejection:
		sev = observe.SeverityInfo
	case "":
		logger.Errorf("coord: handler for %s failed: %v", evt.Type, err)
		return
	}
	observe.Emit(c.sink, typ, sev, map[string]any{
		"event": string(evt.Type),
		"kind":  string(kind),
		"err":   err.Error(),
	})
}

// shouldJournal marks the fact events worth persisting for audit and
// recovery. Price ticks and watchdog ticks are noise.
func shouldJournal(t EventType) bool {
	switch t {
	case EvtEntrySignal, EvtOrderAccepted, EvtOrderStatus, EvtExecution, EvtDayRollover, EvtAccountSnapshot:
		return true
	}
	return false
}

func (c *Coordinator) persistOrderByID(orderID string) {
	if c.persist == nil {
		return
	}
	if o, ok := c.book.Get(orderID); ok {
		if err := c.persist.SaveOrder(*o); err != nil {
			logger.Errorf("coord: persisting order %s failed: %v", orderID, err)
		}
	}
}

func (c *Coordinator) persistOrderByToken(token order.Token) {
	if c.persist == nil {
		return
	}
	if o, ok := c.book.GetByToken(token); ok {
		if err := c.persist.SaveOrder(*o); err != nil {
			logger.Errorf("coord: persisting submission %s failed: %v", token, err)
		}
	}
}

func (c *Coordinator) persistBracket(key bracket.Key) {
	if c.persist == nil {
		return
	}
	if snap, ok := c.brackets.Get(key); ok {
		if err := c.persist.SaveBracket(snap); err != nil {
			logger.Errorf("coord: persisting bracket %s/%s failed: %v", key.AccountID, key.Instrument, err)
		}
	}
}
