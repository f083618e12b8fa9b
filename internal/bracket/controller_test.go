package bracket

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corral/internal/account"
	"corral/internal/fault"
	"corral/internal/ledger"
	"corral/internal/observe"
	"corral/internal/order"
	"corral/internal/risk"
)

// fakeGateway records every call and can be scripted to fail submissions.
type fakeGateway struct {
	mu         sync.Mutex
	submits    []order.Request
	modifies   []string
	modPrices  []order.Price
	cancels    []string
	failStop   int
	failTarget int
}

func (g *fakeGateway) SubmitEntry(req order.Request) (order.Token, error) {
	return g.submit(req)
}

func (g *fakeGateway) SubmitStop(req order.Request) (order.Token, error) {
	g.mu.Lock()
	n := g.failStop
	if n > 0 {
		g.failStop--
	}
	g.mu.Unlock()
	if n > 0 {
		return "", errors.New("stop submit refused")
	}
	return g.submit(req)
}

func (g *fakeGateway) SubmitTarget(req order.Request) (order.Token, error) {
	g.mu.Lock()
	n := g.failTarget
	if n > 0 {
		g.failTarget--
	}
	g.mu.Unlock()
	if n > 0 {
		return "", errors.New("target submit refused")
	}
	return g.submit(req)
}

func (g *fakeGateway) submit(req order.Request) (order.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits = append(g.submits, req)
	return order.NewToken(req.Role), nil
}

func (g *fakeGateway) Modify(orderID string, newPrice order.Price, _ decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modifies = append(g.modifies, orderID)
	g.modPrices = append(g.modPrices, newPrice)
	return nil
}

func (g *fakeGateway) Cancel(orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, orderID)
	return nil
}

func (g *fakeGateway) submitted(role order.Role) []order.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []order.Request
	for _, r := range g.submits {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out
}

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []observe.Event
}

func (s *recordingSink) Emit(evt observe.Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
}

func (s *recordingSink) byType(typ string) []observe.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []observe.Event
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	gw   *fakeGateway
	sink *recordingSink
	book *ledger.Ledger
	gate *risk.Gate
	ctrl *Controller
	now  time.Time
}

type staticMarker struct{}

func (staticMarker) LoadDayMarker() (string, error) { return "", nil }
func (staticMarker) SaveDayMarker(string) error     { return nil }

func newHarness(t *testing.T) *harness {
	t.Helper()
	gw := &fakeGateway{}
	sink := &recordingSink{}
	book := ledger.New(account.NewRegistry(nil), nil)
	gate, err := risk.NewGate(risk.Limits{MaxOpenPositions: 10, DailyLossLimit: decimal.NewFromInt(100000)}, staticMarker{}, nil)
	require.NoError(t, err)
	cfg := Config{
		TickSize:             decimal.NewFromFloat(0.25),
		StopTicks:            20,
		TargetTicks:          40,
		BreakEvenTicks:       24,
		BreakEvenOffsetTicks: 1,
		AckTimeout:           5 * time.Second,
		RetryDelay:           2 * time.Second,
	}
	h := &harness{
		gw:   gw,
		sink: sink,
		book: book,
		gate: gate,
		now:  time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC),
	}
	h.ctrl = NewController(cfg, gw, book, gate, sink)
	h.ctrl.SetNow(func() time.Time { return h.now })
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// openBracket walks a long entry through submit → accept → full fill and
// acknowledges both protective legs.
func (h *harness) openBracket(t *testing.T, qty int64, entryPx float64) Key {
	t.Helper()
	req := order.Request{
		AccountID:  "ACC1",
		Instrument: "ESZ5",
		Side:       order.SideBuy,
		Kind:       order.KindMarket,
		Role:       order.RoleEntry,
		Price:      order.MarketPrice(),
		Quantity:   decimal.NewFromInt(qty),
	}
	tok := order.NewToken(order.RoleEntry)
	require.NoError(t, h.book.RecordSubmission(tok, req))
	require.NoError(t, h.ctrl.TrackEntry(tok, req))
	require.NoError(t, h.book.OnAccepted(tok, "E-1"))
	h.ctrl.OnAccepted(tok, "E-1")

	h.ctrl.OnExecution("E-1", decimal.NewFromInt(qty), decimal.NewFromFloat(entryPx))
	h.ackLegs(t)
	return Key{AccountID: "ACC1", Instrument: "ESZ5"}
}

// ackLegs simulates the gateway accepting whatever protective legs were just
// submitted.
func (h *harness) ackLegs(t *testing.T) {
	t.Helper()
	key := Key{AccountID: "ACC1", Instrument: "ESZ5"}
	snap, ok := h.ctrl.Get(key)
	require.True(t, ok)
	if !snap.StopToken.Empty() && snap.StopOrderID == "" {
		h.ctrl.OnAccepted(snap.StopToken, "S-1")
	}
	if !snap.TargetToken.Empty() && snap.TargetOrderID == "" {
		h.ctrl.OnAccepted(snap.TargetToken, "T-1")
	}
}

func TestController_EntryFillActivatesBracket(t *testing.T) {
	h := newHarness(t)
	key := h.openBracket(t, 2, 5000)

	snap, ok := h.ctrl.Get(key)
	require.True(t, ok)
	assert.Equal(t, StateActive, snap.State)
	assert.True(t, snap.FilledQty.Equal(decimal.NewFromInt(2)))

	stops := h.gw.submitted(order.RoleStop)
	targets := h.gw.submitted(order.RoleTarget)
	require.Len(t, stops, 1)
	require.Len(t, targets, 1)

	// Long entry at 5000, tick 0.25: stop 20 ticks below, target 40 above.
	assert.Equal(t, order.SideSell, stops[0].Side)
	assert.True(t, stops[0].Price.Value().Equal(decimal.NewFromInt(4995)))
	assert.Equal(t, order.KindStopMarket, stops[0].Kind)
	assert.True(t, targets[0].Price.Value().Equal(decimal.NewFromInt(5010)))
	assert.Equal(t, order.KindLimit, targets[0].Kind)
	assert.True(t, stops[0].Quantity.Equal(decimal.NewFromInt(2)))
}

func TestController_DuplicateOpenBracketRejected(t *testing.T) {
	h := newHarness(t)
	h.openBracket(t, 1, 5000)

	req := order.Request{
		AccountID:  "ACC1",
		Instrument: "ESZ5",
		Side:       order.SideBuy,
		Kind:       order.KindMarket,
		Role:       order.RoleEntry,
		Price:      order.MarketPrice(),
		Quantity:   decimal.NewFromInt(1),
	}
	err := h.ctrl.TrackEntry(order.NewToken(order.RoleEntry), req)
	require.Error(t, err)
	assert.Equal(t, fault.KindConfigurationRejection, fault.KindOf(err))
}

func TestController_TargetFillCancelsStop(t *testing.T) {
	h := newHarness(t)
	key := h.openBracket(t, 2, 5000)

	h.ctrl.OnExecution("T-1", decimal.NewFromInt(2), decimal.NewFromInt(5010))
	h.ctrl.OnOrderStatus("T-1", order.StatusFilled)

	assert.Contains(t, h.gw.cancels, "S-1")

	h.ctrl.OnOrderStatus("S-1", order.StatusCancelled)
	snap, _ := h.ctrl.Get(key)
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, "target_filled", snap.CloseReason)

	// 40 ticks * 0.25 * qty 2 = +20 realized.
	assert.True(t, h.gate.Snapshot().RealizedPnL.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 0, h.gate.Snapshot().OpenPositions)
}

func TestController_StopFillCancelsTarget(t *testing.T) {
	h := newHarness(t)
	key := h.openBracket(t, 1, 5000)

	h.ctrl.OnExecution("S-1", decimal.NewFromInt(1), decimal.NewFromInt(4995))
	h.ctrl.OnOrderStatus("S-1", order.StatusFilled)
	assert.Contains(t, h.gw.cancels, "T-1")

	h.ctrl.OnOrderStatus("T-1", order.StatusCancelled)
	snap, _ := h.ctrl.Get(key)
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, "stop_filled", snap.CloseReason)
	assert.True(t, h.gate.Snapshot().RealizedPnL.Equal(decimal.NewFromInt(-5)))
}

func TestController_StopFillPrecedenceOverLateTargetFill(t *testing.T) {
	h := newHarness(t)
	h.openBracket(t, 1, 5000)

	h.ctrl.OnExecution("S-1", decimal.NewFromInt(1), decimal.NewFromInt(4995))
	h.ctrl.OnExecution("T-1", decimal.NewFromInt(1), decimal.NewFromInt(5010))

	// Only the stop fill is realized; the late target fill is an anomaly.
	assert.True(t, h.gate.Snapshot().RealizedPnL.Equal(decimal.NewFromInt(-5)))
	assert.NotEmpty(t, h.sink.byType(observe.EventAnomaly))
}

func TestController_StopFillPrecedenceWhenTargetFillArrivesFirst(t *testing.T) {
	h := newHarness(t)
	key := h.openBracket(t, 1, 5000)

	h.ctrl.OnExecution("T-1", decimal.NewFromInt(1), decimal.NewFromInt(5010))
	h.ctrl.OnExecution("S-1", decimal.NewFromInt(1), decimal.NewFromInt(4995))

	// The stop fill owns the realized sign regardless of arrival order: the
	// target's +10 is backed out and the stop's -5 booked instead.
	assert.True(t, h.gate.Snapshot().RealizedPnL.Equal(decimal.NewFromInt(-5)),
		"realized=%s", h.gate.Snapshot().RealizedPnL)
	assert.NotEmpty(t, h.sink.byType(observe.EventAnomaly))

	snap, ok := h.ctrl.Get(key)
	require.True(t, ok)
	assert.Equal(t, "stop_filled", snap.CloseReason)
}

func TestController_BreakEvenPromotion(t *testing.T) {
	h := newHarness(t)
	key := h.openBracket(t, 1, 5000)

	// 23 ticks favorable: not yet.
	h.ctrl.OnPrice("ESZ5", decimal.NewFromFloat(5005.75))
	snap, _ := h.ctrl.Get(key)
	assert.Equal(t, StateActive, snap.State)
	assert.Empty(t, h.gw.modifies)

	// 24 ticks favorable: promote.
	h.ctrl.OnPrice("ESZ5", decimal.NewFromInt(5006))
	snap, _ = h.ctrl.Get(key)
	assert.Equal(t, StateBreakEven, snap.State)
	require.Len(t, h.gw.modifies, 1)
	assert.Equal(t, "S-1", h.gw.modifies[0])
	// Stop moved to entry + 1 offset tick.
	assert.True(t, h.gw.modPrices[0].Value().Equal(decimal.NewFromFloat(5000.25)))

	// Repeated crossings are idempotent.
	h.ctrl.OnPrice("ESZ5", decimal.NewFromInt(5007))
	assert.Len(t, h.gw.modifies, 1)
}

func TestController_EntryRejectedBeforeFillCloses(t *testing.T) {
	h := newHarness(t)
	req := order.Request{
		AccountID:  "ACC1",
		Instrument: "ESZ5",
		Side:       order.SideBuy,
		Kind:       order.KindMarket,
		Role:       order.RoleEntry,
		Price:      order.MarketPrice(),
		Quantity:   decimal.NewFromInt(1),
	}
	tok := order.NewToken(order.RoleEntry)
	require.NoError(t, h.ctrl.TrackEntry(tok, req))
	h.ctrl.OnAccepted(tok, "E-1")
	h.ctrl.OnOrderStatus("E-1", order.StatusRejected)

	snap, _ := h.ctrl.Get(Key{AccountID: "ACC1", Instrument: "ESZ5"})
	assert.Equal(t, StateClosed, snap.State)
	assert.Empty(t, h.gw.submitted(order.RoleStop))
	assert.Equal(t, 0, h.gate.Snapshot().OpenPositions)
}

func TestController_LegSubmitFailureDegradesThenRetries(t *testing.T) {
	h := newHarness(t)
	h.gw.failStop = 1

	key := h.openBracket(t, 1, 5000)
	snap, _ := h.ctrl.Get(key)
	assert.Equal(t, StateDegraded, snap.State)
	assert.NotEmpty(t, h.sink.byType(observe.EventBracketDegraded))

	// Retry due after RetryDelay; the gateway accepts this time.
	h.advance(3 * time.Second)
	h.ctrl.OnWatchdogTick()

	snap, _ = h.ctrl.Get(key)
	assert.Equal(t, StateActive, snap.State)
	assert.Len(t, h.gw.submitted(order.RoleStop), 1)
	assert.Empty(t, h.sink.byType(observe.EventBracketEscalated))
}

func TestController_RetryFailureEscalates(t *testing.T) {
	h := newHarness(t)
	h.gw.failStop = 2

	key := h.openBracket(t, 1, 5000)

	// First retry fails too; its own retryAt is rescheduled.
	h.advance(3 * time.Second)
	h.ctrl.OnWatchdogTick()
	snap, _ := h.ctrl.Get(key)
	assert.Equal(t, StateDegraded, snap.State)

	// Second due retry finds the single corrective attempt spent.
	h.advance(3 * time.Second)
	h.ctrl.OnWatchdogTick()

	snap, _ = h.ctrl.Get(key)
	assert.Equal(t, StateDegraded, snap.State)
	assert.True(t, snap.Escalated)
	require.Len(t, h.sink.byType(observe.EventBracketEscalated), 1)
	assert.Equal(t, observe.SeverityEscalate, h.sink.byType(observe.EventBracketEscalated)[0].Severity)

	// Escalation fires once even if the watchdog keeps ticking.
	h.advance(3 * time.Second)
	h.ctrl.OnWatchdogTick()
	assert.Len(t, h.sink.byType(observe.EventBracketEscalated), 1)
}

func TestController_AckTimeoutDegradesLeg(t *testing.T) {
	h := newHarness(t)

	req := order.Request{
		AccountID:  "ACC1",
		Instrument: "ESZ5",
		Side:       order.SideBuy,
		Kind:       order.KindMarket,
		Role:       order.RoleEntry,
		Price:      order.MarketPrice(),
		Quantity:   decimal.NewFromInt(1),
	}
	tok := order.NewToken(order.RoleEntry)
	require.NoError(t, h.book.RecordSubmission(tok, req))
	require.NoError(t, h.ctrl.TrackEntry(tok, req))
	require.NoError(t, h.book.OnAccepted(tok, "E-1"))
	h.ctrl.OnAccepted(tok, "E-1")
	h.ctrl.OnExecution("E-1", decimal.NewFromInt(1), decimal.NewFromInt(5000))
	// Legs submitted but never acknowledged.

	h.advance(6 * time.Second)
	h.ctrl.OnWatchdogTick()

	snap, _ := h.ctrl.Get(Key{AccountID: "ACC1", Instrument: "ESZ5"})
	assert.Equal(t, StateDegraded, snap.State)
	assert.GreaterOrEqual(t, len(h.sink.byType(observe.EventBracketDegraded)), 2)
}

func TestController_ExternalFlatClosesBracket(t *testing.T) {
	h := newHarness(t)
	key := h.openBracket(t, 2, 5000)

	// External sell flattens the position outside the bracket's legs.
	flat := order.Request{
		AccountID:  "ACC1",
		Instrument: "ESZ5",
		Side:       order.SideSell,
		Kind:       order.KindMarket,
		Role:       order.RoleEntry,
		Price:      order.MarketPrice(),
		Quantity:   decimal.NewFromInt(2),
	}
	ftok := order.NewToken(order.RoleEntry)
	require.NoError(t, h.book.RecordSubmission(ftok, flat))
	require.NoError(t, h.book.OnAccepted(ftok, "X-1"))
	require.NoError(t, h.book.OnExecution("E-1", decimal.NewFromInt(2), decimal.NewFromInt(5000)))
	require.NoError(t, h.book.OnExecution("X-1", decimal.NewFromInt(2), decimal.NewFromInt(5002)))
	require.True(t, h.book.Position("ACC1", "ESZ5").IsZero())

	h.ctrl.OnPositionFlat(key)

	snap, _ := h.ctrl.Get(key)
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, "external_flat", snap.CloseReason)
	// Both live legs were cancelled on close.
	assert.Contains(t, h.gw.cancels, "S-1")
	assert.Contains(t, h.gw.cancels, "T-1")
}

func TestController_AdditionalEntryFillResizesLegs(t *testing.T) {
	h := newHarness(t)
	h.openBracket(t, 1, 5000)

	h.ctrl.OnExecution("E-1", decimal.NewFromInt(1), decimal.NewFromInt(5001))

	// Both legs get a modify with the topped-up quantity.
	assert.Contains(t, h.gw.modifies, "S-1")
	assert.Contains(t, h.gw.modifies, "T-1")
}

func TestController_ShortBracketPrices(t *testing.T) {
	h := newHarness(t)
	req := order.Request{
		AccountID:  "ACC1",
		Instrument: "ESZ5",
		Side:       order.SideSell,
		Kind:       order.KindMarket,
		Role:       order.RoleEntry,
		Price:      order.MarketPrice(),
		Quantity:   decimal.NewFromInt(1),
	}
	tok := order.NewToken(order.RoleEntry)
	require.NoError(t, h.ctrl.TrackEntry(tok, req))
	h.ctrl.OnAccepted(tok, "E-1")
	h.ctrl.OnExecution("E-1", decimal.NewFromInt(1), decimal.NewFromInt(5000))

	stops := h.gw.submitted(order.RoleStop)
	targets := h.gw.submitted(order.RoleTarget)
	require.Len(t, stops, 1)
	require.Len(t, targets, 1)
	// Short: stop above entry, target below, both on the buy side.
	assert.Equal(t, order.SideBuy, stops[0].Side)
	assert.True(t, stops[0].Price.Value().Equal(decimal.NewFromInt(5005)))
	assert.True(t, targets[0].Price.Value().Equal(decimal.NewFromInt(4990)))
}
