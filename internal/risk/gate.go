// Package risk enforces position and loss limits before the coordinator
// allows a new entry. Realized P&L is computed here from closing fills, not
// taken from any gateway-reported balance: the gate must not depend on the
// counterparty for its own enforcement.
package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"corral/internal/observe"
	"corral/internal/order"
)

// DenyReason enumerates why an entry was refused.
type DenyReason string

const (
	DenyMaxPositions DenyReason = "MaxPositionsReached"
	DenyDailyLoss    DenyReason = "DailyLossLimitHit"
	DenyRuleRejected DenyReason = "RuleRejected"
)

// Decision is the outcome of Approve. A denial is a normal answer, not an
// error.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Detail  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason DenyReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// Rule is an instrument-specific check plugged into the gate. Returning a
// non-nil error denies the entry with DenyRuleRejected.
type Rule interface {
	Name() string
	Check(req order.Request) error
}

// MarkerStore persists the trading-day boundary so a duplicate rollover
// event after a restart stays a no-op. Implemented by internal/store.
type MarkerStore interface {
	LoadDayMarker() (string, error)
	SaveDayMarker(day string) error
}

// Limits are the live-reloadable risk knobs.
type Limits struct {
	MaxOpenPositions int
	DailyLossLimit   decimal.Decimal
}

// Gate tracks daily realized P&L and the open position count and answers
// Approve for proposed entries.
type Gate struct {
	mu       sync.Mutex
	limits   Limits
	rules    []Rule
	store    MarkerStore
	sink     observe.Sink
	realized decimal.Decimal
	open     int
	day      string
}

// NewGate loads the persisted day marker; failure here is the one condition
// the coordinator treats as fatal, so the error must propagate.
func NewGate(limits Limits, store MarkerStore, sink observe.Sink, rules ...Rule) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("risk: marker store is required")
	}
	day, err := store.LoadDayMarker()
	if err != nil {
		return nil, fmt.Errorf("risk: loading day marker: %w", err)
	}
	return &Gate{limits: limits, rules: rules, store: store, sink: sink, day: day}, nil
}

// Approve runs the checks in order: open position count, daily loss limit,
// then the pluggable instrument rules.
func (g *Gate) Approve(proposed order.Request) Decision {
	g.mu.Lock()
	limits := g.limits
	realized := g.realized
	open := g.open
	g.mu.Unlock()

	if limits.MaxOpenPositions > 0 && open >= limits.MaxOpenPositions {
		d := deny(DenyMaxPositions, fmt.Sprintf("open=%d max=%d", open, limits.MaxOpenPositions))
		g.emitDenial(proposed, d)
		return d
	}
	if limits.DailyLossLimit.Sign() > 0 && realized.LessThanOrEqual(limits.DailyLossLimit.Neg()) {
		d := deny(DenyDailyLoss, fmt.Sprintf("realized=%s limit=%s", realized, limits.DailyLossLimit))
		g.emitDenial(proposed, d)
		return d
	}
	for _, rule := range g.rules {
		if err := rule.Check(proposed); err != nil {
			d := deny(DenyRuleRejected, fmt.Sprintf("%s: %v", rule.Name(), err))
			g.emitDenial(proposed, d)
			return d
		}
	}
	return allow()
}

func (g *Gate) emitDenial(req order.Request, d Decision) {
	observe.Emit(g.sink, observe.EventRiskDenied, observe.SeverityWarn, map[string]any{
		"account":    req.AccountID,
		"instrument": req.Instrument,
		"reason":     string(d.Reason),
		"detail":     d.Detail,
	})
}

// OnClosingFill folds a realized P&L delta from a closing fill into the
// daily total.
func (g *Gate) OnClosingFill(pnlDelta decimal.Decimal) {
	g.mu.Lock()
	g.realized = g.realized.Add(pnlDelta)
	g.mu.Unlock()
}

// OnDayRollover resets realized P&L for a new trading day. Duplicate
// invocations for the same day are no-ops, detected via the stored marker.
func (g *Gate) OnDayRollover(day string) error {
	g.mu.Lock()
	if day == g.day {
		g.mu.Unlock()
		return nil
	}
	g.day = day
	g.realized = decimal.Zero
	g.mu.Unlock()

	if err := g.store.SaveDayMarker(day); err != nil {
		return fmt.Errorf("risk: persisting day marker %q: %w", day, err)
	}
	observe.Emit(g.sink, observe.EventDayRollover, observe.SeverityInfo, map[string]any{"day": day})
	return nil
}

// OnBracketOpened / OnBracketClosed keep the open position count current.
func (g *Gate) OnBracketOpened() {
	g.mu.Lock()
	g.open++
	g.mu.Unlock()
}

func (g *Gate) OnBracketClosed() {
	g.mu.Lock()
	if g.open > 0 {
		g.open--
	}
	g.mu.Unlock()
}

// SetLimits swaps the live limits; called by the config watcher.
func (g *Gate) SetLimits(limits Limits) {
	g.mu.Lock()
	g.limits = limits
	g.mu.Unlock()
}

// Snapshot returns the current risk state for the status API.
type Snapshot struct {
	Day           string          `json:"day"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	OpenPositions int             `json:"open_positions"`
	Limits        struct {
		MaxOpenPositions int             `json:"max_open_positions"`
		DailyLossLimit   decimal.Decimal `json:"daily_loss_limit"`
	} `json:"limits"`
}

func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	var s Snapshot
	s.Day = g.day
	s.RealizedPnL = g.realized
	s.OpenPositions = g.open
	s.Limits.MaxOpenPositions = g.limits.MaxOpenPositions
	s.Limits.DailyLossLimit = g.limits.DailyLossLimit
	return s
}
