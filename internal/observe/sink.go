// Package observe defines the structured event sink every component reports
// through: state transitions, risk denials, protocol anomalies and
// degraded-bracket escalations. Implementations decide where events land.
package observe

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityEscalate Severity = "escalate"
)

// Well-known event types. Fields carry the per-event detail.
const (
	EventAccountSetChanged   = "account_set_changed"
	EventOrderSubmitted      = "order_submitted"
	EventOrderAccepted       = "order_accepted"
	EventOrderTransition     = "order_transition"
	EventRiskDenied          = "risk_denied"
	EventDayRollover         = "day_rollover"
	EventBracketTransition   = "bracket_transition"
	EventBreakEven           = "break_even_promoted"
	EventBracketDegraded     = "bracket_degraded"
	EventBracketEscalated    = "bracket_escalated"
	EventAnomaly             = "protocol_anomaly"
	EventLedgerInconsistency = "ledger_inconsistency"
)

type Event struct {
	Type     string
	Severity Severity
	Fields   map[string]any
	At       time.Time
}

// Sink receives structured events. Emit must never block the caller for
// long and must never panic; event handlers run on coordinator lanes.
type Sink interface {
	Emit(evt Event)
}

// Emit is a convenience wrapper that fills the timestamp and tolerates a
// nil sink, so call sites stay one-liners.
func Emit(s Sink, typ string, sev Severity, fields map[string]any) {
	if s == nil {
		return
	}
	s.Emit(Event{Type: typ, Severity: sev, Fields: fields, At: time.Now()})
}
