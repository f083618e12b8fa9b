// Package notify pushes human-facing alerts (degraded brackets, risk halts)
// out of process. Implementations are deliberately small so components can
// depend on the interface without pulling in transport details.
package notify

// TextNotifier delivers a plain text alert.
type TextNotifier interface {
	SendText(text string) error
}

// Noop satisfies TextNotifier and drops everything. Used when alerts are
// disabled in config.
type Noop struct{}

func (Noop) SendText(string) error { return nil }
