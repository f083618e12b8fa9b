package observe

import (
	"fmt"

	"corral/internal/logger"
	"corral/internal/notify"
)

// NotifySink forwards escalation-severity events to a TextNotifier. Delivery
// happens on a separate goroutine so a slow transport never stalls a
// coordinator lane.
type NotifySink struct {
	notifier notify.TextNotifier
}

func NewNotifySink(n notify.TextNotifier) *NotifySink {
	if n == nil {
		n = notify.Noop{}
	}
	return &NotifySink{notifier: n}
}

func (s *NotifySink) Emit(evt Event) {
	if evt.Severity != SeverityEscalate {
		return
	}
	text := fmt.Sprintf("⚠️ *%s*\n%s", evt.Type, formatFields(evt.Fields))
	go func() {
		if err := s.notifier.SendText(text); err != nil {
			logger.Warnf("notify sink: delivery failed for %s: %v", evt.Type, err)
		}
	}()
}
