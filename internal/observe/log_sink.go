package observe

import (
	"fmt"
	"sort"
	"strings"

	"corral/internal/logger"
)

// LogSink writes events through the shared leveled logger.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Emit(evt Event) {
	line := fmt.Sprintf("observe: %s %s", evt.Type, formatFields(evt.Fields))
	switch evt.Severity {
	case SeverityWarn:
		logger.Warnf("%s", line)
	case SeverityEscalate:
		logger.Errorf("%s", line)
	default:
		logger.Infof("%s", line)
	}
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

// FanOut forwards every event to each wrapped sink.
type FanOut struct {
	sinks []Sink
}

func NewFanOut(sinks ...Sink) *FanOut {
	out := &FanOut{}
	for _, s := range sinks {
		if s != nil {
			out.sinks = append(out.sinks, s)
		}
	}
	return out
}

func (f *FanOut) Emit(evt Event) {
	for _, s := range f.sinks {
		s.Emit(evt)
	}
}
