package coord

import "corral/internal/logger"

// HandlerRegistry maps event types to handlers. Registration happens before
// the lanes start; lookups afterwards are read-only, so no lock.
type HandlerRegistry struct {
	handlers map[EventType]EventHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[EventType]EventHandler)}
}

// Register adds a handler, replacing any previous one for the same type.
func (r *HandlerRegistry) Register(h EventHandler) {
	if h == nil {
		return
	}
	r.handlers[h.Type()] = h
}

func (r *HandlerRegistry) Get(t EventType) (EventHandler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// RegisterDefaultHandlers wires all built-in event handlers.
func (r *HandlerRegistry) RegisterDefaultHandlers() {
	r.Register(&AccountSnapshotHandler{})
	r.Register(&EntrySignalHandler{})
	r.Register(&OrderAcceptedHandler{})
	r.Register(&OrderStatusHandler{})
	r.Register(&ExecutionHandler{})
	r.Register(&PriceTickHandler{})
	r.Register(&DayRolloverHandler{})
	r.Register(&WatchdogTickHandler{})
	logger.Debugf("coord: registered %d event handlers", len(r.handlers))
}
