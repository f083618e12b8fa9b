package coord

// EventHandler processes one event type. Implementations run on a lane
// goroutine and must return control: failures are converted to the fault
// taxonomy by the lane loop, never thrown past it.
type EventHandler interface {
	Type() EventType
	Handle(ctx *HandlerContext, payload []byte, traceID string) error
}

// HandlerContext gives handlers access to coordinator internals without
// exposing the whole struct.
type HandlerContext struct {
	c *Coordinator
}

func NewHandlerContext(c *Coordinator) *HandlerContext { return &HandlerContext{c: c} }

func (h *HandlerContext) Coordinator() *Coordinator { return h.c }
