package bracket

import "corral/internal/order"

// Restore rebuilds an open bracket from a persisted snapshot during startup
// recovery. Leg statuses come from the ledger's restored order records so
// the bracket does not resubmit legs that already exist at the gateway.
func (c *Controller) Restore(s Snapshot, stopStatus, targetStatus order.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Key{AccountID: s.AccountID, Instrument: s.Instrument}
	b := &Bracket{
		Key:           key,
		State:         s.State,
		entryToken:    s.EntryToken,
		entryID:       s.EntryOrderID,
		entrySide:     s.Side,
		entryPrice:    s.EntryPrice,
		filledQty:     s.FilledQty,
		breakEvenDone: s.BreakEven,
		escalated:     s.Escalated,
		closeReason:   s.CloseReason,
		createdAt:     s.CreatedAt,
		updatedAt:     s.UpdatedAt,
	}
	if s.StopOrderID != "" || !s.StopToken.Empty() {
		b.stop = &leg{
			role:    order.RoleStop,
			token:   s.StopToken,
			orderID: s.StopOrderID,
			status:  stopStatus,
			acked:   s.StopOrderID != "",
		}
	}
	if s.TargetOrderID != "" || !s.TargetToken.Empty() {
		b.target = &leg{
			role:    order.RoleTarget,
			token:   s.TargetToken,
			orderID: s.TargetOrderID,
			status:  targetStatus,
			acked:   s.TargetOrderID != "",
		}
	}
	c.brackets[key] = b
	if !b.entryToken.Empty() {
		c.entryToken[b.entryToken] = key
	}
	if b.entryID != "" {
		c.byOrderID[b.entryID] = key
	}
	for _, l := range []*leg{b.stop, b.target} {
		if l == nil {
			continue
		}
		if !l.token.Empty() {
			c.legToken[l.token] = key
		}
		if l.orderID != "" {
			c.byOrderID[l.orderID] = key
		}
	}
	if b.filledQty.Sign() > 0 && b.State != StateClosed && c.gate != nil {
		c.gate.OnBracketOpened()
	}
}
