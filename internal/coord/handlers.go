package coord

import (
	"encoding/json"
	"fmt"

	"corral/internal/bracket"
	"corral/internal/logger"
	"corral/internal/order"
)

type AccountSnapshotHandler struct{}

func (h *AccountSnapshotHandler) Type() EventType { return EvtAccountSnapshot }

func (h *AccountSnapshotHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	var p AccountSnapshotPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload for account_snapshot: %w", err)
	}
	ctx.Coordinator().accounts.UpsertAccounts(p.Accounts)
	return nil
}

type EntrySignalHandler struct{}

func (h *EntrySignalHandler) Type() EventType { return EvtEntrySignal }

// Handle runs the risk gate and, when allowed, submits the entry through
// the gateway. A denial is a valid outcome, not an error: the gate has
// already reported it to the sink.
func (h *EntrySignalHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	c := ctx.Coordinator()
	var p EntrySignalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload for entry_signal: %w", err)
	}
	req := p.Request
	req.Role = order.RoleEntry
	if err := req.Validate(); err != nil {
		return fmt.Errorf("entry signal rejected: %w", err)
	}

	decision := c.gate.Approve(req)
	if !decision.Allowed {
		logger.Infof("coord: entry for %s/%s denied: %s (%s)", req.AccountID, req.Instrument, decision.Reason, decision.Detail)
		return nil
	}

	token, err := c.gw.SubmitEntry(req)
	if err != nil {
		return fmt.Errorf("entry submission for %s/%s failed: %w", req.AccountID, req.Instrument, err)
	}
	if err := c.book.RecordSubmission(token, req); err != nil {
		return err
	}
	if err := c.brackets.TrackEntry(token, req); err != nil {
		return err
	}
	c.persistOrderByToken(token)
	c.persistBracket(bracket.Key{AccountID: req.AccountID, Instrument: req.Instrument})
	return nil
}

type OrderAcceptedHandler struct{}

func (h *OrderAcceptedHandler) Type() EventType { return EvtOrderAccepted }

func (h *OrderAcceptedHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	c := ctx.Coordinator()
	var p OrderAcceptedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload for order_accepted: %w", err)
	}
	if err := c.book.OnAccepted(p.Token, p.OrderID); err != nil {
		return err
	}
	c.brackets.OnAccepted(p.Token, p.OrderID)
	c.persistOrderByID(p.OrderID)
	if key, ok := c.brackets.KeyForOrder(p.OrderID); ok {
		c.persistBracket(key)
	}
	return nil
}

type OrderStatusHandler struct{}

func (h *OrderStatusHandler) Type() EventType { return EvtOrderStatus }

func (h *OrderStatusHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	c := ctx.Coordinator()
	var p OrderStatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload for order_status: %w", err)
	}
	if err := c.book.OnOrderUpdate(p.OrderID, p.Filled, p.Unfilled, p.Status); err != nil {
		return err
	}
	c.brackets.OnOrderStatus(p.OrderID, p.Status)
	c.persistOrderByID(p.OrderID)
	if key, ok := c.brackets.KeyForOrder(p.OrderID); ok {
		c.persistBracket(key)
	}
	return nil
}

type ExecutionHandler struct{}

func (h *ExecutionHandler) Type() EventType { return EvtExecution }

func (h *ExecutionHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	c := ctx.Coordinator()
	var p ExecutionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload for execution: %w", err)
	}
	if err := c.book.OnExecution(p.OrderID, p.Quantity, p.Price); err != nil {
		return err
	}
	if c.persist != nil {
		if o, ok := c.book.Get(p.OrderID); ok && len(o.Fills) > 0 {
			if err := c.persist.AppendFill(p.OrderID, o.Fills[len(o.Fills)-1]); err != nil {
				logger.Errorf("coord: persisting fill for %s failed: %v", p.OrderID, err)
			}
		}
	}
	c.brackets.OnExecution(p.OrderID, p.Quantity, p.Price)

	if key, ok := c.brackets.KeyForOrder(p.OrderID); ok {
		if c.book.Position(key.AccountID, key.Instrument).Sign() == 0 {
			c.brackets.OnPositionFlat(key)
		}
		c.persistBracket(key)
	}
	c.persistOrderByID(p.OrderID)
	return nil
}

type PriceTickHandler struct{}

func (h *PriceTickHandler) Type() EventType { return EvtPriceTick }

func (h *PriceTickHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	var p PriceTickPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload for price_tick: %w", err)
	}
	ctx.Coordinator().brackets.OnPrice(p.Instrument, p.Price)
	return nil
}

type DayRolloverHandler struct{}

func (h *DayRolloverHandler) Type() EventType { return EvtDayRollover }

func (h *DayRolloverHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	var p DayRolloverPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload for day_rollover: %w", err)
	}
	return ctx.Coordinator().gate.OnDayRollover(p.Day)
}

type WatchdogTickHandler struct{}

func (h *WatchdogTickHandler) Type() EventType { return EvtWatchdogTick }

func (h *WatchdogTickHandler) Handle(ctx *HandlerContext, payload []byte, traceID string) error {
	ctx.Coordinator().brackets.OnWatchdogTick()
	return nil
}
