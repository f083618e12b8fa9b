package store

import (
	"fmt"
	"time"

	"corral/internal/bracket"
	"corral/internal/ledger"
	"corral/internal/logger"
	"corral/internal/order"
)

// Hydrate rebuilds the ledger and the open brackets from the database.
// Critical for crash recovery: a restart must not lose track of filled
// positions or resubmit protective legs that already exist at the gateway.
func Hydrate(s *Store, book *ledger.Ledger, ctrl *bracket.Controller) error {
	rows, err := s.listOrders()
	if err != nil {
		return fmt.Errorf("store: listing orders for hydration: %w", err)
	}
	statusByID := make(map[string]order.Status, len(rows))
	for _, row := range rows {
		o, err := orderFromModel(row)
		if err != nil {
			logger.Warnf("store: skipping unreadable order row token=%s: %v", row.Token, err)
			continue
		}
		fills, err := s.fillsFor(row.OrderID)
		if err != nil {
			return fmt.Errorf("store: loading fills for %s: %w", row.OrderID, err)
		}
		for _, f := range fills {
			o.Fills = append(o.Fills, order.Fill{
				Quantity: dec(f.Quantity),
				Price:    dec(f.Price),
				At:       f.FilledAt,
			})
		}
		book.Restore(o)
		if o.ID != "" {
			statusByID[o.ID] = o.Status
		}
	}

	brs, err := s.openBrackets()
	if err != nil {
		return fmt.Errorf("store: listing open brackets: %w", err)
	}
	for _, row := range brs {
		snap := bracket.Snapshot{
			AccountID:     row.AccountID,
			Instrument:    row.Instrument,
			State:         bracket.State(row.State),
			Side:          order.Side(row.Side),
			EntryToken:    order.Token(row.EntryToken),
			EntryOrderID:  row.EntryOrderID,
			StopToken:     order.Token(row.StopToken),
			StopOrderID:   row.StopOrderID,
			TargetToken:   order.Token(row.TargetToken),
			TargetOrderID: row.TargetOrderID,
			EntryPrice:    dec(row.EntryPrice),
			FilledQty:     dec(row.FilledQty),
			BreakEven:     row.BreakEven,
			Escalated:     row.Escalated,
			CloseReason:   row.CloseReason,
			CreatedAt:     row.CreatedAt,
			UpdatedAt:     row.UpdatedAt,
		}
		ctrl.Restore(snap, statusByID[row.StopOrderID], statusByID[row.TargetOrderID])
	}
	logger.Infof("store: hydrated %d orders and %d open brackets", len(rows), len(brs))
	return nil
}

func orderFromModel(m OrderModel) (*order.Order, error) {
	status, err := order.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	price := order.MarketPrice()
	if !m.Market {
		if m.Price == "" {
			return nil, fmt.Errorf("non-market order %s without price", m.Token)
		}
		price = order.Limit(dec(m.Price))
	}
	o := &order.Order{
		ID:    m.OrderID,
		Token: order.Token(m.Token),
		Request: order.Request{
			AccountID:  m.AccountID,
			Instrument: m.Instrument,
			Side:       order.Side(m.Side),
			Kind:       order.Kind(m.Kind),
			Role:       order.Role(m.Role),
			Price:      price,
			Quantity:   dec(m.Quantity),
		},
		Status:      status,
		Filled:      dec(m.Filled),
		Unfilled:    dec(m.Unfilled),
		SubmittedAt: m.SubmittedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = time.Now()
	}
	return o, nil
}
