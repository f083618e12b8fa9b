package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corral/internal/account"
	"corral/internal/fault"
	"corral/internal/order"
)

func entryReq(acct, instrument string, qty int64) order.Request {
	return order.Request{
		AccountID:  acct,
		Instrument: instrument,
		Side:       order.SideBuy,
		Kind:       order.KindMarket,
		Role:       order.RoleEntry,
		Price:      order.MarketPrice(),
		Quantity:   decimal.NewFromInt(qty),
	}
}

func TestLedger_SubmissionThenAccept(t *testing.T) {
	l := New(account.NewRegistry(nil), nil)
	tok := order.NewToken(order.RoleEntry)

	require.NoError(t, l.RecordSubmission(tok, entryReq("ACC1", "ESZ5", 2)))

	pending, ok := l.GetByToken(tok)
	require.True(t, ok)
	assert.Equal(t, order.StatusPending, pending.Status)
	assert.True(t, pending.Unfilled.Equal(decimal.NewFromInt(2)))

	require.NoError(t, l.OnAccepted(tok, "ORD-1"))

	_, stillPending := l.GetByToken(tok)
	assert.False(t, stillPending)
	o, ok := l.Get("ORD-1")
	require.True(t, ok)
	assert.Equal(t, order.StatusWorking, o.Status)
	assert.Equal(t, tok, o.Token)
}

func TestLedger_DuplicateTokenKeepsFirst(t *testing.T) {
	l := New(account.NewRegistry(nil), nil)
	tok := order.NewToken(order.RoleEntry)

	require.NoError(t, l.RecordSubmission(tok, entryReq("ACC1", "ESZ5", 2)))
	err := l.RecordSubmission(tok, entryReq("ACC1", "NQZ5", 5))
	require.Error(t, err)
	assert.Equal(t, fault.KindRecoverableProtocolAnomaly, fault.KindOf(err))

	o, ok := l.GetByToken(tok)
	require.True(t, ok)
	assert.Equal(t, "ESZ5", o.Request.Instrument)
}

func TestLedger_AcceptUnknownTokenIsAnomaly(t *testing.T) {
	l := New(account.NewRegistry(nil), nil)
	err := l.OnAccepted(order.Token("entry-nope"), "ORD-9")
	require.Error(t, err)
	assert.Equal(t, fault.KindRecoverableProtocolAnomaly, fault.KindOf(err))
}

func TestLedger_UpdateUnknownOrderIsInconsistency(t *testing.T) {
	l := New(account.NewRegistry(nil), nil)
	err := l.OnOrderUpdate("ORD-404", decimal.NewFromInt(1), decimal.Zero, order.StatusFilled)
	require.Error(t, err)
	assert.Equal(t, fault.KindLedgerInconsistency, fault.KindOf(err))
}

func TestLedger_UpdateIsIdempotent(t *testing.T) {
	l := New(account.NewRegistry(nil), nil)
	tok := order.NewToken(order.RoleEntry)
	require.NoError(t, l.RecordSubmission(tok, entryReq("ACC1", "ESZ5", 2)))
	require.NoError(t, l.OnAccepted(tok, "ORD-1"))

	one, oneLeft := decimal.NewFromInt(1), decimal.NewFromInt(1)
	require.NoError(t, l.OnOrderUpdate("ORD-1", one, oneLeft, order.StatusPartiallyFilled))
	before, _ := l.Get("ORD-1")
	updatedAt := before.UpdatedAt

	// Replaying the exact same snapshot must not touch the record.
	require.NoError(t, l.OnOrderUpdate("ORD-1", one, oneLeft, order.StatusPartiallyFilled))
	after, _ := l.Get("ORD-1")
	assert.Equal(t, updatedAt, after.UpdatedAt)
	assert.True(t, after.Filled.Equal(one))
}

func TestLedger_StaleUpdateDiscarded(t *testing.T) {
	l := New(account.NewRegistry(nil), nil)
	tok := order.NewToken(order.RoleEntry)
	require.NoError(t, l.RecordSubmission(tok, entryReq("ACC1", "ESZ5", 2)))
	require.NoError(t, l.OnAccepted(tok, "ORD-1"))
	require.NoError(t, l.OnOrderUpdate("ORD-1", decimal.NewFromInt(2), decimal.Zero, order.StatusFilled))

	err := l.OnOrderUpdate("ORD-1", decimal.NewFromInt(1), decimal.NewFromInt(1), order.StatusPartiallyFilled)
	require.Error(t, err)
	assert.Equal(t, fault.KindRecoverableProtocolAnomaly, fault.KindOf(err))

	o, _ := l.Get("ORD-1")
	assert.Equal(t, order.StatusFilled, o.Status)
	assert.True(t, o.Filled.Equal(decimal.NewFromInt(2)))
}

func TestLedger_ExecutionsDrivePosition(t *testing.T) {
	l := New(account.NewRegistry(nil), nil)

	buyTok := order.NewToken(order.RoleEntry)
	require.NoError(t, l.RecordSubmission(buyTok, entryReq("ACC1", "ESZ5", 3)))
	require.NoError(t, l.OnAccepted(buyTok, "ORD-B"))

	sellReq := entryReq("ACC1", "ESZ5", 3)
	sellReq.Side = order.SideSell
	sellReq.Role = order.RoleStop
	sellTok := order.NewToken(order.RoleStop)
	require.NoError(t, l.RecordSubmission(sellTok, sellReq))
	require.NoError(t, l.OnAccepted(sellTok, "ORD-S"))

	px := decimal.NewFromFloat(5001.25)
	require.NoError(t, l.OnExecution("ORD-B", decimal.NewFromInt(3), px))
	assert.True(t, l.Position("ACC1", "ESZ5").Equal(decimal.NewFromInt(3)))

	require.NoError(t, l.OnExecution("ORD-S", decimal.NewFromInt(3), px))
	assert.True(t, l.Position("ACC1", "ESZ5").IsZero())
}

func TestLedger_ExecutionForUnknownOrder(t *testing.T) {
	l := New(account.NewRegistry(nil), nil)
	err := l.OnExecution("ORD-404", decimal.NewFromInt(1), decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Equal(t, fault.KindLedgerInconsistency, fault.KindOf(err))
}

func TestLedger_RestoreReplaysPosition(t *testing.T) {
	l := New(account.NewRegistry(nil), nil)
	o := &order.Order{
		ID:      "ORD-R",
		Token:   order.Token("entry-r"),
		Request: entryReq("ACC1", "ESZ5", 2),
		Status:  order.StatusFilled,
		Filled:  decimal.NewFromInt(2),
		Fills: []order.Fill{
			{Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(5000)},
		},
	}
	l.Restore(o)

	got, ok := l.Get("ORD-R")
	require.True(t, ok)
	assert.Equal(t, order.StatusFilled, got.Status)
	assert.True(t, l.Position("ACC1", "ESZ5").Equal(decimal.NewFromInt(2)))
}
