package feed

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corral/internal/coord"
	"corral/internal/fault"
	"corral/internal/order"
)

func TestDecode_AccountSnapshot(t *testing.T) {
	raw := []byte(`{"type":"account_snapshot","accounts":[{"id":"ACC1","primary":true},{"id":"ACC2"}]}`)
	evt, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, coord.EvtAccountSnapshot, evt.Type)

	var p coord.AccountSnapshotPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	require.Len(t, p.Accounts, 2)
	assert.True(t, p.Accounts[0].Primary)
	assert.Equal(t, "ACC2", p.Accounts[1].ID)
}

func TestDecode_EntrySignal(t *testing.T) {
	raw := []byte(`{"type":"entry_signal","account_id":"ACC1","instrument":"ESZ5","side":"buy","quantity":2}`)
	evt, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, coord.EvtEntrySignal, evt.Type)

	var p coord.EntrySignalPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, order.SideBuy, p.Request.Side)
	assert.Equal(t, order.KindMarket, p.Request.Kind)
	assert.True(t, p.Request.Price.IsMarket())
	assert.True(t, p.Request.Quantity.Equal(decimal.NewFromInt(2)))
	require.NoError(t, p.Request.Validate())
}

func TestDecode_OrderStatusWithQuotedDecimals(t *testing.T) {
	raw := []byte(`{"type":"order_status","order_id":"ORD-1","filled":"1.5","unfilled":"0.5","status":"partially_filled"}`)
	evt, err := Decode(raw)
	require.NoError(t, err)

	var p coord.OrderStatusPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, order.StatusPartiallyFilled, p.Status)
	assert.True(t, p.Filled.Equal(decimal.NewFromFloat(1.5)))
	assert.True(t, p.Unfilled.Equal(decimal.NewFromFloat(0.5)))
}

func TestDecode_Execution(t *testing.T) {
	raw := []byte(`{"type":"execution","order_id":"ORD-1","quantity":1,"price":5001.25}`)
	evt, err := Decode(raw)
	require.NoError(t, err)

	var p coord.ExecutionPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, "ORD-1", p.OrderID)
	assert.True(t, p.Price.Equal(decimal.NewFromFloat(5001.25)))
}

func TestDecode_DayRollover(t *testing.T) {
	raw := []byte(`{"type":"day_rollover","day":"2026-08-26"}`)
	evt, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, coord.EvtDayRollover, evt.Type)
}

func TestDecode_MalformedEventsAreRecoverableAnomalies(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"type":`,
		"unknown type":     `{"type":"margin_call"}`,
		"missing required": `{"type":"execution","order_id":"ORD-1"}`,
		"bad status":       `{"type":"order_status","order_id":"ORD-1","filled":1,"unfilled":0,"status":"EXPLODED"}`,
		"bad rollover day": `{"type":"day_rollover","day":"today"}`,
		"empty instrument": `{"type":"price_tick","instrument":"","price":1}`,
	}
	for name, raw := range cases {
		_, err := Decode([]byte(raw))
		require.Error(t, err, name)
		assert.Equal(t, fault.KindRecoverableProtocolAnomaly, fault.KindOf(err), name)
	}
}
