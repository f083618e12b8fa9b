package sim

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corral/internal/coord"
	"corral/internal/order"
)

func newSim(t *testing.T) *Gateway {
	t.Helper()
	g := New(func(coord.EventEnvelope) error { return nil })
	t.Cleanup(g.Close)
	return g
}

func simReq(role order.Role, kind order.Kind, side order.Side, px float64) order.Request {
	price := order.MarketPrice()
	if kind != order.KindMarket {
		price = order.Limit(decimal.NewFromFloat(px))
	}
	return order.Request{
		AccountID:  "ACC1",
		Instrument: "ESZ5",
		Side:       side,
		Kind:       kind,
		Role:       role,
		Price:      price,
		Quantity:   decimal.NewFromInt(1),
	}
}

func TestGateway_ScriptedRejectionKeepsOrderTerminal(t *testing.T) {
	g := newSim(t)
	g.SetPrice("ESZ5", decimal.NewFromInt(5000))
	g.RejectNext(order.RoleStop, 1)

	_, err := g.SubmitStop(simReq(order.RoleStop, order.KindStopMarket, order.SideSell, 4995))
	require.NoError(t, err)

	// A rejected resting order must never fill on a later price move.
	g.SetPrice("ESZ5", decimal.NewFromInt(4990))
	assert.Error(t, g.Cancel("SIM-1"))
}

func TestGateway_ConcurrentSubmitsAndPriceMoves(t *testing.T) {
	g := newSim(t)
	g.SetPrice("ESZ5", decimal.NewFromInt(5000))
	g.RejectNext(order.RoleStop, 4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.SubmitStop(simReq(order.RoleStop, order.KindStopMarket, order.SideSell, 4995))
			assert.NoError(t, err)
		}()
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			g.SetPrice("ESZ5", decimal.NewFromInt(int64(4993+n)))
		}(i)
	}
	wg.Wait()

	// Every order is terminal after the sweep below the trigger, whether it
	// was scripted-rejected or filled.
	g.SetPrice("ESZ5", decimal.NewFromInt(4990))
	for id := range g.orders {
		assert.Error(t, g.Modify(id, order.MarketPrice(), decimal.Zero), "order %s should be terminal", id)
	}
}
