package gateway

import (
	"github.com/shopspring/decimal"

	"corral/internal/order"
	"corral/internal/pkg/circuit"
)

// Guarded wraps a Gateway with a circuit breaker. An open breaker surfaces
// as a submission error, which the bracket controller treats like any other
// gateway rejection (degraded path, retry, escalate).
type Guarded struct {
	inner   Gateway
	breaker *circuit.Breaker
}

func NewGuarded(inner Gateway, breaker *circuit.Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) SubmitEntry(req order.Request) (order.Token, error) {
	return g.submit(req, order.RoleEntry, g.inner.SubmitEntry)
}

func (g *Guarded) SubmitStop(req order.Request) (order.Token, error) {
	return g.submit(req, order.RoleStop, g.inner.SubmitStop)
}

func (g *Guarded) SubmitTarget(req order.Request) (order.Token, error) {
	return g.submit(req, order.RoleTarget, g.inner.SubmitTarget)
}

func (g *Guarded) submit(req order.Request, want order.Role, fn func(order.Request) (order.Token, error)) (order.Token, error) {
	var token order.Token
	if err := ValidateRole(req, want); err != nil {
		return token, err
	}
	err := g.breaker.Do(func() error {
		var err error
		token, err = fn(req)
		return err
	})
	return token, err
}

func (g *Guarded) Modify(orderID string, newPrice order.Price, newQty decimal.Decimal) error {
	return g.breaker.Do(func() error { return g.inner.Modify(orderID, newPrice, newQty) })
}

func (g *Guarded) Cancel(orderID string) error {
	return g.breaker.Do(func() error { return g.inner.Cancel(orderID) })
}
