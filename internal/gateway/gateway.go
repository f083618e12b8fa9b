// Package gateway defines the boundary the coordinator submits orders
// through. All calls are fire-and-forget: a nil error means "accepted for
// processing", never "filled". Outcomes are only observable through the
// feed events the coordinator consumes.
package gateway

import (
	"fmt"

	"github.com/shopspring/decimal"

	"corral/internal/order"
)

// Gateway is implemented by the host-integration adapter (and by the
// in-process simulator used for tests and paper mode).
type Gateway interface {
	// SubmitEntry/SubmitStop/SubmitTarget submit a new order and return the
	// correlation token the later order-accepted event will carry.
	SubmitEntry(req order.Request) (order.Token, error)
	SubmitStop(req order.Request) (order.Token, error)
	SubmitTarget(req order.Request) (order.Token, error)

	// Modify adjusts price and/or quantity of a working order.
	Modify(orderID string, newPrice order.Price, newQty decimal.Decimal) error

	// Cancel requests cancellation of a working order.
	Cancel(orderID string) error
}

// ValidateRole rejects a submission whose request role does not match the
// method it was sent through.
func ValidateRole(req order.Request, want order.Role) error {
	if req.Role != want {
		return fmt.Errorf("gateway: request role %q does not match submission path %q", req.Role, want)
	}
	return nil
}
