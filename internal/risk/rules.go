package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"corral/internal/order"
)

// MaxQuantityRule caps the quantity of a single entry per instrument.
type MaxQuantityRule struct {
	Instrument string
	Max        decimal.Decimal
}

func (r MaxQuantityRule) Name() string { return "max_quantity" }

func (r MaxQuantityRule) Check(req order.Request) error {
	if r.Instrument != "" && req.Instrument != r.Instrument {
		return nil
	}
	if r.Max.Sign() > 0 && req.Quantity.GreaterThan(r.Max) {
		return fmt.Errorf("quantity %s exceeds max %s for %s", req.Quantity, r.Max, req.Instrument)
	}
	return nil
}

// InstrumentAllowList denies entries for instruments outside the configured
// set. An empty list allows everything.
type InstrumentAllowList struct {
	Allowed []string
}

func (r InstrumentAllowList) Name() string { return "instrument_allowlist" }

func (r InstrumentAllowList) Check(req order.Request) error {
	if len(r.Allowed) == 0 {
		return nil
	}
	for _, in := range r.Allowed {
		if in == req.Instrument {
			return nil
		}
	}
	return fmt.Errorf("instrument %s not allowed", req.Instrument)
}
