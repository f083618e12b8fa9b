// Package decmath holds side-aware decimal price helpers used by the
// bracket state machine. Float comparisons on prices are banned; everything
// routes through shopspring/decimal.
package decmath

import (
	"math"

	"github.com/shopspring/decimal"
)

var eps = decimal.New(1, -9)

// FromFloat converts a float, mapping NaN/Inf to zero.
func FromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// GTE/LTE with an epsilon guard so repeated float round-trips at the
// boundary don't flap.
func GTE(a, b decimal.Decimal) bool { return a.Sub(b).GreaterThanOrEqual(eps.Neg()) }
func LTE(a, b decimal.Decimal) bool { return b.Sub(a).GreaterThanOrEqual(eps.Neg()) }

// FavorableMove returns how far price has moved in the position's favor from
// entry, in price units. Negative means the move is adverse.
func FavorableMove(isLong bool, entry, price decimal.Decimal) decimal.Decimal {
	if isLong {
		return price.Sub(entry)
	}
	return entry.Sub(price)
}

// TicksBetween converts a price distance into whole ticks (rounded down).
func TicksBetween(dist, tickSize decimal.Decimal) int64 {
	if tickSize.Sign() <= 0 {
		return 0
	}
	return dist.Div(tickSize).IntPart()
}

// BreakEvenStop computes the break-even stop price: entry shifted by
// offsetTicks in the position's favor so the exit covers costs.
func BreakEvenStop(isLong bool, entry, tickSize decimal.Decimal, offsetTicks int64) decimal.Decimal {
	shift := tickSize.Mul(decimal.NewFromInt(offsetTicks))
	if isLong {
		return entry.Add(shift)
	}
	return entry.Sub(shift)
}

// ProtectiveStop returns the initial stop price stopTicks away from entry
// on the adverse side.
func ProtectiveStop(isLong bool, entry, tickSize decimal.Decimal, stopTicks int64) decimal.Decimal {
	dist := tickSize.Mul(decimal.NewFromInt(stopTicks))
	if isLong {
		return entry.Sub(dist)
	}
	return entry.Add(dist)
}

// TargetPrice returns the take-profit price targetTicks away from entry on
// the favorable side.
func TargetPrice(isLong bool, entry, tickSize decimal.Decimal, targetTicks int64) decimal.Decimal {
	dist := tickSize.Mul(decimal.NewFromInt(targetTicks))
	if isLong {
		return entry.Add(dist)
	}
	return entry.Sub(dist)
}
