package position

import (
	"github.com/shopspring/decimal"

	"tradefan/internal/types"
)

// SLTPTarget selects which side of the entry price a bracket level sits on.
type SLTPTarget int

const (
	TargetSL SLTPTarget = iota
	TargetTP
)

// DeriveSLTP computes the absolute trigger price for a stop-loss or
// take-profit level. POINTS offsets the entry by an absolute amount,
// PERCENT by a fraction of the entry price. For a LONG position SL sits
// below the entry and TP above; SHORT mirrors both. The result is
// rounded to 8 decimal places.
func DeriveSLTP(entryPrice float64, side types.Side, typ types.SLTPType, value float64, target SLTPTarget) float64 {
	entry := decimal.NewFromFloat(entryPrice)
	val := decimal.NewFromFloat(value)

	var offset decimal.Decimal
	switch typ {
	case types.SLTPPercent:
		offset = entry.Mul(val).Div(decimal.NewFromInt(100))
	default:
		offset = val
	}

	below := side == types.SideLong
	if target == TargetTP {
		below = !below
	}

	var price decimal.Decimal
	if below {
		price = entry.Sub(offset)
	} else {
		price = entry.Add(offset)
	}
	out, _ := price.Round(8).Float64()
	return out
}

// ComputePnL returns the realized profit for a closed position.
// LONG profits when exit > entry, SHORT when exit < entry.
func ComputePnL(side types.Side, qty, entryPrice, exitPrice float64) float64 {
	entry := decimal.NewFromFloat(entryPrice)
	exit := decimal.NewFromFloat(exitPrice)
	quantity := decimal.NewFromFloat(qty)

	diff := exit.Sub(entry)
	if side == types.SideShort {
		diff = entry.Sub(exit)
	}
	out, _ := diff.Mul(quantity).Round(8).Float64()
	return out
}

// ComputePnLPercentage expresses the profit as a percentage of the
// entry notional, rounded to 2 decimal places. Zero notional yields 0.
func ComputePnLPercentage(pnl, entryPrice, qty float64) float64 {
	notional := decimal.NewFromFloat(entryPrice).Mul(decimal.NewFromFloat(qty))
	if notional.IsZero() {
		return 0
	}
	out, _ := decimal.NewFromFloat(pnl).
		Div(notional).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return out
}
