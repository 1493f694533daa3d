package vault

import "github.com/shopspring/decimal"

// Ledger amounts are kept at 6 decimal places, matching the precision the
// production vault contracts settle at. Amounts round down, costs round up,
// so rounding error never manufactures equity.

const amountPlaces = 6

// FloorAmount rounds an asset amount down to ledger precision.
func FloorAmount(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).RoundFloor(amountPlaces).Float64()
	return f
}

// CeilCost rounds a fee or slippage charge up to ledger precision.
func CeilCost(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).RoundCeil(amountPlaces).Float64()
	return f
}
