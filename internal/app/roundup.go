package app

import "github.com/shopspring/decimal"

// MinorUnitPlaces is the number of decimal places money is kept at.
const MinorUnitPlaces = 2

// RoundUp returns the spare change between amount and the next whole currency unit.
// Amounts are first rounded half-up to the minor unit; negative amounts and whole
// amounts yield zero, everything else a value in (0, 1).
func RoundUp(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	a := amount.Round(MinorUnitPlaces)
	return a.Ceil().Sub(a)
}
