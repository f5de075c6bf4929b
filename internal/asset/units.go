package asset

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToUnits converts a base-unit amount into human units.
func ToUnits(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// FromUnits converts human units into base units, truncating sub-unit dust.
func FromUnits(units decimal.Decimal, decimals uint8) *big.Int {
	return units.Shift(int32(decimals)).Truncate(0).BigInt()
}

// NativeUnits is FromUnits for 18-decimal native coins.
func NativeUnits(units int64) *big.Int {
	return FromUnits(decimal.NewFromInt(units), 18)
}
