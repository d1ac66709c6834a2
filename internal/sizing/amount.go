package sizing

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeAmount parses a human-readable token amount ("1.5") into native
// units of a token with the given decimals. Rejects negative values and
// excess precision rather than rounding silently.
func NativeAmount(human string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(human)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", human, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q must be positive", human)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %q exceeds %d decimal places", human, decimals)
	}
	bi := shifted.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %q out of range", human)
	}
	return bi.Uint64(), nil
}

// HumanAmount renders a native amount in display units.
func HumanAmount(native uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(native), -int32(decimals))
}

// FormatUsd6 renders a 1e6-scaled USD value with two decimal places.
func FormatUsd6(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -6).StringFixed(2)
}
