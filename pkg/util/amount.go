package util

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// FormatAmount renders base units as a decimal with the given number of
// decimals, e.g. 5e17 with 18 decimals is "0.5".
func FormatAmount(amt *uint256.Int, decimals int32) string {
	if amt == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amt.ToBig(), -decimals).String()
}

// ParseAmount converts a human decimal ("0.5") into base units. Values with
// more fractional digits than decimals, negatives and values above 2^256-1
// are rejected.
func ParseAmount(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	amt, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q overflows 256 bits", s)
	}
	return amt, nil
}
