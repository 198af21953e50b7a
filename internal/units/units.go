// Package units converts between human-readable decimal amounts and smallest-unit integers.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount = errors.New("negative amount")
	ErrTooPrecise     = errors.New("amount has more fractional digits than decimals")
	ErrOutOfRange     = errors.New("amount does not fit in 256 bits")
)

// RatioScale is the number of fractional digits kept by Ratio.
const RatioScale = 18

// Parse converts a decimal string such as "1.25" into smallest units for the given decimals.
func Parse(amount string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrTooPrecise, amount, decimals)
	}
	value, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, amount)
	}
	return value, nil
}

// Format renders smallest units as a decimal string without trailing zeros.
func Format(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}

// Ratio returns num/den rounded to RatioScale digits, or "" when den is zero.
func Ratio(num, den *uint256.Int) string {
	if num == nil || den == nil || den.IsZero() {
		return ""
	}
	n := decimal.NewFromBigInt(num.ToBig(), 0)
	d := decimal.NewFromBigInt(den.ToBig(), 0)
	return n.DivRound(d, RatioScale).String()
}
