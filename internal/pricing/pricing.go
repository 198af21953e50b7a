// Package pricing implements the constant-product swap formula used by every pool.
package pricing

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// The swap fee is charged on the input side: 99/100 keeps 1% in the pool.
const (
	FeeNumerator   = 99
	FeeDenominator = 100
)

var (
	// ErrInvalidReserves is returned when a pool with no liquidity is priced.
	ErrInvalidReserves = errors.New("invalid reserves")
	// ErrInvalidFee is returned for a zero denominator or a fee multiplier above one.
	ErrInvalidFee = errors.New("invalid fee")
	// ErrOverflow is returned when an intermediate product does not fit in 256 bits.
	ErrOverflow = errors.New("amount overflow")

	feeNum = uint256.NewInt(FeeNumerator)
	feeDen = uint256.NewInt(FeeDenominator)
)

// QuoteOutput returns the amount of the output asset paid for inputAmount:
//
//	out = (in * feeNum * outReserve) / (inReserve * feeDen + in * feeNum)
//
// Division truncates. The result is always strictly less than outputReserve.
func QuoteOutput(inputAmount, inputReserve, outputReserve, feeNumerator, feeDenominator *uint256.Int) (*uint256.Int, error) {
	if inputReserve.IsZero() || outputReserve.IsZero() {
		return nil, fmt.Errorf("%w: input reserve %s, output reserve %s", ErrInvalidReserves, inputReserve.Dec(), outputReserve.Dec())
	}
	if feeDenominator.IsZero() || feeNumerator.Gt(feeDenominator) {
		return nil, fmt.Errorf("%w: %s/%s", ErrInvalidFee, feeNumerator.Dec(), feeDenominator.Dec())
	}
	if inputAmount.IsZero() {
		return new(uint256.Int), nil
	}

	effectiveInput, overflow := new(uint256.Int).MulOverflow(inputAmount, feeNumerator)
	if overflow {
		return nil, fmt.Errorf("%w: effective input", ErrOverflow)
	}
	denominator, overflow := new(uint256.Int).MulOverflow(inputReserve, feeDenominator)
	if overflow {
		return nil, fmt.Errorf("%w: scaled input reserve", ErrOverflow)
	}
	if _, overflow = denominator.AddOverflow(denominator, effectiveInput); overflow {
		return nil, fmt.Errorf("%w: denominator", ErrOverflow)
	}

	// numerator is computed at 512-bit precision; the quotient is < outputReserve.
	out, overflow := new(uint256.Int).MulDivOverflow(effectiveInput, outputReserve, denominator)
	if overflow {
		return nil, fmt.Errorf("%w: output", ErrOverflow)
	}
	return out, nil
}

// QuoteWithFee prices a swap with the standard 99/100 fee.
func QuoteWithFee(inputAmount, inputReserve, outputReserve *uint256.Int) (*uint256.Int, error) {
	return QuoteOutput(inputAmount, inputReserve, outputReserve, feeNum, feeDen)
}

// Proportion returns amount * numerator / denominator, truncated.
// It is the shape shared by the deposit ratio, share minting and burn payouts.
func Proportion(amount, numerator, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, fmt.Errorf("%w: zero denominator", ErrInvalidReserves)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, numerator, denominator)
	if overflow {
		return nil, fmt.Errorf("%w: proportion", ErrOverflow)
	}
	return out, nil
}

// Fee returns the part of inputAmount retained by the pool as the swap fee.
func Fee(inputAmount *uint256.Int) *uint256.Int {
	kept, _ := new(uint256.Int).MulDivOverflow(inputAmount, feeNum, feeDen)
	return new(uint256.Int).Sub(inputAmount, kept)
}
