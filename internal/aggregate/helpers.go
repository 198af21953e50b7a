package aggregate

import (
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"liquidityEngine/internal/units"
)

// feeRate returns fee/reserve, or nil when either is zero.
func feeRate(fee, reserve *uint256.Int) *string {
	if fee == nil || fee.IsZero() || reserve == nil || reserve.IsZero() {
		return nil
	}
	rate := units.Ratio(fee, reserve)
	return &rate
}

// computeAPR annualizes the window's fee yield. Both reserves hold the same value at the
// pool price, so the yield on the whole pool is the mean of the two per-side rates.
func computeAPR(feeRateAsset, feeRateBase *string, windowSeconds uint64) *string {
	if windowSeconds == 0 || (feeRateAsset == nil && feeRateBase == nil) {
		return nil
	}

	sum := decimal.Zero
	for _, rate := range []*string{feeRateAsset, feeRateBase} {
		if rate == nil {
			continue
		}
		parsed, err := decimal.NewFromString(*rate)
		if err != nil {
			return nil
		}
		sum = sum.Add(parsed)
	}

	yearSeconds := decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))
	window := decimal.NewFromInt(int64(windowSeconds))
	apr := sum.Div(decimal.NewFromInt(2)).Mul(yearSeconds).DivRound(window, units.RatioScale)
	val := apr.String()
	return &val
}

func formatReserve(value *uint256.Int, decimals uint8) *string {
	if value == nil {
		return nil
	}
	formatted := units.Format(value, decimals)
	return &formatted
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var earliest uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if earliest == 0 || entry.WindowStart < earliest {
			earliest = entry.WindowStart
		}
	}
	return earliest
}
