package aggregate

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
	"liquidityEngine/internal/pricing"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	Pool            string
	WindowStart     uint64
	WindowEnd       uint64
	SwapCount       uint64
	LiquidityEvents uint64
	VolumeAsset     *uint256.Int
	VolumeBase      *uint256.Int
	FeeAsset        *uint256.Int
	FeeBase         *uint256.Int
	// AssetReserve and BaseReserve are the last reserves seen in the window.
	AssetReserve *uint256.Int
	BaseReserve  *uint256.Int
	LastTS       uint64
}

func NewAccumulator(pool string, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		Pool:        pool,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeAsset: new(uint256.Int),
		VolumeBase:  new(uint256.Int),
		FeeAsset:    new(uint256.Int),
		FeeBase:     new(uint256.Int),
	}
}

// AddEvent folds the part of record that concerns this pool into the window.
func (a *Accumulator) AddEvent(record model.EventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		if reserves, ok := record.ReservesOf(a.Pool); ok {
			if err := a.observeReserves(reserves); err != nil {
				return err
			}
		}
	}

	switch record.Kind {
	case model.EventSwap:
		var swap model.SwapData
		if err := json.Unmarshal(record.Data, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		side, err := pool.ParseSide(swap.InputSide)
		if err != nil {
			return err
		}
		return a.applySwap(side, swap.AmountIn, swap.AmountOut)
	case model.EventRoutedSwap:
		var routed model.RoutedSwapData
		if err := json.Unmarshal(record.Data, &routed); err != nil {
			return fmt.Errorf("decode routed swap: %w", err)
		}
		// the source pool sells asset for base, the destination pool sells base for asset
		if record.Pool == a.Pool {
			return a.applySwap(pool.SideAsset, routed.AmountIn, routed.BaseAmount)
		}
		return a.applySwap(pool.SideBase, routed.BaseAmount, routed.AmountOut)
	case model.EventLiquidityAdded, model.EventLiquidityRemoved:
		a.LiquidityEvents++
		return nil
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(inputSide pool.Side, amountIn, amountOut string) error {
	in, err := parseAmount(amountIn)
	if err != nil {
		return err
	}
	out, err := parseAmount(amountOut)
	if err != nil {
		return err
	}

	fee := pricing.Fee(in)
	if inputSide == pool.SideAsset {
		a.VolumeAsset.Add(a.VolumeAsset, in)
		a.VolumeBase.Add(a.VolumeBase, out)
		a.FeeAsset.Add(a.FeeAsset, fee)
	} else {
		a.VolumeBase.Add(a.VolumeBase, in)
		a.VolumeAsset.Add(a.VolumeAsset, out)
		a.FeeBase.Add(a.FeeBase, fee)
	}

	a.SwapCount++
	return nil
}

func (a *Accumulator) observeReserves(reserves model.PoolReserves) error {
	assetReserve, err := parseAmount(reserves.AssetReserve)
	if err != nil {
		return err
	}
	baseReserve, err := parseAmount(reserves.BaseReserve)
	if err != nil {
		return err
	}
	a.AssetReserve, a.BaseReserve = assetReserve, baseReserve
	return nil
}

func parseAmount(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	parsed, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return parsed, nil
}
