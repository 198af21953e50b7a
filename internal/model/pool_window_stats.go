package model

import "time"

// PoolWindowStats stores aggregated trading activity for a pool window.
// Volumes and fees are decimal strings in whole units.
type PoolWindowStats struct {
	Pool            string
	WindowSizeSecs  int64
	WindowStart     time.Time
	WindowEnd       time.Time
	SwapCount       uint64
	LiquidityEvents uint64
	VolumeAsset     string
	VolumeBase      string
	FeeAsset        string
	FeeBase         string
	AssetReserve    *string
	BaseReserve     *string
	FeeRateAsset    *string
	FeeRateBase     *string
	APR             *string
}
