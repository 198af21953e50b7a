// Package influx writes pool window stats as InfluxDB points.
package influx

import (
	"context"
	"fmt"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shopspring/decimal"

	"liquidityEngine/internal/model"
)

const measurement = "pool_window"

// PointWriter is the blocking write API of an InfluxDB client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// StatsSink stores window stats in a bucket. Points are keyed by pool, window size and
// window start, so writing a window again replaces it.
type StatsSink struct {
	writer PointWriter
	source string
}

func NewStatsSink(writer PointWriter, source string) *StatsSink {
	return &StatsSink{writer: writer, source: source}
}

func (s *StatsSink) UpsertPoolWindowStats(ctx context.Context, stats []model.PoolWindowStats) error {
	if len(stats) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(stats))
	for _, window := range stats {
		point, err := s.point(window)
		if err != nil {
			return fmt.Errorf("pool %s: %w", window.Pool, err)
		}
		points = append(points, point)
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	return nil
}

func (s *StatsSink) point(window model.PoolWindowStats) (*write.Point, error) {
	tags := map[string]string{
		"pool":   window.Pool,
		"window": fmt.Sprintf("%ds", window.WindowSizeSecs),
	}
	if s.source != "" {
		tags["source"] = s.source
	}

	fields := map[string]interface{}{
		"swaps":            int64(window.SwapCount),
		"liquidity_events": int64(window.LiquidityEvents),
	}
	amounts := map[string]*string{
		"volume_asset":   &window.VolumeAsset,
		"volume_base":    &window.VolumeBase,
		"fees_asset":     &window.FeeAsset,
		"fees_base":      &window.FeeBase,
		"reserve_asset":  window.AssetReserve,
		"reserve_base":   window.BaseReserve,
		"fee_rate_asset": window.FeeRateAsset,
		"fee_rate_base":  window.FeeRateBase,
		"apr":            window.APR,
	}
	for key, value := range amounts {
		if value == nil || *value == "" {
			continue
		}
		parsed, err := decimal.NewFromString(*value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		fields[key] = parsed.InexactFloat64()
	}

	return write.NewPoint(measurement, tags, fields, window.WindowStart), nil
}
