package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"liquidityEngine/internal/model"
	"liquidityEngine/internal/units"
)

// StatsSink stores closed pool windows.
type StatsSink interface {
	UpsertPoolWindowStats(ctx context.Context, stats []model.PoolWindowStats) error
}

// MultiSink stores windows in every sink, stopping at the first failure.
type MultiSink []StatsSink

func (m MultiSink) UpsertPoolWindowStats(ctx context.Context, stats []model.PoolWindowStats) error {
	for _, sink := range m {
		if err := sink.UpsertPoolWindowStats(ctx, stats); err != nil {
			return err
		}
	}
	return nil
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	// Decimals is used to render volumes, fees and reserves in whole units.
	Decimals   uint8
	StateStore StateStore
}

// Aggregator aggregates engine events into per-pool window stats.
type Aggregator struct {
	cfg          Config
	sink         StatsSink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	closed       []model.PoolWindowStats
}

func NewAggregator(cfg Config, sink StatsSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Add folds record into the open window of every pool it touches. A pool whose
// window moves on has its previous window closed.
func (a *Aggregator) Add(record model.EventRecord) error {
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
	end := start + a.cfg.WindowSeconds

	for _, pool := range touchedPools(record) {
		key := poolKey(pool)
		acc := a.accumulators[key]
		if acc == nil {
			acc = NewAccumulator(pool, start, end)
			a.accumulators[key] = acc
		} else if acc.WindowStart != start {
			a.closed = append(a.closed, a.stats(acc))
			acc = NewAccumulator(pool, start, end)
			a.accumulators[key] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			return fmt.Errorf("pool %s: %w", pool, err)
		}
	}
	return nil
}

// Close closes every open window and returns all closed windows not yet taken,
// ordered by pool and window start.
func (a *Aggregator) Close() []model.PoolWindowStats {
	for _, acc := range a.accumulators {
		a.closed = append(a.closed, a.stats(acc))
	}
	a.accumulators = make(map[string]*Accumulator)
	return a.take()
}

// Run executes aggregation over an event JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.sink == nil {
		return fmt.Errorf("stats sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	maxTs := startTs
	var total, windows, skipped, failed int

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode event", zap.Error(err))
			continue
		}

		if record.Timestamp <= startTs {
			skipped++
			continue
		}

		if err := a.Add(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.Uint64("seq", record.Seq), zap.String("kind", string(record.Kind)))
			continue
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(a.closed) >= a.cfg.BatchSize {
			batch := a.take()
			if err := a.sink.UpsertPoolWindowStats(ctx, batch); err != nil {
				return fmt.Errorf("store window stats: %w", err)
			}
			windows += len(batch)

			if err := a.saveState(ctx, maxTs); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	if batch := a.Close(); len(batch) > 0 {
		if err := a.sink.UpsertPoolWindowStats(ctx, batch); err != nil {
			return fmt.Errorf("store window stats: %w", err)
		}
		windows += len(batch)
	}

	if err := a.saveState(ctx, maxTs); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) take() []model.PoolWindowStats {
	out := a.closed
	a.closed = nil
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pool != out[j].Pool {
			return out[i].Pool < out[j].Pool
		}
		return out[i].WindowStart.Before(out[j].WindowStart)
	})
	return out
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState checkpoints just before the earliest window still open, so a restart
// recomputes that window in full.
func (a *Aggregator) saveState(ctx context.Context, maxTs uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, maxTs)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) stats(acc *Accumulator) model.PoolWindowStats {
	decimals := a.cfg.Decimals
	rateAsset := feeRate(acc.FeeAsset, acc.AssetReserve)
	rateBase := feeRate(acc.FeeBase, acc.BaseReserve)

	return model.PoolWindowStats{
		Pool:            acc.Pool,
		WindowSizeSecs:  int64(a.cfg.WindowSeconds),
		WindowStart:     time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:       time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:       acc.SwapCount,
		LiquidityEvents: acc.LiquidityEvents,
		VolumeAsset:     units.Format(acc.VolumeAsset, decimals),
		VolumeBase:      units.Format(acc.VolumeBase, decimals),
		FeeAsset:        units.Format(acc.FeeAsset, decimals),
		FeeBase:         units.Format(acc.FeeBase, decimals),
		AssetReserve:    formatReserve(acc.AssetReserve, decimals),
		BaseReserve:     formatReserve(acc.BaseReserve, decimals),
		FeeRateAsset:    rateAsset,
		FeeRateBase:     rateBase,
		APR:             computeAPR(rateAsset, rateBase, a.cfg.WindowSeconds),
	}
}

// touchedPools lists the pools an event changed.
func touchedPools(record model.EventRecord) []string {
	if len(record.Reserves) == 0 {
		return []string{record.Pool}
	}
	pools := make([]string, 0, len(record.Reserves))
	for _, reserves := range record.Reserves {
		pools = append(pools, reserves.Pool)
	}
	return pools
}
