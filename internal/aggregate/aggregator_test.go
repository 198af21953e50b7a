package aggregate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/model"
)

const (
	poolA = "0x00000000000000000000000000000000000000AA"
	poolB = "0x00000000000000000000000000000000000000BB"
)

type captureSink struct {
	stats []model.PoolWindowStats
	calls int
}

func (s *captureSink) UpsertPoolWindowStats(_ context.Context, stats []model.PoolWindowStats) error {
	s.calls++
	s.stats = append(s.stats, stats...)
	return nil
}

func reserves(pool, asset, base string) model.PoolReserves {
	return model.PoolReserves{Pool: pool, AssetReserve: asset, BaseReserve: base, TotalShares: "1000"}
}

func sampleEvents() []model.Event {
	return []model.Event{
		{
			Seq: 1, Kind: model.EventLiquidityAdded, Pool: poolA, Timestamp: 100,
			Data:     model.LiquidityAddedData{AssetAmount: "2000", BaseAmount: "1000", Shares: "1000"},
			Reserves: []model.PoolReserves{reserves(poolA, "2000", "1000")},
		},
		{
			Seq: 2, Kind: model.EventSwap, Pool: poolA, Timestamp: 200,
			Data:     model.SwapData{InputSide: "base", AmountIn: "100", AmountOut: "180"},
			Reserves: []model.PoolReserves{reserves(poolA, "1820", "1100")},
		},
		{
			Seq: 3, Kind: model.EventRoutedSwap, Pool: poolA, Timestamp: 300,
			Data: model.RoutedSwapData{DestinationPool: poolB, AmountIn: "10", BaseAmount: "4", AmountOut: "3"},
			Reserves: []model.PoolReserves{
				reserves(poolA, "1830", "1096"),
				reserves(poolB, "997", "1004"),
			},
		},
		{
			Seq: 4, Kind: model.EventSwap, Pool: poolA, Timestamp: 3700,
			Data:     model.SwapData{InputSide: "asset", AmountIn: "100", AmountOut: "5"},
			Reserves: []model.PoolReserves{reserves(poolA, "1930", "1091")},
		},
	}
}

func records(t *testing.T) []model.EventRecord {
	t.Helper()
	out := make([]model.EventRecord, 0, 4)
	for _, event := range sampleEvents() {
		record, err := event.Record()
		require.NoError(t, err)
		out = append(out, record)
	}
	return out
}

func writeEvents(t *testing.T, path string) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	for _, event := range sampleEvents() {
		line, err := json.Marshal(event)
		require.NoError(t, err)
		_, err = file.Write(append(line, '\n'))
		require.NoError(t, err)
	}
}

func checkSampleStats(t *testing.T, stats []model.PoolWindowStats) {
	t.Helper()
	require.Len(t, stats, 3)

	first := stats[0]
	assert.Equal(t, poolA, first.Pool)
	assert.Equal(t, time.Unix(0, 0).UTC(), first.WindowStart)
	assert.Equal(t, time.Unix(3600, 0).UTC(), first.WindowEnd)
	assert.Equal(t, uint64(2), first.SwapCount)
	assert.Equal(t, uint64(1), first.LiquidityEvents)
	assert.Equal(t, "190", first.VolumeAsset)
	assert.Equal(t, "104", first.VolumeBase)
	assert.Equal(t, "1", first.FeeAsset)
	assert.Equal(t, "1", first.FeeBase)
	require.NotNil(t, first.AssetReserve)
	assert.Equal(t, "1830", *first.AssetReserve)
	assert.Equal(t, "1096", *first.BaseReserve)
	assert.NotNil(t, first.FeeRateAsset)
	assert.NotNil(t, first.FeeRateBase)
	assert.NotNil(t, first.APR)

	second := stats[1]
	assert.Equal(t, poolA, second.Pool)
	assert.Equal(t, time.Unix(3600, 0).UTC(), second.WindowStart)
	assert.Equal(t, uint64(1), second.SwapCount)
	assert.Equal(t, "100", second.VolumeAsset)
	assert.Equal(t, "5", second.VolumeBase)
	assert.Equal(t, "1", second.FeeAsset)
	assert.Equal(t, "0", second.FeeBase)
	assert.Nil(t, second.FeeRateBase)

	dest := stats[2]
	assert.Equal(t, poolB, dest.Pool)
	assert.Equal(t, uint64(1), dest.SwapCount)
	assert.Equal(t, "3", dest.VolumeAsset)
	assert.Equal(t, "4", dest.VolumeBase)
	assert.Equal(t, "0", dest.FeeAsset)
	assert.Equal(t, "1", dest.FeeBase)
	assert.Equal(t, "997", *dest.AssetReserve)
	assert.Nil(t, dest.FeeRateAsset)
}

func TestAggregatorAddAndClose(t *testing.T) {
	agg := NewAggregator(Config{WindowSeconds: 3600}, nil, nil)
	for _, record := range records(t) {
		require.NoError(t, agg.Add(record))
	}

	checkSampleStats(t, agg.Close())
	assert.Empty(t, agg.Close())
}

func TestAggregatorRequiresWindow(t *testing.T) {
	agg := NewAggregator(Config{}, nil, nil)
	assert.Error(t, agg.Add(records(t)[0]))
}

func TestAggregatorRunResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "events.jsonl")
	writeEvents(t, input)
	state := &FileStateStore{Path: filepath.Join(dir, "state", "aggregate.json"), WindowSeconds: 3600}

	sink := &captureSink{}
	agg := NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, sink, nil)
	require.NoError(t, agg.Run(context.Background(), input))
	checkSampleStats(t, sink.stats)

	last, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3700), last)

	again := &captureSink{}
	agg = NewAggregator(Config{WindowSeconds: 3600, StateStore: state}, again, nil)
	require.NoError(t, agg.Run(context.Background(), input))
	assert.Empty(t, again.stats)

	// an explicit recompute ignores the checkpoint
	recomputed := &captureSink{}
	agg = NewAggregator(Config{WindowSeconds: 3600, StateStore: state, RecomputeFrom: 1}, recomputed, nil)
	require.NoError(t, agg.Run(context.Background(), input))
	checkSampleStats(t, recomputed.stats)
}

func TestAggregatorRunSkipsBadLines(t *testing.T) {
	input := filepath.Join(t.TempDir(), "events.jsonl")
	writeEvents(t, input)
	file, err := os.OpenFile(input, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString("not json\n\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	sink := &captureSink{}
	agg := NewAggregator(Config{WindowSeconds: 3600}, sink, nil)
	require.NoError(t, agg.Run(context.Background(), input))
	checkSampleStats(t, sink.stats)
}

func TestAggregatorRunRequiresSink(t *testing.T) {
	agg := NewAggregator(Config{WindowSeconds: 3600}, nil, nil)
	assert.Error(t, agg.Run(context.Background(), "missing.jsonl"))
}

func TestFileStateStoreIgnoresOtherWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	hourly := &FileStateStore{Path: path, WindowSeconds: 3600}
	require.NoError(t, hourly.Save(context.Background(), 42))

	daily := &FileStateStore{Path: path, WindowSeconds: 86400}
	_, ok, err := daily.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	last, ok, err := hourly.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), last)
}

func TestFileStateStoreMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	missing := &FileStateStore{Path: filepath.Join(dir, "none.json"), WindowSeconds: 3600}
	_, ok, err := missing.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	path := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	corrupt := &FileStateStore{Path: path, WindowSeconds: 3600}
	_, _, err = corrupt.Load(context.Background())
	assert.ErrorContains(t, err, "decode checkpoint")

	// a save replaces the bad record
	require.NoError(t, corrupt.Save(context.Background(), 7200))
	last, ok, err := corrupt.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(7200), last)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestComputeAPR(t *testing.T) {
	rate := "0.001"
	apr := computeAPR(&rate, nil, 86400)
	require.NotNil(t, apr)
	// half of 0.1% per day, annualized
	assert.Equal(t, "0.1825", *apr)

	assert.Nil(t, computeAPR(nil, nil, 86400))
	assert.Nil(t, computeAPR(&rate, nil, 0))
}

type failingSink struct{}

func (failingSink) UpsertPoolWindowStats(context.Context, []model.PoolWindowStats) error {
	return assert.AnError
}

func TestMultiSink(t *testing.T) {
	first, second := &captureSink{}, &captureSink{}
	stats := []model.PoolWindowStats{{Pool: poolA}}

	require.NoError(t, MultiSink{first, second}.UpsertPoolWindowStats(context.Background(), stats))
	assert.Len(t, first.stats, 1)
	assert.Len(t, second.stats, 1)

	third := &captureSink{}
	err := MultiSink{failingSink{}, third}.UpsertPoolWindowStats(context.Background(), stats)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, third.calls)
}
