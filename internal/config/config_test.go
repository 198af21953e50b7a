package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReplayDefaults(t *testing.T) {
	cfg, err := LoadReplay("", nil)
	require.NoError(t, err)

	assert.Equal(t, "./data/events.jsonl", cfg.Out)
	assert.Equal(t, uint8(18), cfg.Decimals)
	assert.Equal(t, "0x0000000000000000000000000000000000000000", cfg.BaseAsset)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.FailFast)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 24*time.Hour, cfg.SummaryWindow)
}

func TestLoadReplayPrecedence(t *testing.T) {
	t.Setenv("AMM_PG_DSN", "postgres://env")
	t.Setenv("AMM_DECIMALS", "8")

	path := filepath.Join(t.TempDir(), "amm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("script: ./cmds.jsonl\nout: ./file.jsonl\nfail-fast: true\n"), 0o644))

	flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	flags.String("out", "", "")
	flags.Int("decimals", 18, "")
	require.NoError(t, flags.Parse([]string{"--decimals=6"}))

	cfg, err := LoadReplay(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "./cmds.jsonl", cfg.Script)
	assert.Equal(t, "./file.jsonl", cfg.Out)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, "postgres://env", cfg.PGDSN)
	assert.Equal(t, uint8(6), cfg.Decimals, "a set flag wins over env")
}

func TestLoadReplayRejectsBadInput(t *testing.T) {
	_, err := LoadReplay(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	t.Setenv("AMM_DECIMALS", "99")
	_, err = LoadReplay("", nil)
	assert.Error(t, err)

	t.Setenv("AMM_DECIMALS", "18")
	t.Setenv("AMM_SUMMARY_WINDOW", "10ms")
	_, err = LoadReplay("", nil)
	assert.Error(t, err)
}

func TestLoadAggregate(t *testing.T) {
	t.Setenv("AMM_IN", "./events.jsonl")

	cfg, err := LoadAggregate("", nil)
	require.NoError(t, err)
	assert.Equal(t, "./events.jsonl", cfg.Input)
	assert.Equal(t, "1h", cfg.Window)
	assert.Equal(t, 1000, cfg.BatchSize)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1700000000")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp(" ")
	require.NoError(t, err)
	assert.Zero(t, ts)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestLoadAggregateInflux(t *testing.T) {
	t.Setenv("AMM_INFLUX_URL", "http://localhost:8086")
	_, err := LoadAggregate("", nil)
	assert.Error(t, err)

	t.Setenv("AMM_INFLUX_BUCKET", "amm")
	cfg, err := LoadAggregate("", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8086", cfg.InfluxURL)
	assert.Equal(t, "amm", cfg.InfluxBucket)
}
