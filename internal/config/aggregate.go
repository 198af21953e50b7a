package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregating an event log into window stats.
type AggregateConfig struct {
	Input         string
	Window        string
	PGDSN         string
	BatchSize     int
	StateFile     string
	RecomputeFrom string
	Decimals      uint8
	LogLevel      string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"batch-size": 1000,
		"log-level":  "info",
		"window":     "1h",
		"decimals":   18,
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	decimals := v.GetInt("decimals")
	if decimals < 0 || decimals > 77 {
		return AggregateConfig{}, fmt.Errorf("decimals out of range: %d", decimals)
	}

	cfg := AggregateConfig{
		Input:         v.GetString("in"),
		Window:        v.GetString("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		RecomputeFrom: v.GetString("recompute-from"),
		Decimals:      uint8(decimals),
		LogLevel:      v.GetString("log-level"),

		InfluxURL:    v.GetString("influx-url"),
		InfluxToken:  v.GetString("influx-token"),
		InfluxOrg:    v.GetString("influx-org"),
		InfluxBucket: v.GetString("influx-bucket"),
	}
	if cfg.InfluxURL != "" && cfg.InfluxBucket == "" {
		return AggregateConfig{}, fmt.Errorf("influx bucket is required with an influx url")
	}

	return cfg, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
