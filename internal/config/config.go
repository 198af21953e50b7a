package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AMM"

// ReplayConfig holds configuration values for the replay command.
type ReplayConfig struct {
	Script     string
	Out        string
	PGDSN      string
	RunID      string
	Decimals   uint8
	BaseAsset  string
	Registry   string
	NamePrefix string
	FailFast   bool
	LogLevel   string

	MaxRetries    int
	RetryBackoff  time.Duration
	SummaryWindow time.Duration
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"out":            "./data/events.jsonl",
		"decimals":       18,
		"base-asset":     "0x0000000000000000000000000000000000000000",
		"registry":       "0x00000000000000000000000000000000000a3a3a",
		"name-prefix":    "Liquidity Share",
		"fail-fast":      false,
		"log-level":      "info",
		"max-retries":    3,
		"retry-backoff":  "500ms",
		"summary-window": "24h",
	})
	if err != nil {
		return ReplayConfig{}, err
	}

	decimals := v.GetInt("decimals")
	if decimals < 0 || decimals > 77 {
		return ReplayConfig{}, fmt.Errorf("decimals out of range: %d", decimals)
	}
	summaryWindow := v.GetDuration("summary-window")
	if summaryWindow < time.Second {
		return ReplayConfig{}, fmt.Errorf("summary window must be at least 1s: %s", summaryWindow)
	}

	cfg := ReplayConfig{
		Script:     v.GetString("script"),
		Out:        v.GetString("out"),
		PGDSN:      v.GetString("pg-dsn"),
		RunID:      v.GetString("run-id"),
		Decimals:   uint8(decimals),
		BaseAsset:  v.GetString("base-asset"),
		Registry:   v.GetString("registry"),
		NamePrefix: v.GetString("name-prefix"),
		FailFast:   v.GetBool("fail-fast"),
		LogLevel:   v.GetString("log-level"),

		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		SummaryWindow: summaryWindow,
	}

	return cfg, nil
}

// load builds a viper instance from defaults, AMM_* env vars, bound flags and the config file.
func load(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}
