package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/aggregate"
	"liquidityEngine/internal/config"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/storage/influx"
	"liquidityEngine/internal/storage/postgres"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	windowDuration, err := time.ParseDuration(cfg.Window)
	if err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if windowDuration <= 0 {
		return fmt.Errorf("window must be positive")
	}
	windowSeconds := uint64(windowDuration.Seconds())
	if windowSeconds == 0 {
		return fmt.Errorf("window must be at least 1s")
	}

	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sinks      aggregate.MultiSink
		stateStore aggregate.StateStore
	)
	if cfg.StateFile != "" {
		stateStore = &aggregate.FileStateStore{Path: cfg.StateFile, WindowSeconds: windowSeconds}
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN, "")
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
		if stateStore == nil {
			stateStore = &aggregate.DBStateStore{Store: store, WindowSeconds: windowSeconds}
		}
	}

	if cfg.InfluxURL != "" {
		client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer client.Close()
		sinks = append(sinks, influx.NewStatsSink(client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket), "ammctl"))
	}

	var sink aggregate.StatsSink = sinks
	if len(sinks) == 0 {
		sink = logSink{logger: logger}
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		Decimals:      cfg.Decimals,
		StateStore:    stateStore,
	}, sink, logger)

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("influx_url", cfg.InfluxURL),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", recomputeFrom),
	)

	return agg.Run(ctx, cfg.Input)
}

// logSink reports window stats in the log when no database is configured.
type logSink struct {
	logger *zap.Logger
}

func (s logSink) UpsertPoolWindowStats(_ context.Context, stats []model.PoolWindowStats) error {
	for _, window := range stats {
		fields := []zap.Field{
			zap.String("pool", window.Pool),
			zap.Time("window_start", window.WindowStart),
			zap.Uint64("swaps", window.SwapCount),
			zap.Uint64("liquidity_events", window.LiquidityEvents),
			zap.String("volume_asset", window.VolumeAsset),
			zap.String("volume_base", window.VolumeBase),
			zap.String("fee_asset", window.FeeAsset),
			zap.String("fee_base", window.FeeBase),
		}
		if window.APR != nil {
			fields = append(fields, zap.String("apr", *window.APR))
		}
		s.logger.Info("window stats", fields...)
	}
	return nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
