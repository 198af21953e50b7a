package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityEngine/internal/config"
	"liquidityEngine/internal/engine"
	"liquidityEngine/internal/replay"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Script == "" {
		return fmt.Errorf("script path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	baseAsset, err := parseAddress("base asset", cfg.BaseAsset)
	if err != nil {
		return err
	}
	registryAddress, err := parseAddress("registry", cfg.Registry)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := storage.Multi{storage.NewJsonlStorage(cfg.Out)}

	var store *postgres.Store
	if cfg.PGDSN != "" {
		runID := cfg.RunID
		if runID == "" {
			runID = uuid.NewString()
		}
		store, err = postgres.NewStore(ctx, cfg.PGDSN, runID)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, &storage.Retrying{
			Sink:       store,
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.RetryBackoff,
			Logger:     logger,
		})
		logger.Info("postgres sink enabled", zap.String("pg_dsn", redactDSN(cfg.PGDSN)), zap.String("run_id", runID))
	}

	registry := prometheus.NewRegistry()
	runner, err := replay.NewRunner(replay.RunConfig{
		Decimals:      cfg.Decimals,
		FailFast:      cfg.FailFast,
		SummaryWindow: uint64(cfg.SummaryWindow / time.Second),
	}, engine.Config{
		BaseAsset:       baseAsset,
		RegistryAddress: registryAddress,
		NamePrefix:      cfg.NamePrefix,
		Sink:            sinks,
		Registerer:      registry,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("replay start",
		zap.String("script", cfg.Script),
		zap.String("out", cfg.Out),
		zap.Uint8("decimals", cfg.Decimals),
		zap.Stringer("base_asset", baseAsset),
		zap.Stringer("registry", registryAddress),
		zap.Bool("fail_fast", cfg.FailFast),
	)

	_, runErr := runner.Run(ctx, cfg.Script)

	if store != nil {
		if err := store.UpsertPoolStates(ctx, runner.Engine().States()); err != nil {
			logger.Error("store pool states", zap.Error(err))
		}
	}

	families, err := registry.Gather()
	if err != nil {
		logger.Warn("gather metrics", zap.Error(err))
	}
	logMetrics(logger, families)

	return runErr
}

// logMetrics logs every counter series; histograms are reduced to their sample count.
func logMetrics(logger *zap.Logger, families []*dto.MetricFamily) {
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			fields := make([]zap.Field, 0, len(metric.GetLabel())+2)
			fields = append(fields, zap.String("metric", family.GetName()))
			for _, label := range metric.GetLabel() {
				fields = append(fields, zap.String(label.GetName(), label.GetValue()))
			}

			switch family.GetType() {
			case dto.MetricType_COUNTER:
				fields = append(fields, zap.Float64("value", metric.GetCounter().GetValue()))
			case dto.MetricType_HISTOGRAM:
				fields = append(fields,
					zap.Uint64("count", metric.GetHistogram().GetSampleCount()),
					zap.Float64("sum_seconds", metric.GetHistogram().GetSampleSum()),
				)
			default:
				continue
			}
			logger.Info("metric", fields...)
		}
	}
}
