package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ammctl",
		Short:        "Constant-product liquidity engine tools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSONL command script through the engine",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("script", "", "input command script JSONL")
	replayCmd.Flags().String("out", "./data/events.jsonl", "output events JSONL")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and pool states")
	replayCmd.Flags().String("run-id", "", "run id for Postgres rows (default: random uuid)")
	replayCmd.Flags().Int("decimals", 18, "decimals of script amounts")
	replayCmd.Flags().String("base-asset", "0x0000000000000000000000000000000000000000", "base asset address")
	replayCmd.Flags().String("registry", "0x00000000000000000000000000000000000a3a3a", "registry address pool accounts derive from")
	replayCmd.Flags().String("name-prefix", "Liquidity Share", "name prefix of auto-created pools")
	replayCmd.Flags().Bool("fail-fast", false, "stop at the first rejected command")
	replayCmd.Flags().Int("max-retries", 3, "maximum Postgres write retries")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial Postgres retry backoff")
	replayCmd.Flags().Duration("summary-window", 24*time.Hour, "per-pool summary window")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate an events JSONL into per-pool window stats",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input events JSONL")
	aggregateCmd.Flags().String("window", "1h", "aggregation window (e.g. 5m, 1h, 24h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN; stats are logged when empty")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().Int("decimals", 18, "decimals used to render amounts")
	aggregateCmd.Flags().String("influx-url", "", "optional InfluxDB URL for window stats")
	aggregateCmd.Flags().String("influx-token", "", "InfluxDB auth token")
	aggregateCmd.Flags().String("influx-org", "", "InfluxDB organization")
	aggregateCmd.Flags().String("influx-bucket", "", "InfluxDB bucket")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against given reserves",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("amount", "", "input amount")
	quoteCmd.Flags().String("in-reserve", "", "reserve of the input side")
	quoteCmd.Flags().String("out-reserve", "", "reserve of the output side")
	quoteCmd.Flags().Uint8("decimals", 18, "decimals of amounts")

	root.AddCommand(quoteCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func parseAddress(name, input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, input)
	}
	return common.HexToAddress(input), nil
}
