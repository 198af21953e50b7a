// Package replay drives an engine from a JSONL script of commands.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/engine"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/units"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	Decimals uint8
	// FailFast stops at the first rejected command instead of counting it.
	FailFast bool
	// SummaryWindow sizes the per-pool summary windows, in seconds.
	SummaryWindow uint64
	// Start is the time of commands before the first explicit ts; defaults to now.
	Start time.Time
}

// Result counts what a replay did.
type Result struct {
	Commands int
	Applied  int
	Rejected int
	Expected int
	Summary  []model.PoolWindowStats
}

// Runner feeds script commands to an engine it owns.
type Runner struct {
	cfg     RunConfig
	engine  *engine.Engine
	summary *summarySink
	clock   *clock
	logger  *zap.Logger
}

// NewRunner builds the engine from engineCfg. Events go to engineCfg.Sink and to the
// runner's summary; the engine clock follows the script timestamps.
func NewRunner(cfg RunConfig, engineCfg engine.Config, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SummaryWindow == 0 {
		cfg.SummaryWindow = 24 * 60 * 60
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}

	summary := newSummarySink(cfg.SummaryWindow, cfg.Decimals, logger)
	clk := &clock{start: cfg.Start.UTC().Truncate(time.Second)}

	engineCfg.Sink = storage.Multi{engineCfg.Sink, summary}
	engineCfg.Now = clk.Now
	if engineCfg.Logger == nil {
		engineCfg.Logger = logger
	}

	eng, err := engine.New(engineCfg)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:     cfg,
		engine:  eng,
		summary: summary,
		clock:   clk,
		logger:  logger,
	}, nil
}

func (r *Runner) Engine() *engine.Engine { return r.engine }

// Run replays the script at path.
func (r *Runner) Run(ctx context.Context, path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open script: %w", err)
	}
	defer file.Close()

	return r.RunReader(ctx, file)
}

// RunReader replays a script read from input. The engine state is checked after
// every command and a violation always ends the replay.
func (r *Runner) RunReader(ctx context.Context, input io.Reader) (Result, error) {
	scanner := bufio.NewScanner(input)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var result Result
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		result.Commands++

		var cmd Command
		err := json.Unmarshal(line, &cmd)
		if err == nil {
			err = r.clock.advance(cmd.TS)
		}
		if err == nil {
			err = r.apply(ctx, cmd)
			switch {
			case cmd.ExpectError && err != nil:
				result.Expected++
				r.logger.Debug("command rejected as expected", zap.Int("line", lineNo), zap.String("op", cmd.Op), zap.Error(err))
				err = nil
			case cmd.ExpectError:
				err = ErrUnexpectedSuccess
			case err == nil:
				result.Applied++
			}
		}

		if err != nil {
			result.Rejected++
			r.logger.Warn("command rejected", zap.Int("line", lineNo), zap.String("op", cmd.Op), zap.Error(err))
			if r.cfg.FailFast {
				return result, fmt.Errorf("line %d: %s: %w", lineNo, cmd.Op, err)
			}
		}

		if err := r.engine.CheckInvariants(); err != nil {
			return result, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan script: %w", err)
	}

	result.Summary = r.summary.close()
	for _, stats := range result.Summary {
		r.logger.Info("pool summary",
			zap.String("pool", stats.Pool),
			zap.Time("window_start", stats.WindowStart),
			zap.Uint64("swaps", stats.SwapCount),
			zap.Uint64("liquidity_events", stats.LiquidityEvents),
			zap.String("volume_asset", stats.VolumeAsset),
			zap.String("volume_base", stats.VolumeBase),
			zap.String("fee_asset", stats.FeeAsset),
			zap.String("fee_base", stats.FeeBase),
		)
	}

	r.logger.Info("replay complete",
		zap.Int("commands", result.Commands),
		zap.Int("applied", result.Applied),
		zap.Int("rejected", result.Rejected),
		zap.Int("expected_errors", result.Expected),
	)

	return result, nil
}

func (r *Runner) apply(ctx context.Context, cmd Command) error {
	f := &fields{decimals: r.cfg.Decimals}
	eng := r.engine

	switch cmd.Op {
	case OpFund:
		asset := f.optionalAddress("asset", cmd.Asset, eng.BaseAsset())
		account := f.address("account", cmd.Account)
		amount := f.amount("amount", cmd.Amount)
		if f.err != nil {
			return f.err
		}
		eng.Custody().Credit(asset, account, amount)
		return nil

	case OpCreatePool:
		asset := f.address("asset", cmd.Asset)
		if f.err != nil {
			return f.err
		}
		_, err := eng.CreatePool(ctx, asset, cmd.Name, cmd.Symbol)
		return err

	case OpAddLiquidity:
		asset := f.address("asset", cmd.Asset)
		caller := f.address("caller", cmd.Caller)
		maxAsset := f.amount("max_asset", cmd.MaxAsset)
		base := f.amount("base", cmd.Base)
		if f.err != nil {
			return f.err
		}
		minted, err := eng.AddLiquidity(ctx, asset, caller, maxAsset, base)
		if err == nil {
			r.logger.Debug("liquidity added", zap.String("pool", asset.Hex()), zap.String("shares", units.Format(minted, r.cfg.Decimals)))
		}
		return err

	case OpRemoveLiquidity:
		asset := f.address("asset", cmd.Asset)
		caller := f.address("caller", cmd.Caller)
		shares := f.amount("shares", cmd.Shares)
		if f.err != nil {
			return f.err
		}
		_, _, err := eng.RemoveLiquidity(ctx, asset, caller, shares)
		return err

	case OpSwap:
		asset := f.address("asset", cmd.Asset)
		caller := f.address("caller", cmd.Caller)
		recipient := f.optionalAddress("recipient", cmd.Recipient, caller)
		amount := f.amount("amount", cmd.Amount)
		minOut := f.optionalAmount("min_out", cmd.MinOut)
		if f.err != nil {
			return f.err
		}
		side, err := pool.ParseSide(cmd.Side)
		if err != nil {
			return err
		}
		out, err := eng.SwapExactInput(ctx, asset, caller, side, amount, minOut, recipient)
		if err != nil {
			return err
		}
		return r.checkOutput(cmd, out)

	case OpSwapAssetForAsset:
		caller := f.address("caller", cmd.Caller)
		src := f.address("src", cmd.Src)
		dst := f.address("dst", cmd.Dst)
		amount := f.amount("amount", cmd.Amount)
		minOut := f.optionalAmount("min_out", cmd.MinOut)
		if f.err != nil {
			return f.err
		}
		route, err := eng.SwapAssetForAsset(ctx, caller, src, dst, amount, minOut)
		if err != nil {
			return err
		}
		return r.checkOutput(cmd, route.AmountOut)

	case OpTransferShares:
		asset := f.address("asset", cmd.Asset)
		from := f.address("from", cmd.From)
		to := f.address("to", cmd.To)
		amount := f.amount("amount", cmd.Amount)
		if f.err != nil {
			return f.err
		}
		return eng.TransferShares(ctx, asset, from, to, amount)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)
	}
}

func (r *Runner) checkOutput(cmd Command, out *uint256.Int) error {
	if cmd.ExpectOut == "" {
		return nil
	}
	f := &fields{decimals: r.cfg.Decimals}
	want := f.amount("expect_out", cmd.ExpectOut)
	if f.err != nil {
		return f.err
	}
	if !want.Eq(out) {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedOutput,
			units.Format(out, r.cfg.Decimals), units.Format(want, r.cfg.Decimals))
	}
	return nil
}

// clock is the engine time source during a replay.
type clock struct {
	start time.Time
	now   time.Time
}

func (c *clock) Now() time.Time {
	if c.now.IsZero() {
		return c.start
	}
	return c.now
}

func (c *clock) advance(ts uint64) error {
	if ts == 0 {
		if c.now.IsZero() {
			c.now = c.start
		}
		return nil
	}
	next := time.Unix(int64(ts), 0).UTC()
	if !c.now.IsZero() && next.Before(c.now) {
		return fmt.Errorf("%w: %d is before %d", ErrTimestampBackwards, ts, c.now.Unix())
	}
	c.now = next
	return nil
}
