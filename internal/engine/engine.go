// Package engine is the command and query surface over the pool registry, the pools and
// the router. Every committed command is reported to an event sink and counted in metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
	"liquidityEngine/internal/registry"
	"liquidityEngine/internal/router"
	"liquidityEngine/internal/storage"
)

const (
	opCreatePool        = "create_pool"
	opAddLiquidity      = "add_liquidity"
	opRemoveLiquidity   = "remove_liquidity"
	opSwap              = "swap"
	opSwapAssetForAsset = "swap_asset_for_asset"
	opTransferShares    = "transfer_shares"
)

type Config struct {
	BaseAsset common.Address
	// RegistryAddress seeds the custody accounts of created pools.
	RegistryAddress common.Address
	NamePrefix      string
	// Custody defaults to an empty MemoryLedger.
	Custody custody.Ledger
	// Sink receives committed events; nil disables them.
	Sink storage.EventSink
	// Registerer defaults to a private registry.
	Registerer prometheus.Registerer
	Logger     *zap.Logger
	// Now stamps events; defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	registry *registry.Registry
	router   *router.Router
	custody  custody.Ledger
	sink     storage.EventSink
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
	seq      atomic.Uint64
}

func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ledger := cfg.Custody
	if ledger == nil {
		ledger = custody.NewMemoryLedger()
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	pools, err := registry.New(registry.Config{
		BaseAsset:  cfg.BaseAsset,
		Address:    cfg.RegistryAddress,
		NamePrefix: cfg.NamePrefix,
		Custody:    ledger,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}

	return &Engine{
		registry: pools,
		router:   router.New(pools, logger),
		custody:  ledger,
		sink:     cfg.Sink,
		metrics:  NewMetrics(reg),
		logger:   logger,
		now:      now,
	}, nil
}

func (e *Engine) Registry() *registry.Registry { return e.registry }
func (e *Engine) Custody() custody.Ledger       { return e.custody }
func (e *Engine) BaseAsset() common.Address     { return e.registry.BaseAsset() }

// CreatePool registers an empty pool for asset.
func (e *Engine) CreatePool(ctx context.Context, asset common.Address, name, symbol string) (p *pool.ReservePool, err error) {
	done := e.track(opCreatePool)
	defer func() { done(err) }()

	var st stamp
	p, err = e.registry.CreatePoolWith(asset, name, symbol, func(*pool.ReservePool) error {
		st = e.next()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, st, poolCreatedEvent(p))
	return p, nil
}

func (e *Engine) Lookup(asset common.Address) (*pool.ReservePool, error) {
	return e.registry.Lookup(asset)
}

func (e *Engine) GetReserves(asset common.Address) (pool.Reserves, error) {
	p, err := e.registry.Lookup(asset)
	if err != nil {
		return pool.Reserves{}, err
	}
	return p.Reserves(), nil
}

func (e *Engine) GetShareBalance(asset, holder common.Address) (*uint256.Int, error) {
	p, err := e.registry.Lookup(asset)
	if err != nil {
		return nil, err
	}
	return p.ShareBalance(holder), nil
}

func (e *Engine) GetTotalShares(asset common.Address) (*uint256.Int, error) {
	p, err := e.registry.Lookup(asset)
	if err != nil {
		return nil, err
	}
	return p.TotalShares(), nil
}

// AddLiquidity deposits into the pool for asset, creating the pool on first use. A pool
// created here is only registered once its first deposit commits.
func (e *Engine) AddLiquidity(ctx context.Context, asset, caller common.Address, maxAssetAmount, baseAmount *uint256.Int) (minted *uint256.Int, err error) {
	done := e.track(opAddLiquidity)
	defer func() { done(err) }()

	var (
		before, after  pool.Snapshot
		fresh          bool
		created, added stamp
	)
	deposit := func(p *pool.ReservePool) error {
		return pool.Update(func(tx *pool.Txn) error {
			var err error
			if before, err = tx.Snapshot(p); err != nil {
				return err
			}
			if minted, err = tx.AddLiquidity(p, caller, maxAssetAmount, baseAmount); err != nil {
				return err
			}
			if after, err = tx.Snapshot(p); err != nil {
				return err
			}
			tx.OnCommit(func() {
				if fresh {
					created = e.next()
				}
				if !minted.IsZero() {
					added = e.next()
				}
			})
			return nil
		}, p)
	}

	p, isNew, err := e.registry.EnsureWith(asset, func(p *pool.ReservePool) error {
		fresh = true
		return deposit(p)
	})
	if err == nil && !isNew {
		err = deposit(p)
	}
	if err != nil {
		return nil, fmt.Errorf("add liquidity to %s: %w", asset.Hex(), err)
	}
	if isNew {
		e.emit(ctx, created, poolCreatedEvent(p))
	}
	if minted.IsZero() {
		return minted, nil
	}

	e.emit(ctx, added, model.Event{
		Kind: model.EventLiquidityAdded,
		Pool: asset.Hex(),
		Data: model.LiquidityAddedData{
			Provider:    caller.Hex(),
			AssetAmount: new(uint256.Int).Sub(after.Asset, before.Asset).Dec(),
			BaseAmount:  baseAmount.Dec(),
			Shares:      minted.Dec(),
		},
		Reserves: []model.PoolReserves{reservesRecord(asset, after)},
	})
	return minted, nil
}

// RemoveLiquidity burns shares of caller in the pool for asset.
func (e *Engine) RemoveLiquidity(ctx context.Context, asset, caller common.Address, shares *uint256.Int) (assetOut, baseOut *uint256.Int, err error) {
	done := e.track(opRemoveLiquidity)
	defer func() { done(err) }()

	p, err := e.registry.Lookup(asset)
	if err != nil {
		return nil, nil, err
	}

	var (
		after pool.Snapshot
		st    stamp
	)
	err = pool.Update(func(tx *pool.Txn) error {
		var err error
		if assetOut, baseOut, err = tx.RemoveLiquidity(p, caller, shares); err != nil {
			return err
		}
		if !shares.IsZero() {
			tx.OnCommit(func() { st = e.next() })
		}
		after, err = tx.Snapshot(p)
		return err
	}, p)
	if err != nil {
		return nil, nil, fmt.Errorf("remove liquidity from %s: %w", asset.Hex(), err)
	}
	if shares.IsZero() {
		return assetOut, baseOut, nil
	}

	e.emit(ctx, st, model.Event{
		Kind: model.EventLiquidityRemoved,
		Pool: asset.Hex(),
		Data: model.LiquidityRemovedData{
			Provider:    caller.Hex(),
			Shares:      shares.Dec(),
			AssetAmount: assetOut.Dec(),
			BaseAmount:  baseOut.Dec(),
		},
		Reserves: []model.PoolReserves{reservesRecord(asset, after)},
	})
	return assetOut, baseOut, nil
}

// SwapExactInput trades against the pool for asset, paying the output to recipient.
func (e *Engine) SwapExactInput(ctx context.Context, asset, caller common.Address, inputSide pool.Side, amountIn, minAmountOut *uint256.Int, recipient common.Address) (out *uint256.Int, err error) {
	done := e.track(opSwap)
	defer func() { done(err) }()

	p, err := e.registry.Lookup(asset)
	if err != nil {
		return nil, err
	}

	var (
		after pool.Snapshot
		st    stamp
	)
	err = pool.Update(func(tx *pool.Txn) error {
		var err error
		if out, err = tx.SwapExactInput(p, caller, inputSide, amountIn, minAmountOut, recipient); err != nil {
			return err
		}
		if !amountIn.IsZero() {
			tx.OnCommit(func() { st = e.next() })
		}
		after, err = tx.Snapshot(p)
		return err
	}, p)
	if err != nil {
		return nil, fmt.Errorf("swap on %s: %w", asset.Hex(), err)
	}
	if amountIn.IsZero() {
		return out, nil
	}

	e.emit(ctx, st, model.Event{
		Kind: model.EventSwap,
		Pool: asset.Hex(),
		Data: model.SwapData{
			Sender:    caller.Hex(),
			Recipient: recipient.Hex(),
			InputSide: inputSide.String(),
			AmountIn:  amountIn.Dec(),
			AmountOut: out.Dec(),
		},
		Reserves: []model.PoolReserves{reservesRecord(asset, after)},
	})
	return out, nil
}

// SwapAssetForAsset sells amount of src for dst through the base asset.
func (e *Engine) SwapAssetForAsset(ctx context.Context, caller, src, dst common.Address, amount, minAmountOut *uint256.Int) (route *router.Route, err error) {
	done := e.track(opSwapAssetForAsset)
	defer func() { done(err) }()

	if amount.IsZero() {
		return e.router.SwapAssetForAsset(caller, src, dst, amount, minAmountOut)
	}
	var st stamp
	route, err = e.router.SwapAssetForAsset(caller, src, dst, amount, minAmountOut, func() { st = e.next() })
	if err != nil {
		return nil, err
	}

	e.emit(ctx, st, model.Event{
		Kind: model.EventRoutedSwap,
		Pool: src.Hex(),
		Data: model.RoutedSwapData{
			Sender:          caller.Hex(),
			DestinationPool: dst.Hex(),
			AmountIn:        amount.Dec(),
			BaseAmount:      route.BaseAmount.Dec(),
			AmountOut:       route.AmountOut.Dec(),
		},
		Reserves: []model.PoolReserves{
			reservesRecord(src, route.SourceState),
			reservesRecord(dst, route.DestinationState),
		},
	})
	return route, nil
}

// TransferShares moves LP shares of the pool for asset.
func (e *Engine) TransferShares(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) (err error) {
	done := e.track(opTransferShares)
	defer func() { done(err) }()

	p, err := e.registry.Lookup(asset)
	if err != nil {
		return err
	}

	var (
		after pool.Snapshot
		st    stamp
	)
	err = pool.Update(func(tx *pool.Txn) error {
		if err := tx.TransferShares(p, from, to, amount); err != nil {
			return err
		}
		if !amount.IsZero() && from != to {
			tx.OnCommit(func() { st = e.next() })
		}
		var err error
		after, err = tx.Snapshot(p)
		return err
	}, p)
	if err != nil {
		return fmt.Errorf("transfer shares of %s: %w", asset.Hex(), err)
	}
	if amount.IsZero() || from == to {
		return nil
	}

	e.emit(ctx, st, model.Event{
		Kind: model.EventSharesTransferred,
		Pool: asset.Hex(),
		Data: model.SharesTransferredData{
			From:   from.Hex(),
			To:     to.Hex(),
			Amount: amount.Dec(),
		},
		Reserves: []model.PoolReserves{reservesRecord(asset, after)},
	})
	return nil
}

// Quote prices a single-pool swap without executing it.
func (e *Engine) Quote(asset common.Address, inputSide pool.Side, amountIn *uint256.Int) (*uint256.Int, error) {
	p, err := e.registry.Lookup(asset)
	if err != nil {
		return nil, err
	}
	return p.Quote(inputSide, amountIn)
}

// QuoteRoute prices a two-hop swap without executing it.
func (e *Engine) QuoteRoute(src, dst common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return e.router.Quote(src, dst, amount)
}

// PreviewRemove returns what burning shares of the pool for asset would pay out.
func (e *Engine) PreviewRemove(asset common.Address, shares *uint256.Int) (assetOut, baseOut *uint256.Int, err error) {
	p, err := e.registry.Lookup(asset)
	if err != nil {
		return nil, nil, err
	}
	return p.PreviewRemove(shares)
}

// States returns a storage record for every pool, ordered by asset.
func (e *Engine) States() []model.PoolState {
	pools := e.registry.Pools()
	out := make([]model.PoolState, 0, len(pools))
	for _, p := range pools {
		state := p.State()
		out = append(out, model.PoolState{
			Asset:        state.Asset.Hex(),
			BaseAsset:    state.BaseAsset.Hex(),
			Account:      state.Account.Hex(),
			Name:         state.Name,
			Symbol:       state.Symbol,
			AssetReserve: state.AssetReserve.Dec(),
			BaseReserve:  state.BaseReserve.Dec(),
			TotalShares:  state.TotalShares.Dec(),
			Holders:      len(state.Holders),
		})
	}
	return out
}

// CheckInvariants verifies every pool and that each pool account holds its reserves.
func (e *Engine) CheckInvariants() error {
	var errs []error
	for _, p := range e.registry.Pools() {
		if err := p.CheckInvariants(); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", p.Asset().Hex(), err))
			continue
		}
		// reserves and custody are read separately; callers check between commands
		reserves := p.Reserves()
		if held := e.custody.BalanceOf(p.Asset(), p.Account()); !held.Eq(reserves.Asset) {
			errs = append(errs, fmt.Errorf("%w: pool %s holds %s asset, reserve is %s",
				pool.ErrInvariantViolated, p.Asset().Hex(), held.Dec(), reserves.Asset.Dec()))
		}
		if held := e.custody.BalanceOf(p.BaseAsset(), p.Account()); !held.Eq(reserves.Base) {
			errs = append(errs, fmt.Errorf("%w: pool %s holds %s base, reserve is %s",
				pool.ErrInvariantViolated, p.Asset().Hex(), held.Dec(), reserves.Base.Dec()))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) track(operation string) func(error) {
	timer := prometheus.NewTimer(e.metrics.operationDuration.WithLabelValues(operation))
	return func(err error) {
		timer.ObserveDuration()
		e.metrics.observe(operation, err)
	}
}

// stamp places an event in commit order.
type stamp struct {
	seq uint64
	ts  uint64
}

// next takes the next sequence number. It is called from commit hooks while the pools
// an event describes are still locked, so per pool Seq order is commit order.
func (e *Engine) next() stamp {
	return stamp{seq: e.seq.Add(1), ts: uint64(e.now().Unix())}
}

// emit stores an event under st. Failures are logged and counted; the command has
// already committed and is not undone.
func (e *Engine) emit(ctx context.Context, st stamp, event model.Event) {
	event.Seq = st.seq
	event.Timestamp = st.ts
	if e.sink == nil {
		return
	}
	if err := e.sink.PutEvents(ctx, []model.Event{event}); err != nil {
		e.metrics.eventsDropped.Inc()
		e.logger.Error("store event",
			zap.Uint64("seq", event.Seq),
			zap.String("kind", string(event.Kind)),
			zap.String("pool", event.Pool),
			zap.Error(err),
		)
	}
}

// poolCreatedEvent reports p as it was registered, before any deposit.
func poolCreatedEvent(p *pool.ReservePool) model.Event {
	state := p.State()
	return model.Event{
		Kind: model.EventPoolCreated,
		Pool: state.Asset.Hex(),
		Data: model.PoolCreatedData{
			Account: state.Account.Hex(),
			Name:    state.Name,
			Symbol:  state.Symbol,
		},
		Reserves: []model.PoolReserves{{
			Pool:         state.Asset.Hex(),
			AssetReserve: "0",
			BaseReserve:  "0",
			TotalShares:  "0",
		}},
	}
}

func reservesRecord(asset common.Address, s pool.Snapshot) model.PoolReserves {
	return model.PoolReserves{
		Pool:         asset.Hex(),
		AssetReserve: s.Asset.Dec(),
		BaseReserve:  s.Base.Dec(),
		TotalShares:  s.TotalShares.Dec(),
	}
}
