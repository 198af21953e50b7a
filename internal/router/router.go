// Package router swaps one pooled asset for another through the common base asset.
package router

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/pool"
	"liquidityEngine/internal/registry"
)

type Router struct {
	registry *registry.Registry
	logger   *zap.Logger
}

func New(reg *registry.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{registry: reg, logger: logger}
}

// Route is the result of a two-hop swap.
type Route struct {
	Source      *pool.ReservePool
	Destination *pool.ReservePool
	// BaseAmount is the base asset carried from the source pool into the destination pool.
	BaseAmount *uint256.Int
	AmountOut  *uint256.Int
	// SourceState and DestinationState are the pools right after the swap.
	SourceState      pool.Snapshot
	DestinationState pool.Snapshot
}

// SwapAssetForAsset sells amount of src for dst, paying at least minAmountOut to caller.
//
// The source pool keeps the base it pays out and hands it straight to the destination
// pool; both legs run in one transaction, so a failed second leg undoes the first.
// A non-zero amount must meet minAmountOut even when the first leg rounds down to zero.
// onCommit runs once both legs have settled, with the pools still locked.
func (r *Router) SwapAssetForAsset(caller, src, dst common.Address, amount, minAmountOut *uint256.Int, onCommit ...func()) (*Route, error) {
	srcPool, dstPool, err := r.pools(src, dst)
	if err != nil {
		return nil, err
	}

	route := &Route{Source: srcPool, Destination: dstPool}
	err = pool.Update(func(tx *pool.Txn) error {
		mid, err := tx.SwapExactInput(srcPool, caller, pool.SideAsset, amount, new(uint256.Int), srcPool.Account())
		if err != nil {
			return fmt.Errorf("swap %s for base: %w", src.Hex(), err)
		}
		out, err := tx.SwapExactInput(dstPool, srcPool.Account(), pool.SideBase, mid, minAmountOut, caller)
		if err != nil {
			return fmt.Errorf("swap base for %s: %w", dst.Hex(), err)
		}
		if !amount.IsZero() && out.Lt(minAmountOut) {
			return fmt.Errorf("%w: output %s below minimum %s", pool.ErrSlippageExceeded, out.Dec(), minAmountOut.Dec())
		}
		for _, fn := range onCommit {
			tx.OnCommit(fn)
		}
		route.BaseAmount, route.AmountOut = mid, out
		if route.SourceState, err = tx.Snapshot(srcPool); err != nil {
			return err
		}
		route.DestinationState, err = tx.Snapshot(dstPool)
		return err
	}, srcPool, dstPool)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("routed swap",
		zap.Stringer("caller", caller),
		zap.String("src", src.Hex()),
		zap.String("dst", dst.Hex()),
		zap.String("amount_in", amount.Dec()),
		zap.String("base_amount", route.BaseAmount.Dec()),
		zap.String("amount_out", route.AmountOut.Dec()),
	)
	return route, nil
}

// Quote prices a two-hop swap at the current reserves without executing it.
func (r *Router) Quote(src, dst common.Address, amount *uint256.Int) (*uint256.Int, error) {
	srcPool, dstPool, err := r.pools(src, dst)
	if err != nil {
		return nil, err
	}

	// simulate both legs and never commit
	tx := pool.Begin(srcPool, dstPool)
	defer tx.Rollback()

	mid, err := tx.SwapExactInput(srcPool, common.Address{}, pool.SideAsset, amount, new(uint256.Int), srcPool.Account())
	if err != nil {
		return nil, err
	}
	return tx.SwapExactInput(dstPool, srcPool.Account(), pool.SideBase, mid, new(uint256.Int), common.Address{})
}

func (r *Router) pools(src, dst common.Address) (*pool.ReservePool, *pool.ReservePool, error) {
	if src == dst {
		return nil, nil, fmt.Errorf("%w: source and destination are both %s", registry.ErrInvalidAsset, src.Hex())
	}
	srcPool, err := r.registry.Lookup(src)
	if err != nil {
		return nil, nil, err
	}
	dstPool, err := r.registry.Lookup(dst)
	if err != nil {
		return nil, nil, err
	}
	return srcPool, dstPool, nil
}
