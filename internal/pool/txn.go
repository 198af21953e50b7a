package pool

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/pricing"
)

// Txn is an all-or-nothing unit of work over one or more pools.
//
// Begin locks the pools in ascending custody account order, then asset order. State changes are applied
// immediately and journaled; custody transfers are staged and netted per asset and
// account, then settled on Commit with every debit before any credit. A failed debit
// refunds the debits already made and reverts the journal, so either everything
// becomes visible or nothing does.
type Txn struct {
	pools     []*ReservePool
	journal   []func()
	transfers []transfer
	onCommit  []func()
	done      bool
}

type transfer struct {
	asset  common.Address
	from   common.Address
	to     common.Address
	amount *uint256.Int
}

// Begin locks the given pools and starts a transaction over them.
func Begin(pools ...*ReservePool) *Txn {
	set := make([]*ReservePool, 0, len(pools))
	for _, p := range pools {
		if p == nil || containsPool(set, p) {
			continue
		}
		set = append(set, p)
	}
	sort.Slice(set, func(i, j int) bool {
		if c := bytes.Compare(set[i].account[:], set[j].account[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(set[i].asset[:], set[j].asset[:]) < 0
	})
	for _, p := range set {
		p.mu.Lock()
	}
	return &Txn{pools: set}
}

// Update runs fn in a transaction over pools, committing if fn succeeds and
// rolling back otherwise.
func Update(fn func(tx *Txn) error, pools ...*ReservePool) error {
	tx := Begin(pools...)
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Commit settles the staged custody transfers and releases the pools.
func (tx *Txn) Commit() error {
	if tx.done {
		return ErrTxnDone
	}
	defer tx.release()

	if err := tx.settle(); err != nil {
		tx.revert()
		return err
	}
	for _, fn := range tx.onCommit {
		fn()
	}
	return nil
}

// OnCommit registers fn to run after a successful settlement, before the pools are
// released. Nothing registered runs if the transaction rolls back or settlement fails.
func (tx *Txn) OnCommit(fn func()) {
	if tx.done || fn == nil {
		return
	}
	tx.onCommit = append(tx.onCommit, fn)
}

// Rollback reverts every change made in the transaction and releases the pools.
// Calling it on a finished transaction is a no-op.
func (tx *Txn) Rollback() {
	if tx.done {
		return
	}
	defer tx.release()
	tx.revert()
}

// AddLiquidity is the transactional form of ReservePool.AddLiquidity.
func (tx *Txn) AddLiquidity(p *ReservePool, caller common.Address, maxAssetAmount, baseAmount *uint256.Int) (*uint256.Int, error) {
	if err := tx.check(p); err != nil {
		return nil, err
	}

	var requiredAsset, minted *uint256.Int
	if p.shares.total.IsZero() {
		if maxAssetAmount.IsZero() && baseAmount.IsZero() {
			return new(uint256.Int), nil
		}
		if maxAssetAmount.IsZero() || baseAmount.IsZero() {
			return nil, fmt.Errorf("%w: asset %s, base %s", ErrUnbalancedDeposit, maxAssetAmount.Dec(), baseAmount.Dec())
		}
		requiredAsset = maxAssetAmount.Clone()
		minted = baseAmount.Clone()
	} else {
		var err error
		requiredAsset, err = pricing.Proportion(baseAmount, p.assetReserve, p.baseReserve)
		if err != nil {
			return nil, err
		}
		if maxAssetAmount.Lt(requiredAsset) {
			return nil, fmt.Errorf("%w: offered %s, required %s", ErrInsufficientAssetAmount, maxAssetAmount.Dec(), requiredAsset.Dec())
		}
		minted, err = pricing.Proportion(baseAmount, p.shares.total, p.baseReserve)
		if err != nil {
			return nil, err
		}
	}

	assetReserve, overflow := new(uint256.Int).AddOverflow(p.assetReserve, requiredAsset)
	if overflow {
		return nil, fmt.Errorf("%w: asset reserve", pricing.ErrOverflow)
	}
	baseReserve, overflow := new(uint256.Int).AddOverflow(p.baseReserve, baseAmount)
	if overflow {
		return nil, fmt.Errorf("%w: base reserve", pricing.ErrOverflow)
	}
	if err := tx.mint(p, caller, minted); err != nil {
		return nil, err
	}
	tx.setReserves(p, assetReserve, baseReserve)
	tx.stage(p.asset, caller, p.account, requiredAsset)
	tx.stage(p.baseAsset, caller, p.account, baseAmount)

	p.logger.Debug("liquidity added",
		zap.Stringer("caller", caller),
		zap.String("asset_in", requiredAsset.Dec()),
		zap.String("base_in", baseAmount.Dec()),
		zap.String("shares", minted.Dec()),
	)
	return minted, nil
}

// RemoveLiquidity is the transactional form of ReservePool.RemoveLiquidity.
func (tx *Txn) RemoveLiquidity(p *ReservePool, caller common.Address, shares *uint256.Int) (assetOut, baseOut *uint256.Int, err error) {
	if err := tx.check(p); err != nil {
		return nil, nil, err
	}

	balance := p.shares.BalanceOf(caller)
	if balance.Lt(shares) {
		return nil, nil, fmt.Errorf("%w: %s holds %s, burning %s", ErrBurnExceedsBalance, caller.Hex(), balance.Dec(), shares.Dec())
	}
	assetOut, baseOut, err = p.payout(shares)
	if err != nil {
		return nil, nil, err
	}
	if shares.IsZero() {
		return assetOut, baseOut, nil
	}

	if err := tx.burn(p, caller, shares); err != nil {
		return nil, nil, err
	}
	tx.setReserves(p,
		new(uint256.Int).Sub(p.assetReserve, assetOut),
		new(uint256.Int).Sub(p.baseReserve, baseOut),
	)
	tx.stage(p.asset, p.account, caller, assetOut)
	tx.stage(p.baseAsset, p.account, caller, baseOut)

	p.logger.Debug("liquidity removed",
		zap.Stringer("caller", caller),
		zap.String("shares", shares.Dec()),
		zap.String("asset_out", assetOut.Dec()),
		zap.String("base_out", baseOut.Dec()),
	)
	return assetOut, baseOut, nil
}

// SwapExactInput is the transactional form of ReservePool.SwapExactInput. The input is
// paid by payer, which may be another pool's account inside the same transaction.
func (tx *Txn) SwapExactInput(p *ReservePool, payer common.Address, inputSide Side, amountIn, minAmountOut *uint256.Int, recipient common.Address) (*uint256.Int, error) {
	if err := tx.check(p); err != nil {
		return nil, err
	}
	if amountIn.IsZero() {
		return new(uint256.Int), nil
	}

	inReserve, outReserve := p.reservesFor(inputSide)
	out, err := pricing.QuoteWithFee(amountIn, inReserve, outReserve)
	if err != nil {
		return nil, err
	}
	if out.Lt(minAmountOut) {
		return nil, fmt.Errorf("%w: output %s below minimum %s", ErrSlippageExceeded, out.Dec(), minAmountOut.Dec())
	}

	newIn, overflow := new(uint256.Int).AddOverflow(inReserve, amountIn)
	if overflow {
		return nil, fmt.Errorf("%w: %s reserve", pricing.ErrOverflow, inputSide)
	}
	newOut := new(uint256.Int).Sub(outReserve, out)
	if inputSide == SideAsset {
		tx.setReserves(p, newIn, newOut)
	} else {
		tx.setReserves(p, newOut, newIn)
	}
	tx.stage(p.AssetOf(inputSide), payer, p.account, amountIn)
	tx.stage(p.AssetOf(inputSide.Opposite()), p.account, recipient, out)

	p.logger.Debug("swap",
		zap.Stringer("payer", payer),
		zap.Stringer("recipient", recipient),
		zap.Stringer("input_side", inputSide),
		zap.String("amount_in", amountIn.Dec()),
		zap.String("amount_out", out.Dec()),
	)
	return out, nil
}

// TransferShares is the transactional form of ReservePool.TransferShares.
func (tx *Txn) TransferShares(p *ReservePool, from, to common.Address, amount *uint256.Int) error {
	if err := tx.check(p); err != nil {
		return err
	}
	if err := p.shares.Transfer(from, to, amount); err != nil {
		return err
	}
	amount = amount.Clone()
	tx.journal = append(tx.journal, func() {
		_ = p.shares.Transfer(to, from, amount)
	})
	return nil
}

// Snapshot is a pool's reserves and share supply as seen inside a transaction.
type Snapshot struct {
	Reserves
	TotalShares *uint256.Int
}

// Snapshot reads p without leaving the transaction. Values reflect uncommitted changes.
func (tx *Txn) Snapshot(p *ReservePool) (Snapshot, error) {
	if err := tx.check(p); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Reserves:    Reserves{Asset: p.assetReserve.Clone(), Base: p.baseReserve.Clone()},
		TotalShares: p.shares.TotalSupply(),
	}, nil
}

func (tx *Txn) check(p *ReservePool) error {
	if tx.done {
		return ErrTxnDone
	}
	if !containsPool(tx.pools, p) {
		return fmt.Errorf("%w: %s", ErrNotInTxn, p.asset.Hex())
	}
	return nil
}

// setReserves replaces the reserve pointers; previous values are never mutated in place.
func (tx *Txn) setReserves(p *ReservePool, assetReserve, baseReserve *uint256.Int) {
	prevAsset, prevBase := p.assetReserve, p.baseReserve
	tx.journal = append(tx.journal, func() {
		p.assetReserve, p.baseReserve = prevAsset, prevBase
	})
	p.assetReserve, p.baseReserve = assetReserve, baseReserve
}

func (tx *Txn) mint(p *ReservePool, holder common.Address, amount *uint256.Int) error {
	amount = amount.Clone()
	if err := p.shares.Mint(holder, amount); err != nil {
		return err
	}
	tx.journal = append(tx.journal, func() {
		_ = p.shares.Burn(holder, amount)
	})
	return nil
}

func (tx *Txn) burn(p *ReservePool, holder common.Address, amount *uint256.Int) error {
	amount = amount.Clone()
	if err := p.shares.Burn(holder, amount); err != nil {
		return err
	}
	tx.journal = append(tx.journal, func() {
		_ = p.shares.Mint(holder, amount)
	})
	return nil
}

func (tx *Txn) stage(asset, from, to common.Address, amount *uint256.Int) {
	if amount.IsZero() || from == to {
		return
	}
	tx.transfers = append(tx.transfers, transfer{asset: asset, from: from, to: to, amount: amount.Clone()})
}

type position struct {
	asset  common.Address
	holder common.Address
	in     *uint256.Int
	out    *uint256.Int
}

// settle nets the staged transfers and applies them to the custody ledger.
func (tx *Txn) settle() error {
	if len(tx.transfers) == 0 {
		return nil
	}
	ledger := tx.pools[0].custody
	for _, p := range tx.pools[1:] {
		if p.custody != ledger {
			return fmt.Errorf("pools %s and %s use different custody ledgers", tx.pools[0].asset.Hex(), p.asset.Hex())
		}
	}

	type key struct{ asset, holder common.Address }
	index := make(map[key]int)
	positions := make([]*position, 0, 2*len(tx.transfers))
	get := func(asset, holder common.Address) *position {
		k := key{asset: asset, holder: holder}
		if i, ok := index[k]; ok {
			return positions[i]
		}
		index[k] = len(positions)
		pos := &position{asset: asset, holder: holder, in: new(uint256.Int), out: new(uint256.Int)}
		positions = append(positions, pos)
		return pos
	}

	for _, t := range tx.transfers {
		from := get(t.asset, t.from)
		if _, overflow := from.out.AddOverflow(from.out, t.amount); overflow {
			return fmt.Errorf("%w: settlement", pricing.ErrOverflow)
		}
		to := get(t.asset, t.to)
		if _, overflow := to.in.AddOverflow(to.in, t.amount); overflow {
			return fmt.Errorf("%w: settlement", pricing.ErrOverflow)
		}
	}

	debited := make([]*position, 0, len(positions))
	for _, pos := range positions {
		if !pos.out.Gt(pos.in) {
			continue
		}
		amount := new(uint256.Int).Sub(pos.out, pos.in)
		if err := ledger.Debit(pos.asset, pos.holder, amount); err != nil {
			for _, done := range debited {
				ledger.Credit(done.asset, done.holder, new(uint256.Int).Sub(done.out, done.in))
			}
			return fmt.Errorf("settle %s: %w", pos.asset.Hex(), err)
		}
		debited = append(debited, pos)
	}

	for _, pos := range positions {
		if pos.in.Gt(pos.out) {
			ledger.Credit(pos.asset, pos.holder, new(uint256.Int).Sub(pos.in, pos.out))
		}
	}
	return nil
}

func (tx *Txn) revert() {
	for i := len(tx.journal) - 1; i >= 0; i-- {
		tx.journal[i]()
	}
	tx.journal = nil
	tx.transfers = nil
	tx.onCommit = nil
}

func (tx *Txn) release() {
	tx.done = true
	for i := len(tx.pools) - 1; i >= 0; i-- {
		tx.pools[i].mu.Unlock()
	}
}

func containsPool(pools []*ReservePool, p *ReservePool) bool {
	for _, existing := range pools {
		if existing == p {
			return true
		}
	}
	return false
}
