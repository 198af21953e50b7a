// Package pool implements a single asset/base reserve pool with its LP share ledger.
//
// Every mutation runs inside a Txn: the pools involved are locked, state changes are
// journaled so they can be reverted, and custody transfers are only settled on commit.
package pool

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/pricing"
)

// Side names one of the two reserves of a pool.
type Side uint8

const (
	// SideAsset is the pooled asset the pool is created for.
	SideAsset Side = iota
	// SideBase is the base asset shared by every pool.
	SideBase
)

func (s Side) String() string {
	switch s {
	case SideAsset:
		return "asset"
	case SideBase:
		return "base"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Opposite returns the other side of the pool.
func (s Side) Opposite() Side {
	if s == SideAsset {
		return SideBase
	}
	return SideAsset
}

// ParseSide accepts "asset" or "base".
func ParseSide(input string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "asset":
		return SideAsset, nil
	case "base":
		return SideBase, nil
	default:
		return 0, fmt.Errorf("invalid side: %q", input)
	}
}

// Config describes a pool to create.
type Config struct {
	Asset     common.Address
	BaseAsset common.Address
	// Account is the custody account holding the pool's reserves.
	Account common.Address
	Name    string
	Symbol  string
	Custody custody.Ledger
	Logger  *zap.Logger
}

// ReservePool holds the asset and base reserves of one pair and its share ledger.
type ReservePool struct {
	mu sync.Mutex

	asset     common.Address
	baseAsset common.Address
	account   common.Address
	custody   custody.Ledger
	logger    *zap.Logger

	assetReserve *uint256.Int
	baseReserve  *uint256.Int
	shares       *ShareLedger
}

// Reserves is a copy of a pool's two reserve balances.
type Reserves struct {
	Asset *uint256.Int
	Base  *uint256.Int
}

// State is a consistent read-only snapshot of a pool.
type State struct {
	Asset        common.Address
	BaseAsset    common.Address
	Account      common.Address
	Name         string
	Symbol       string
	AssetReserve *uint256.Int
	BaseReserve  *uint256.Int
	TotalShares  *uint256.Int
	Holders      []ShareBalance
}

func New(cfg Config) (*ReservePool, error) {
	if cfg.Custody == nil {
		return nil, fmt.Errorf("custody ledger is nil")
	}
	if cfg.Asset == cfg.BaseAsset {
		return nil, fmt.Errorf("asset and base asset must differ: %s", cfg.Asset.Hex())
	}
	if cfg.Account == (common.Address{}) {
		return nil, fmt.Errorf("pool %s has no custody account", cfg.Asset.Hex())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReservePool{
		asset:        cfg.Asset,
		baseAsset:    cfg.BaseAsset,
		account:      cfg.Account,
		custody:      cfg.Custody,
		logger:       logger.With(zap.String("pool_asset", cfg.Asset.Hex())),
		assetReserve: new(uint256.Int),
		baseReserve:  new(uint256.Int),
		shares:       NewShareLedger(cfg.Name, cfg.Symbol),
	}, nil
}

func (p *ReservePool) Asset() common.Address     { return p.asset }
func (p *ReservePool) BaseAsset() common.Address { return p.baseAsset }
func (p *ReservePool) Account() common.Address   { return p.account }

// AssetOf returns the asset id held on the given side.
func (p *ReservePool) AssetOf(side Side) common.Address {
	if side == SideAsset {
		return p.asset
	}
	return p.baseAsset
}

// AddLiquidity deposits baseAmount of the base asset and at most maxAssetAmount of the
// pooled asset, returning the shares minted to caller.
//
// The first deposit into an empty pool sets the price: both amounts become the reserves
// as given and caller receives exactly baseAmount shares. Later deposits only take the
// asset amount that keeps the current reserve ratio.
func (p *ReservePool) AddLiquidity(caller common.Address, maxAssetAmount, baseAmount *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := Update(func(tx *Txn) error {
		var err error
		minted, err = tx.AddLiquidity(p, caller, maxAssetAmount, baseAmount)
		return err
	}, p)
	return minted, err
}

// RemoveLiquidity burns shares of caller and pays out the pro-rata reserves.
func (p *ReservePool) RemoveLiquidity(caller common.Address, shares *uint256.Int) (assetOut, baseOut *uint256.Int, err error) {
	err = Update(func(tx *Txn) error {
		var err error
		assetOut, baseOut, err = tx.RemoveLiquidity(p, caller, shares)
		return err
	}, p)
	return assetOut, baseOut, err
}

// SwapExactInput sells amountIn of the input side and pays the output to recipient.
func (p *ReservePool) SwapExactInput(caller common.Address, inputSide Side, amountIn, minAmountOut *uint256.Int, recipient common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := Update(func(tx *Txn) error {
		var err error
		out, err = tx.SwapExactInput(p, caller, inputSide, amountIn, minAmountOut, recipient)
		return err
	}, p)
	return out, err
}

// TransferShares moves LP shares between holders.
func (p *ReservePool) TransferShares(from, to common.Address, amount *uint256.Int) error {
	return Update(func(tx *Txn) error {
		return tx.TransferShares(p, from, to, amount)
	}, p)
}

// Reserves returns a copy of the current reserves.
func (p *ReservePool) Reserves() Reserves {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Reserves{Asset: p.assetReserve.Clone(), Base: p.baseReserve.Clone()}
}

func (p *ReservePool) ShareBalance(holder common.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shares.BalanceOf(holder)
}

func (p *ReservePool) TotalShares() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shares.TotalSupply()
}

// Quote prices a swap of amountIn on the input side without executing it.
func (p *ReservePool) Quote(inputSide Side, amountIn *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inReserve, outReserve := p.reservesFor(inputSide)
	return pricing.QuoteWithFee(amountIn, inReserve, outReserve)
}

// PreviewRemove returns what burning shares would pay out at the current reserves.
func (p *ReservePool) PreviewRemove(shares *uint256.Int) (assetOut, baseOut *uint256.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payout(shares)
}

// State returns a consistent snapshot of the pool.
func (p *ReservePool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Asset:        p.asset,
		BaseAsset:    p.baseAsset,
		Account:      p.account,
		Name:         p.shares.Name,
		Symbol:       p.shares.Symbol,
		AssetReserve: p.assetReserve.Clone(),
		BaseReserve:  p.baseReserve.Clone(),
		TotalShares:  p.shares.TotalSupply(),
		Holders:      p.shares.Holders(),
	}
}

// CheckInvariants verifies that the pool is either fully empty or fully funded and
// that the share supply equals the sum of all balances.
func (p *ReservePool) CheckInvariants() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	assetEmpty := p.assetReserve.IsZero()
	baseEmpty := p.baseReserve.IsZero()
	sharesEmpty := p.shares.total.IsZero()
	if assetEmpty != baseEmpty || baseEmpty != sharesEmpty {
		return fmt.Errorf("%w: asset reserve %s, base reserve %s, total shares %s",
			ErrInvariantViolated, p.assetReserve.Dec(), p.baseReserve.Dec(), p.shares.total.Dec())
	}
	return p.shares.Check()
}

func (p *ReservePool) reservesFor(inputSide Side) (inReserve, outReserve *uint256.Int) {
	if inputSide == SideAsset {
		return p.assetReserve, p.baseReserve
	}
	return p.baseReserve, p.assetReserve
}

func (p *ReservePool) payout(shares *uint256.Int) (assetOut, baseOut *uint256.Int, err error) {
	total := p.shares.total
	if shares.IsZero() || total.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	if shares.Gt(total) {
		return nil, nil, fmt.Errorf("%w: burning %s of %s outstanding", ErrBurnExceedsBalance, shares.Dec(), total.Dec())
	}
	assetOut, err = pricing.Proportion(shares, p.assetReserve, total)
	if err != nil {
		return nil, nil, err
	}
	baseOut, err = pricing.Proportion(shares, p.baseReserve, total)
	if err != nil {
		return nil, nil, err
	}
	return assetOut, baseOut, nil
}
