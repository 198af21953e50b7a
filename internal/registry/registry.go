// Package registry owns the set of pools, one per asset, all paired against a common base asset.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/pool"
)

var (
	ErrPoolAlreadyExists = errors.New("pool already exists")
	ErrPoolNotFound      = errors.New("pool not found")
	// ErrInvalidAsset is returned for the base asset itself, which cannot be pooled against itself.
	ErrInvalidAsset = errors.New("invalid asset")
)

const defaultNamePrefix = "Liquidity Share"

type Config struct {
	BaseAsset common.Address
	// Address seeds the custody account of every pool created by the registry.
	Address common.Address
	// NamePrefix is used for the share token name of pools created by Ensure.
	NamePrefix string
	Custody    custody.Ledger
	Logger     *zap.Logger
}

type Registry struct {
	mu sync.RWMutex

	baseAsset  common.Address
	address    common.Address
	nonce      uint64
	namePrefix string
	custody    custody.Ledger
	logger     *zap.Logger

	pools map[common.Address]*pool.ReservePool
}

func New(cfg Config) (*Registry, error) {
	if cfg.Custody == nil {
		return nil, fmt.Errorf("custody ledger is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.NamePrefix
	if prefix == "" {
		prefix = defaultNamePrefix
	}

	return &Registry{
		baseAsset:  cfg.BaseAsset,
		address:    cfg.Address,
		namePrefix: prefix,
		custody:    cfg.Custody,
		logger:     logger,
		pools:      make(map[common.Address]*pool.ReservePool),
	}, nil
}

func (r *Registry) BaseAsset() common.Address { return r.baseAsset }

func (r *Registry) Custody() custody.Ledger { return r.custody }

// CreatePool registers an empty pool for asset.
func (r *Registry) CreatePool(asset common.Address, name, symbol string) (*pool.ReservePool, error) {
	return r.CreatePoolWith(asset, name, symbol, nil)
}

// CreatePoolWith builds a pool for asset and registers it only if setup succeeds.
// The pool cannot be looked up while setup runs, and a failed setup leaves the
// registry and its account nonce unchanged.
func (r *Registry) CreatePoolWith(asset common.Address, name, symbol string, setup func(*pool.ReservePool) error) (*pool.ReservePool, error) {
	if asset == r.baseAsset {
		return nil, fmt.Errorf("%w: %s is the base asset", ErrInvalidAsset, asset.Hex())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[asset]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolAlreadyExists, asset.Hex())
	}
	return r.createLocked(asset, name, symbol, setup)
}

// Lookup returns the pool for asset.
func (r *Registry) Lookup(asset common.Address) (*pool.ReservePool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, asset.Hex())
	}
	return p, nil
}

// Ensure returns the pool for asset, creating it with default share metadata when missing.
func (r *Registry) Ensure(asset common.Address) (p *pool.ReservePool, created bool, err error) {
	return r.EnsureWith(asset, nil)
}

// EnsureWith is Ensure with a setup step for a missing pool, run as in CreatePoolWith.
// setup is not called for a pool that already exists.
func (r *Registry) EnsureWith(asset common.Address, setup func(*pool.ReservePool) error) (p *pool.ReservePool, created bool, err error) {
	if existing, err := r.Lookup(asset); err == nil {
		return existing, false, nil
	}
	if asset == r.baseAsset {
		return nil, false, fmt.Errorf("%w: %s is the base asset", ErrInvalidAsset, asset.Hex())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pools[asset]; ok {
		return existing, false, nil
	}
	name, symbol := r.defaultMetadata(asset)
	p, err = r.createLocked(asset, name, symbol, setup)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Pools returns every registered pool ordered by asset address.
func (r *Registry) Pools() []*pool.ReservePool {
	r.mu.RLock()
	out := make([]*pool.ReservePool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Asset().Cmp(out[j].Asset()) < 0
	})
	return out
}

func (r *Registry) createLocked(asset common.Address, name, symbol string, setup func(*pool.ReservePool) error) (*pool.ReservePool, error) {
	account := crypto.CreateAddress(r.address, r.nonce)
	p, err := pool.New(pool.Config{
		Asset:     asset,
		BaseAsset: r.baseAsset,
		Account:   account,
		Name:      name,
		Symbol:    symbol,
		Custody:   r.custody,
		Logger:    r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create pool %s: %w", asset.Hex(), err)
	}
	if setup != nil {
		if err := setup(p); err != nil {
			return nil, err
		}
	}
	r.nonce++
	r.pools[asset] = p

	r.logger.Info("pool created",
		zap.String("asset", asset.Hex()),
		zap.String("account", account.Hex()),
		zap.String("symbol", symbol),
	)
	return p, nil
}

func (r *Registry) defaultMetadata(asset common.Address) (name, symbol string) {
	short := asset.Hex()[2:10]
	return fmt.Sprintf("%s %s", r.namePrefix, short), "LS-" + short
}
