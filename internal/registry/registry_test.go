package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/pool"
)

var (
	factory = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	tokenA  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(Config{Address: factory, Custody: custody.NewMemoryLedger()})
	require.NoError(t, err)
	return r
}

func TestNewRequiresCustody(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestCreatePool(t *testing.T) {
	r := newTestRegistry(t)

	p, err := r.CreatePool(tokenA, "A share", "A-LP")
	require.NoError(t, err)
	assert.Equal(t, tokenA, p.Asset())
	assert.Equal(t, common.Address{}, p.BaseAsset())
	assert.Equal(t, crypto.CreateAddress(factory, 0), p.Account())
	assert.Equal(t, "A-LP", p.State().Symbol)

	reserves := p.Reserves()
	assert.True(t, reserves.Asset.IsZero())
	assert.True(t, reserves.Base.IsZero())

	got, err := r.Lookup(tokenA)
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestCreatePoolErrors(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.CreatePool(tokenA, "A share", "A-LP")
	require.NoError(t, err)

	_, err = r.CreatePool(tokenA, "again", "A2")
	assert.ErrorIs(t, err, ErrPoolAlreadyExists)

	_, err = r.CreatePool(r.BaseAsset(), "base", "B")
	assert.ErrorIs(t, err, ErrInvalidAsset)

	_, err = r.Lookup(tokenB)
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestPoolAccountsAreDistinct(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.CreatePool(tokenA, "A", "A")
	require.NoError(t, err)
	b, err := r.CreatePool(tokenB, "B", "B")
	require.NoError(t, err)

	assert.NotEqual(t, a.Account(), b.Account())
	assert.Equal(t, crypto.CreateAddress(factory, 1), b.Account())
}

func TestEnsure(t *testing.T) {
	r := newTestRegistry(t)

	p, created, err := r.Ensure(tokenA)
	require.NoError(t, err)
	assert.True(t, created)
	state := p.State()
	assert.Equal(t, "Liquidity Share 00000000", state.Name)
	assert.Equal(t, "LS-00000000", state.Symbol)

	again, created, err := r.Ensure(tokenA)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, p, again)

	_, _, err = r.Ensure(common.Address{})
	assert.ErrorIs(t, err, ErrInvalidAsset)
}

func TestFailedSetupRegistersNothing(t *testing.T) {
	r := newTestRegistry(t)
	boom := errors.New("boom")

	var seen *pool.ReservePool
	_, created, err := r.EnsureWith(tokenA, func(p *pool.ReservePool) error {
		seen = p
		// setup runs under the registry lock, before the pool is visible
		_, registered := r.pools[tokenA]
		assert.False(t, registered)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, created)
	require.NotNil(t, seen)

	_, err = r.Lookup(tokenA)
	assert.ErrorIs(t, err, ErrPoolNotFound)
	assert.Empty(t, r.Pools())

	_, err = r.CreatePoolWith(tokenB, "B", "B", func(*pool.ReservePool) error { return boom })
	assert.ErrorIs(t, err, boom)

	// the nonce was not used up by either attempt
	p, created, err := r.EnsureWith(tokenA, func(*pool.ReservePool) error { return nil })
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, crypto.CreateAddress(factory, 0), p.Account())

	calls := 0
	again, created, err := r.EnsureWith(tokenA, func(*pool.ReservePool) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, p, again)
	assert.Zero(t, calls)
}

func TestPoolsSortedByAsset(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.CreatePool(tokenB, "B", "B")
	require.NoError(t, err)
	_, err = r.CreatePool(tokenA, "A", "A")
	require.NoError(t, err)

	pools := r.Pools()
	require.Len(t, pools, 2)
	assert.Equal(t, tokenA, pools[0].Asset())
	assert.Equal(t, tokenB, pools[1].Asset())
}

func TestConcurrentEnsureCreatesOnce(t *testing.T) {
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := r.Ensure(tokenA)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	assert.Len(t, r.Pools(), 1)
}
