package pool

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityEngine/internal/custody"
)

var otherToken = common.HexToAddress("0x00000000000000000000000000000000000000bb")

func newPoolOn(t *testing.T, ledger custody.Ledger, asset, account common.Address) *ReservePool {
	t.Helper()
	p, err := New(Config{Asset: asset, BaseAsset: baseAsset, Account: account, Custody: ledger})
	require.NoError(t, err)
	return p
}

func TestTxnRollbackRestoresEverything(t *testing.T) {
	p, ledger := newTestPool(t)
	fund(ledger, owner, u(10_000), u(10_000))
	_, err := p.AddLiquidity(owner, u(2000), u(1000))
	require.NoError(t, err)
	before := p.State()
	balances := ledger.Balances()

	tx := Begin(p)
	_, err = tx.AddLiquidity(p, owner, u(500), u(100))
	require.NoError(t, err)
	_, err = tx.SwapExactInput(p, owner, SideBase, u(50), u(0), owner)
	require.NoError(t, err)
	require.NoError(t, tx.TransferShares(p, owner, user, u(30)))
	_, _, err = tx.RemoveLiquidity(p, owner, u(10))
	require.NoError(t, err)
	tx.Rollback()

	assert.Equal(t, before, p.State())
	assert.Equal(t, balances, ledger.Balances())
	require.NoError(t, p.CheckInvariants())
}

func TestUpdateRollsBackOnError(t *testing.T) {
	p, ledger := newTestPool(t)
	fund(ledger, owner, u(10_000), u(10_000))
	_, err := p.AddLiquidity(owner, u(2000), u(1000))
	require.NoError(t, err)
	before := p.State()

	boom := errors.New("boom")
	err = Update(func(tx *Txn) error {
		if _, err := tx.SwapExactInput(p, owner, SideAsset, u(100), u(0), owner); err != nil {
			return err
		}
		return boom
	}, p)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, p.State())

	// the pool is unlocked again
	_, err = p.SwapExactInput(owner, SideAsset, u(100), u(0), owner)
	require.NoError(t, err)
}

func TestTxnCommitSettlementFailureReverts(t *testing.T) {
	p, ledger := newTestPool(t)
	fund(ledger, owner, u(10_000), u(10_000))
	_, err := p.AddLiquidity(owner, u(2000), u(1000))
	require.NoError(t, err)
	before := p.State()

	tx := Begin(p)
	_, err = tx.SwapExactInput(p, user, SideAsset, u(100), u(0), user)
	require.NoError(t, err, "custody is only checked on commit")
	err = tx.Commit()
	assert.ErrorIs(t, err, custody.ErrInsufficientFunds)

	assert.Equal(t, before, p.State())
	requireCustodyMatches(t, p, ledger)
}

func TestTxnSnapshotSeesUncommittedState(t *testing.T) {
	p, ledger := newTestPool(t)
	fund(ledger, owner, u(300), u(300))

	err := Update(func(tx *Txn) error {
		if _, err := tx.AddLiquidity(p, owner, u(200), u(100)); err != nil {
			return err
		}
		snap, err := tx.Snapshot(p)
		require.NoError(t, err)
		assert.Equal(t, uint64(200), snap.Asset.Uint64())
		assert.Equal(t, uint64(100), snap.Base.Uint64())
		assert.Equal(t, uint64(100), snap.TotalShares.Uint64())
		return nil
	}, p)
	require.NoError(t, err)

	other := newPoolOn(t, ledger, otherToken, common.HexToAddress("0xb1"))
	tx := Begin(p)
	_, err = tx.Snapshot(other)
	assert.ErrorIs(t, err, ErrNotInTxn)
	tx.Rollback()
}

func TestTxnFinished(t *testing.T) {
	p, _ := newTestPool(t)

	tx := Begin(p)
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), ErrTxnDone)
	_, err := tx.SwapExactInput(p, owner, SideAsset, u(1), u(0), owner)
	assert.ErrorIs(t, err, ErrTxnDone)
	tx.Rollback()

	// no lock is left behind
	tx = Begin(p)
	tx.Rollback()
}

func TestTxnRejectsPoolOutsideTransaction(t *testing.T) {
	ledger := custody.NewMemoryLedger()
	a := newPoolOn(t, ledger, token, common.HexToAddress("0xa1"))
	b := newPoolOn(t, ledger, otherToken, common.HexToAddress("0xb1"))

	err := Update(func(tx *Txn) error {
		_, err := tx.AddLiquidity(b, owner, u(1), u(1))
		return err
	}, a)
	assert.ErrorIs(t, err, ErrNotInTxn)
}

func TestTxnDeduplicatesPools(t *testing.T) {
	p, ledger := newTestPool(t)
	fund(ledger, owner, u(100), u(100))

	err := Update(func(tx *Txn) error {
		_, err := tx.AddLiquidity(p, owner, u(100), u(100))
		return err
	}, p, p, nil)
	require.NoError(t, err)
	requireReserves(t, p, u(100), u(100))
}

func TestTxnRejectsMixedCustody(t *testing.T) {
	a := newPoolOn(t, custody.NewMemoryLedger(), token, common.HexToAddress("0xa1"))
	b := newPoolOn(t, custody.NewMemoryLedger(), otherToken, common.HexToAddress("0xb1"))

	err := Update(func(tx *Txn) error {
		if _, err := tx.AddLiquidity(a, owner, u(1), u(1)); err != nil {
			return err
		}
		_, err := tx.AddLiquidity(b, owner, u(1), u(1))
		return err
	}, a, b)
	assert.Error(t, err)
	requireReserves(t, a, u(0), u(0))
	requireReserves(t, b, u(0), u(0))
}

func TestTxnChainsSwapsThroughPoolAccounts(t *testing.T) {
	ledger := custody.NewMemoryLedger()
	a := newPoolOn(t, ledger, token, common.HexToAddress("0xa1"))
	b := newPoolOn(t, ledger, otherToken, common.HexToAddress("0xb1"))
	ledger.Credit(token, owner, ether(2000))
	ledger.Credit(otherToken, owner, ether(1000))
	ledger.Credit(baseAsset, owner, ether(2000))
	ledger.Credit(token, user, ether(10))
	_, err := a.AddLiquidity(owner, ether(2000), ether(1000))
	require.NoError(t, err)
	_, err = b.AddLiquidity(owner, ether(1000), ether(1000))
	require.NoError(t, err)

	var out string
	err = Update(func(tx *Txn) error {
		mid, err := tx.SwapExactInput(a, user, SideAsset, ether(10), u(0), a.Account())
		if err != nil {
			return err
		}
		assert.Equal(t, "4925618189959699487", mid.Dec())
		res, err := tx.SwapExactInput(b, a.Account(), SideBase, mid, u(0), user)
		if err != nil {
			return err
		}
		out = res.Dec()
		return nil
	}, b, a)
	require.NoError(t, err)

	assert.Equal(t, "4852698493489877956", out)
	assert.Equal(t, out, ledger.BalanceOf(otherToken, user).Dec())
	assert.True(t, ledger.BalanceOf(token, user).IsZero())
	assert.True(t, ledger.BalanceOf(baseAsset, user).IsZero())
	requireCustodyMatches(t, a, ledger)
	requireCustodyMatches(t, b, ledger)
}

func TestTxnLockOrderIgnoresArgumentOrder(t *testing.T) {
	ledger := custody.NewMemoryLedger()
	shared := common.HexToAddress("0xa1")
	a := newPoolOn(t, ledger, token, shared)
	b := newPoolOn(t, ledger, otherToken, shared)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				Begin(a, b).Rollback()
			}()
			go func() {
				defer wg.Done()
				Begin(b, a).Rollback()
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("transactions over the same pools deadlocked")
	}
}

func TestTxnOnCommit(t *testing.T) {
	p, ledger := newTestPool(t)
	fund(ledger, owner, u(10_000), u(10_000))

	var calls int
	err := Update(func(tx *Txn) error {
		if _, err := tx.AddLiquidity(p, owner, u(2000), u(1000)); err != nil {
			return err
		}
		tx.OnCommit(func() {
			calls++
			// still inside the transaction
			assert.False(t, p.mu.TryLock())
			assert.Equal(t, uint64(2000), p.assetReserve.Uint64())
		})
		return nil
	}, p)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	err = Update(func(tx *Txn) error {
		tx.OnCommit(func() { calls++ })
		return boom
	}, p)
	assert.ErrorIs(t, err, boom)

	// settlement failure: user holds nothing
	tx := Begin(p)
	_, err = tx.SwapExactInput(p, user, SideAsset, u(100), u(0), user)
	require.NoError(t, err)
	tx.OnCommit(func() { calls++ })
	assert.ErrorIs(t, tx.Commit(), custody.ErrInsufficientFunds)

	assert.Equal(t, 1, calls)
}
