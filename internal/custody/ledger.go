// Package custody holds asset balances outside the pools.
package custody

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInsufficientFunds is returned by Debit when the holder cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger moves assets in and out of holder accounts.
// Debit fails with ErrInsufficientFunds; Credit always succeeds.
type Ledger interface {
	Debit(asset, from common.Address, amount *uint256.Int) error
	Credit(asset, to common.Address, amount *uint256.Int)
	BalanceOf(asset, holder common.Address) *uint256.Int
}

type balanceKey struct {
	asset  common.Address
	holder common.Address
}

// Balance is a single non-zero ledger entry.
type Balance struct {
	Asset  common.Address
	Holder common.Address
	Amount *uint256.Int
}

// MemoryLedger is an in-memory Ledger safe for concurrent use.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[balanceKey]*uint256.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[balanceKey]*uint256.Int)}
}

func (l *MemoryLedger) Debit(asset, from common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{asset: asset, holder: from}
	balance, ok := l.balances[key]
	if !ok || balance.Lt(amount) {
		have := "0"
		if ok {
			have = balance.Dec()
		}
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientFunds, from.Hex(), have, asset.Hex(), amount.Dec())
	}

	balance.Sub(balance, amount)
	if balance.IsZero() {
		delete(l.balances, key)
	}
	return nil
}

func (l *MemoryLedger) Credit(asset, to common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{asset: asset, holder: to}
	balance, ok := l.balances[key]
	if !ok {
		l.balances[key] = amount.Clone()
		return
	}
	// saturate rather than wrap; a 2^256 supply is not a reachable state
	if _, overflow := balance.AddOverflow(balance, amount); overflow {
		balance.SetAllOne()
	}
}

func (l *MemoryLedger) BalanceOf(asset, holder common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if balance, ok := l.balances[balanceKey{asset: asset, holder: holder}]; ok {
		return balance.Clone()
	}
	return new(uint256.Int)
}

// Balances returns every non-zero entry ordered by asset, then holder.
func (l *MemoryLedger) Balances() []Balance {
	l.mu.Lock()
	out := make([]Balance, 0, len(l.balances))
	for key, amount := range l.balances {
		out = append(out, Balance{Asset: key.asset, Holder: key.holder, Amount: amount.Clone()})
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset.Cmp(out[j].Asset) < 0
		}
		return out[i].Holder.Cmp(out[j].Holder) < 0
	})
	return out
}
