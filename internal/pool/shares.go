package pool

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/pricing"
)

// ShareLedger tracks LP share balances and their total supply.
// It is not safe for concurrent use; the owning pool's lock guards it.
// Zero balances are never stored, so absent and zero holders read the same.
type ShareLedger struct {
	Name   string
	Symbol string

	balances map[common.Address]*uint256.Int
	total    *uint256.Int
}

// ShareBalance is one holder's share count.
type ShareBalance struct {
	Holder common.Address
	Amount *uint256.Int
}

func NewShareLedger(name, symbol string) *ShareLedger {
	return &ShareLedger{
		Name:     name,
		Symbol:   symbol,
		balances: make(map[common.Address]*uint256.Int),
		total:    new(uint256.Int),
	}
}

// BalanceOf returns a copy of the holder's balance, zero when absent.
func (l *ShareLedger) BalanceOf(holder common.Address) *uint256.Int {
	if balance, ok := l.balances[holder]; ok {
		return balance.Clone()
	}
	return new(uint256.Int)
}

// TotalSupply returns a copy of the outstanding share count.
func (l *ShareLedger) TotalSupply() *uint256.Int {
	return l.total.Clone()
}

func (l *ShareLedger) Mint(holder common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	total, overflow := new(uint256.Int).AddOverflow(l.total, amount)
	if overflow {
		return fmt.Errorf("%w: share supply", pricing.ErrOverflow)
	}

	balance := l.BalanceOf(holder)
	balance.Add(balance, amount)
	l.balances[holder] = balance
	l.total = total
	return nil
}

func (l *ShareLedger) Burn(holder common.Address, amount *uint256.Int) error {
	balance := l.BalanceOf(holder)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, burning %s", ErrBurnExceedsBalance, holder.Hex(), balance.Dec(), amount.Dec())
	}
	if amount.IsZero() {
		return nil
	}

	l.set(holder, balance.Sub(balance, amount))
	l.total = new(uint256.Int).Sub(l.total, amount)
	return nil
}

// Transfer moves shares between holders without changing the supply.
func (l *ShareLedger) Transfer(from, to common.Address, amount *uint256.Int) error {
	balance := l.BalanceOf(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, sending %s", ErrInsufficientShares, from.Hex(), balance.Dec(), amount.Dec())
	}
	if amount.IsZero() || from == to {
		return nil
	}

	l.set(from, balance.Sub(balance, amount))
	received := l.BalanceOf(to)
	l.set(to, received.Add(received, amount))
	return nil
}

// Holders returns all non-zero balances ordered by holder address.
func (l *ShareLedger) Holders() []ShareBalance {
	out := make([]ShareBalance, 0, len(l.balances))
	for holder, amount := range l.balances {
		out = append(out, ShareBalance{Holder: holder, Amount: amount.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Holder.Cmp(out[j].Holder) < 0
	})
	return out
}

// Check verifies that the total equals the sum of all balances.
func (l *ShareLedger) Check() error {
	sum := new(uint256.Int)
	for holder, amount := range l.balances {
		if amount.IsZero() {
			return fmt.Errorf("%w: zero share entry for %s", ErrInvariantViolated, holder.Hex())
		}
		if _, overflow := sum.AddOverflow(sum, amount); overflow {
			return fmt.Errorf("%w: share balances overflow", ErrInvariantViolated)
		}
	}
	if !sum.Eq(l.total) {
		return fmt.Errorf("%w: total shares %s, sum of balances %s", ErrInvariantViolated, l.total.Dec(), sum.Dec())
	}
	return nil
}

func (l *ShareLedger) set(holder common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		delete(l.balances, holder)
		return
	}
	l.balances[holder] = amount
}
