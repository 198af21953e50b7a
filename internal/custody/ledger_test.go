package custody

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMemoryLedgerCreditDebit(t *testing.T) {
	l := NewMemoryLedger()
	l.Credit(token, alice, uint256.NewInt(100))
	l.Credit(token, alice, uint256.NewInt(50))

	require.NoError(t, l.Debit(token, alice, uint256.NewInt(120)))
	assert.Equal(t, uint64(30), l.BalanceOf(token, alice).Uint64())
	assert.True(t, l.BalanceOf(token, bob).IsZero())
}

func TestMemoryLedgerInsufficientFunds(t *testing.T) {
	l := NewMemoryLedger()
	l.Credit(token, alice, uint256.NewInt(10))

	err := l.Debit(token, alice, uint256.NewInt(11))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(10), l.BalanceOf(token, alice).Uint64(), "failed debit must not change the balance")

	err = l.Debit(token, bob, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestMemoryLedgerZeroAmounts(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Debit(token, alice, new(uint256.Int)))
	l.Credit(token, alice, new(uint256.Int))
	assert.Empty(t, l.Balances())
}

func TestMemoryLedgerBalancesDropsEmptied(t *testing.T) {
	l := NewMemoryLedger()
	l.Credit(token, bob, uint256.NewInt(2))
	l.Credit(token, alice, uint256.NewInt(1))
	require.NoError(t, l.Debit(token, bob, uint256.NewInt(2)))

	balances := l.Balances()
	require.Len(t, balances, 1)
	assert.Equal(t, alice, balances[0].Holder)
}

func TestMemoryLedgerBalanceIsCopy(t *testing.T) {
	l := NewMemoryLedger()
	l.Credit(token, alice, uint256.NewInt(5))

	got := l.BalanceOf(token, alice)
	got.SetUint64(1000)
	assert.Equal(t, uint64(5), l.BalanceOf(token, alice).Uint64())
}
