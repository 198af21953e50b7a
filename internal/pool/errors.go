package pool

import "errors"

var (
	// ErrInsufficientAssetAmount is returned when the asset amount offered with a deposit
	// is below what the current reserve ratio requires.
	ErrInsufficientAssetAmount = errors.New("insufficient asset amount")
	// ErrUnbalancedDeposit is returned when the first deposit into an empty pool funds only one side.
	ErrUnbalancedDeposit = errors.New("unbalanced initial deposit")
	// ErrBurnExceedsBalance is returned when more shares are burned than the holder owns.
	ErrBurnExceedsBalance = errors.New("burn amount exceeds balance")
	// ErrInsufficientShares is returned when a share transfer exceeds the sender's balance.
	ErrInsufficientShares = errors.New("transfer amount exceeds share balance")
	// ErrSlippageExceeded is returned when a swap would pay out less than the caller's floor.
	ErrSlippageExceeded = errors.New("insufficient output amount")
	// ErrInvariantViolated reports a reserve/share state that breaks the pool invariants.
	ErrInvariantViolated = errors.New("pool invariant violated")
	// ErrNotInTxn is returned when a transaction is asked to touch a pool it has not locked.
	ErrNotInTxn = errors.New("pool not part of transaction")
	// ErrTxnDone is returned when a committed or rolled back transaction is used again.
	ErrTxnDone = errors.New("transaction already finished")
)
