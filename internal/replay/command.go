package replay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/units"
)

const (
	OpFund              = "fund"
	OpCreatePool        = "create_pool"
	OpAddLiquidity      = "add_liquidity"
	OpRemoveLiquidity   = "remove_liquidity"
	OpSwap              = "swap"
	OpSwapAssetForAsset = "swap_asset_for_asset"
	OpTransferShares    = "transfer_shares"
)

var (
	ErrUnknownOp          = errors.New("unknown op")
	ErrUnexpectedSuccess  = errors.New("command succeeded but an error was expected")
	ErrUnexpectedOutput   = errors.New("unexpected output amount")
	ErrTimestampBackwards = errors.New("timestamp goes backwards")
)

// Command is one line of a replay script. Amounts are decimal strings in whole units.
type Command struct {
	Op string `json:"op"`
	// TS is the unix time the command executes at; zero keeps the previous time.
	TS uint64 `json:"ts,omitempty"`

	Asset     string `json:"asset,omitempty"`
	Account   string `json:"account,omitempty"`
	Caller    string `json:"caller,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Src       string `json:"src,omitempty"`
	Dst       string `json:"dst,omitempty"`
	Name      string `json:"name,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Side      string `json:"side,omitempty"`

	Amount   string `json:"amount,omitempty"`
	MaxAsset string `json:"max_asset,omitempty"`
	Base     string `json:"base,omitempty"`
	Shares   string `json:"shares,omitempty"`
	MinOut   string `json:"min_out,omitempty"`

	// ExpectError marks a command that must be rejected.
	ExpectError bool `json:"expect_error,omitempty"`
	// ExpectOut, when set on a swap, is the exact output the swap must produce.
	ExpectOut string `json:"expect_out,omitempty"`
}

// fields converts command fields, keeping the first error.
type fields struct {
	decimals uint8
	err      error
}

func (f *fields) address(name, value string) common.Address {
	value = strings.TrimSpace(value)
	if f.err != nil {
		return common.Address{}
	}
	if value == "" {
		f.err = fmt.Errorf("%s is required", name)
		return common.Address{}
	}
	if !common.IsHexAddress(value) {
		f.err = fmt.Errorf("invalid %s address: %s", name, value)
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func (f *fields) optionalAddress(name, value string, fallback common.Address) common.Address {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return f.address(name, value)
}

func (f *fields) amount(name, value string) *uint256.Int {
	if f.err != nil {
		return nil
	}
	if strings.TrimSpace(value) == "" {
		f.err = fmt.Errorf("%s is required", name)
		return nil
	}
	parsed, err := units.Parse(value, f.decimals)
	if err != nil {
		f.err = fmt.Errorf("%s: %w", name, err)
		return nil
	}
	return parsed
}

func (f *fields) optionalAmount(name, value string) *uint256.Int {
	if strings.TrimSpace(value) == "" {
		return new(uint256.Int)
	}
	return f.amount(name, value)
}
