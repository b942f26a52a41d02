// Package asset defines the value-transfer collaborator used by event
// ledgers. Token accounting itself lives outside the engine; the engine only
// calls the ERC-20 style primitives below.
package asset

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownAsset          = errors.New("asset: unknown asset")
	ErrInsufficientBalance   = errors.New("asset: insufficient balance")
	ErrInsufficientAllowance = errors.New("asset: insufficient allowance")
	ErrInvalidAmount         = errors.New("asset: amount must be positive")
)

// validAmount reports whether amount is positive and representable with
// the given number of decimals.
func validAmount(amount decimal.Decimal, decimals int32) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(decimals))
}

// Token is a fungible asset. A false result and a returned error are both
// treated by callers as a failed transfer.
type Token interface {
	// Address identifies the asset.
	Address() common.Address

	// Decimals is the native granularity; amounts never carry more
	// fractional digits than this.
	Decimals() int32

	// Transfer moves amount from the holder's own balance to `to`.
	Transfer(ctx context.Context, holder, to common.Address, amount decimal.Decimal) (bool, error)

	// TransferFrom moves amount from `from` to `to` using the allowance
	// `from` granted to spender.
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount decimal.Decimal) (bool, error)

	// BalanceOf returns the balance of account.
	BalanceOf(ctx context.Context, account common.Address) (decimal.Decimal, error)
}

// Faucet is a Token issued by the engine itself. Balances are minted and
// allowances granted through the HTTP surface.
type Faucet interface {
	Token

	// Mint credits amount to account.
	Mint(ctx context.Context, account common.Address, amount decimal.Decimal) error

	// Approve sets the allowance spender may pull from owner.
	Approve(ctx context.Context, owner, spender common.Address, amount decimal.Decimal) error

	// Allowance returns what spender may still pull from owner.
	Allowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error)
}

// Directory resolves an asset address to its Token.
type Directory interface {
	Token(addr common.Address) (Token, error)
}

// StaticDirectory is a fixed set of known tokens.
type StaticDirectory map[common.Address]Token

// NewStaticDirectory indexes tokens by their address.
func NewStaticDirectory(tokens ...Token) StaticDirectory {
	d := make(StaticDirectory, len(tokens))
	for _, t := range tokens {
		d[t.Address()] = t
	}
	return d
}

func (d StaticDirectory) Token(addr common.Address) (Token, error) {
	t, ok := d[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, addr.Hex())
	}
	return t, nil
}
