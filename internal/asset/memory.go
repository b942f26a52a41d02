package asset

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MemoryToken implements Token with in-memory balances and allowances. Used
// for testing and development. Not suitable for production (no persistence).
type MemoryToken struct {
	mu         sync.RWMutex
	address    common.Address
	decimals   int32
	balances   map[common.Address]decimal.Decimal
	allowances map[common.Address]map[common.Address]decimal.Decimal
}

// NewMemoryToken creates an empty token.
func NewMemoryToken(addr common.Address, decimals int32) *MemoryToken {
	return &MemoryToken{
		address:    addr,
		decimals:   decimals,
		balances:   make(map[common.Address]decimal.Decimal),
		allowances: make(map[common.Address]map[common.Address]decimal.Decimal),
	}
}

func (t *MemoryToken) Address() common.Address { return t.address }
func (t *MemoryToken) Decimals() int32         { return t.decimals }

// Mint credits amount to account out of thin air.
func (t *MemoryToken) Mint(_ context.Context, account common.Address, amount decimal.Decimal) error {
	if !validAmount(amount, t.decimals) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[account] = t.balances[account].Add(amount)
	return nil
}

// Approve sets the allowance spender may pull from owner.
func (t *MemoryToken) Approve(_ context.Context, owner, spender common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]decimal.Decimal)
	}
	t.allowances[owner][spender] = amount
	return nil
}

// Allowance returns what spender may still pull from owner.
func (t *MemoryToken) Allowance(_ context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowances[owner][spender], nil
}

func (t *MemoryToken) Transfer(_ context.Context, holder, to common.Address, amount decimal.Decimal) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.move(holder, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (t *MemoryToken) TransferFrom(_ context.Context, spender, from, to common.Address, amount decimal.Decimal) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowances[from][spender]
	if allowed.LessThan(amount) {
		return false, fmt.Errorf("%w: %s allowed %s, requested %s", ErrInsufficientAllowance, from.Hex(), allowed, amount)
	}
	if err := t.move(from, to, amount); err != nil {
		return false, err
	}
	t.allowances[from][spender] = allowed.Sub(amount)
	return true, nil
}

func (t *MemoryToken) BalanceOf(_ context.Context, account common.Address) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[account], nil
}

// move must be called with mu held.
func (t *MemoryToken) move(from, to common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	bal := t.balances[from]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	t.balances[from] = bal.Sub(amount)
	t.balances[to] = t.balances[to].Add(amount)
	return nil
}
