package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/model"
)

// Result returns the settlement state.
func (e *Event) Result() model.Result { return e.state.Result }

// PoolTotal returns the cumulative stake of pool.
func (e *Event) PoolTotal(pool int) (decimal.Decimal, error) {
	if !e.validPool(pool) {
		return decimal.Zero, ErrNotExistingPool
	}
	return e.state.PoolTotals[pool], nil
}

// Stake returns what account has staked on pool.
func (e *Event) Stake(pool int, account common.Address) (decimal.Decimal, error) {
	if !e.validPool(pool) {
		return decimal.Zero, ErrNotExistingPool
	}
	return e.state.Stakes[pool][account], nil
}

// PotentialGain previews what account would withdraw if pool won right now,
// after adding extra to its stake on that pool. It never mutates state.
func (e *Event) PotentialGain(pool int, account common.Address, extra decimal.Decimal) (decimal.Decimal, error) {
	if !e.validPool(pool) {
		return decimal.Zero, ErrNotExistingPool
	}
	if extra.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	total := e.state.PoolTotals[pool]
	stake := e.state.Stakes[pool][account].Add(extra)
	return e.payout(stake, total.Add(extra), e.state.Staked().Sub(total)), nil
}

// PoolShare returns pool's integer percentage of everything staked, or 0
// when nothing has been staked yet.
func (e *Event) PoolShare(pool int) (int64, error) {
	if !e.validPool(pool) {
		return 0, ErrNotExistingPool
	}
	sum := e.state.Staked()
	if sum.IsZero() {
		return 0, nil
	}
	q, _ := e.state.PoolTotals[pool].Mul(hundred).QuoRem(sum, 0)
	return q.IntPart(), nil
}

// CountBettorsPerPool returns how many distinct accounts backed pool.
func (e *Event) CountBettorsPerPool(pool int) (int, error) {
	if !e.validPool(pool) {
		return 0, ErrNotExistingPool
	}
	return len(e.state.Bettors[pool]), nil
}

// ListBettorsPerPool returns up to limit bettors of pool starting at offset,
// in the order they first staked.
func (e *Event) ListBettorsPerPool(offset, limit, pool int) ([]common.Address, error) {
	if !e.validPool(pool) {
		return nil, ErrNotExistingPool
	}
	return window(e.state.Bettors[pool], offset, limit), nil
}

// CountPartnerIDs returns how many distinct referrers account supplied.
func (e *Event) CountPartnerIDs(account common.Address) int {
	return len(e.state.Referrers[account])
}

// ListPartnerIDs returns up to limit referrers of account starting at offset.
func (e *Event) ListPartnerIDs(offset, limit int, account common.Address) []uint64 {
	return window(e.state.Referrers[account], offset, limit)
}

// window copies s[offset:offset+limit], clamped to the slice bounds.
func window[T any](s []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s) || limit <= 0 {
		return []T{}
	}
	end := offset + min(limit, len(s)-offset)
	return append([]T(nil), s[offset:end]...)
}
