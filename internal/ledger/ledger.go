// Package ledger implements the per-event pari-mutuel book: pool bookkeeping,
// the proportional payout formula, the closure state machine and the
// deadline refund fallback.
//
// An Event wraps one persisted model.Event. Every operation validates first,
// then moves funds through the asset collaborator, and only then mutates the
// record, so a failed call leaves no partial state behind.
//
// Amounts are decimals truncated to the asset precision.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/asset"
	"github.com/atmx/wager-engine/internal/model"
)

// noPool marks records that are not about a single pool.
const noPool = -1

var (
	ErrNotExistingPool        = errors.New("ledger: pool does not exist")
	ErrCannotBet              = errors.New("ledger: betting is disabled")
	ErrNotSufficientBetAmount = errors.New("ledger: bet below minimum stake")
	ErrInvalidAmount          = errors.New("ledger: invalid amount")
	ErrNotEventRegistry       = errors.New("ledger: caller is not the event registry")
	ErrAlreadyClosed          = errors.New("ledger: event already closed")
	ErrDeadlinePassed         = errors.New("ledger: deadline passed")
	ErrCannotWithdraw         = errors.New("ledger: event still in progress")
	ErrTransferFailed         = errors.New("ledger: asset transfer failed")
)

var hundred = decimal.NewFromInt(100)

// Registry is the authority an event answers to. Only Address may close the
// event, House receives commission and forfeited pots, and BetsOpen holds
// the betting schedule.
type Registry interface {
	Address() common.Address
	House() common.Address
	BetsOpen(ev *model.Event, now time.Time) bool
}

type bettorKey struct {
	pool    int
	account common.Address
}

type referrerKey struct {
	account  common.Address
	referrer uint64
}

// Event is the live view of one event ledger.
type Event struct {
	state *model.Event
	reg   Registry
	token asset.Token
	now   func() time.Time

	// presence sets mirroring the ordered lists in state
	bettors   map[bettorKey]struct{}
	referrers map[referrerKey]struct{}

	records []model.Record
}

// Load wraps a persisted event. The event is mutated in place; callers that
// need all-or-nothing semantics pass a clone and persist it on success.
func Load(ev *model.Event, reg Registry, token asset.Token, now func() time.Time) *Event {
	if now == nil {
		now = time.Now
	}
	e := &Event{
		state:     ev,
		reg:       reg,
		token:     token,
		now:       now,
		bettors:   make(map[bettorKey]struct{}),
		referrers: make(map[referrerKey]struct{}),
	}
	if ev.Referrers == nil {
		ev.Referrers = make(map[common.Address][]uint64)
	}
	if ev.Withdrawn == nil {
		ev.Withdrawn = make(map[common.Address]bool)
	}
	for i := range ev.Stakes {
		if ev.Stakes[i] == nil {
			ev.Stakes[i] = make(map[common.Address]decimal.Decimal)
		}
	}
	for pool, accounts := range ev.Bettors {
		for _, a := range accounts {
			e.bettors[bettorKey{pool, a}] = struct{}{}
		}
	}
	for account, ids := range ev.Referrers {
		for _, id := range ids {
			e.referrers[referrerKey{account, id}] = struct{}{}
		}
	}
	return e
}

// State returns the underlying record.
func (e *Event) State() *model.Event { return e.state }

// Records returns and clears the records emitted since the last call.
func (e *Event) Records() []model.Record {
	out := e.records
	e.records = nil
	return out
}

// PlaceBet pulls amount from bettor into the event and credits it to pool.
func (e *Event) PlaceBet(ctx context.Context, bettor common.Address, pool int, amount decimal.Decimal, referrer uint64) error {
	if !e.validPool(pool) {
		return ErrNotExistingPool
	}
	now := e.now()
	if e.state.Result.Terminal() || !e.reg.BetsOpen(e.state, now) {
		return ErrCannotBet
	}
	if amount.LessThan(e.state.MinStake) {
		return ErrNotSufficientBetAmount
	}
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(e.token.Decimals())) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	if err := transferErr(e.token.TransferFrom(ctx, e.state.Address, bettor, e.state.Address, amount)); err != nil {
		return err
	}

	e.state.PoolTotals[pool] = e.state.PoolTotals[pool].Add(amount)
	e.state.Stakes[pool][bettor] = e.state.Stakes[pool][bettor].Add(amount)

	if _, seen := e.bettors[bettorKey{pool, bettor}]; !seen {
		e.bettors[bettorKey{pool, bettor}] = struct{}{}
		e.state.Bettors[pool] = append(e.state.Bettors[pool], bettor)
	}
	if _, seen := e.referrers[referrerKey{bettor, referrer}]; !seen {
		e.referrers[referrerKey{bettor, referrer}] = struct{}{}
		e.state.Referrers[bettor] = append(e.state.Referrers[bettor], referrer)
	}

	rec := e.emit(model.RecordBetPlaced, pool, bettor, amount, now)
	rec.Referrer = referrer
	return nil
}

// Cancel voids the event; every stake becomes refundable.
func (e *Event) Cancel(ctx context.Context, caller common.Address) error {
	now, err := e.closable(caller)
	if err != nil {
		return err
	}
	e.state.Result = model.Result{Kind: model.ResultVoid}
	e.state.ClosedAt = now
	e.emit(model.RecordEventCancelled, noPool, caller, decimal.Zero, now)
	return nil
}

// Close settles the event with outcome as the winning pool.
//
// With at most one funded pool the event degenerates to void. A declared
// winner nobody backed forfeits the whole pot to the house. Otherwise the
// commission on the losing pools goes to the house and the rest stays in the
// ledger for winners to withdraw.
func (e *Event) Close(ctx context.Context, caller common.Address, outcome int) error {
	now, err := e.closable(caller)
	if err != nil {
		return err
	}
	if !e.validPool(outcome) {
		return ErrNotExistingPool
	}

	funded := 0
	for _, t := range e.state.PoolTotals {
		if t.IsPositive() {
			funded++
		}
	}
	house := e.reg.House()
	winTotal := e.state.PoolTotals[outcome]

	switch {
	case funded <= 1:
		e.state.Result = model.Result{Kind: model.ResultVoid}

	case winTotal.IsZero():
		pot := e.state.Held()
		if err := e.pay(ctx, house, pot); err != nil {
			return err
		}
		e.state.Forfeited = pot
		e.state.PaidOut = e.state.PaidOut.Add(pot)
		e.state.Result = model.Result{Kind: model.ResultForfeited, Pool: outcome}
		e.emit(model.RecordTreasuryTransferred, outcome, house, pot, now)

	default:
		commission := e.commission(e.state.Staked().Sub(winTotal))
		if commission.IsPositive() {
			if err := e.pay(ctx, house, commission); err != nil {
				return err
			}
		}
		e.state.Commission = commission
		e.state.PaidOut = e.state.PaidOut.Add(commission)
		e.state.Result = model.Result{Kind: model.ResultWin, Pool: outcome}
		e.emit(model.RecordCommissionPaid, outcome, house, commission, now)
	}

	e.state.ClosedAt = now
	e.emit(model.RecordEventEnded, outcome, caller, decimal.Zero, now)
	return nil
}

// Withdraw pays bettor whatever the event owes them and returns the amount.
// A second call, or a call by someone owed nothing, moves no funds.
func (e *Event) Withdraw(ctx context.Context, bettor common.Address) (decimal.Decimal, error) {
	if e.state.Withdrawn[bettor] {
		return decimal.Zero, nil
	}
	now := e.now()

	switch e.state.Result.Kind {
	case model.ResultOpen:
		if !now.After(e.state.Deadline) {
			return decimal.Zero, ErrCannotWithdraw
		}
		return e.refund(ctx, bettor, now)

	case model.ResultVoid:
		return e.refund(ctx, bettor, now)

	case model.ResultWin:
		return e.reward(ctx, bettor, now)

	default:
		// Forfeited: the pot already went to the house.
		e.state.Withdrawn[bettor] = true
		return decimal.Zero, nil
	}
}

func (e *Event) refund(ctx context.Context, bettor common.Address, now time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for pool := range e.state.Stakes {
		total = total.Add(e.state.Stakes[pool][bettor])
	}
	if total.IsPositive() {
		if err := e.pay(ctx, bettor, total); err != nil {
			return decimal.Zero, err
		}
		e.state.PaidOut = e.state.PaidOut.Add(total)
		for pool := range e.state.Stakes {
			if s := e.state.Stakes[pool][bettor]; s.IsPositive() {
				e.emit(model.RecordBetRefunded, pool, bettor, s, now)
			}
		}
	}
	e.state.Withdrawn[bettor] = true
	return total, nil
}

func (e *Event) reward(ctx context.Context, bettor common.Address, now time.Time) (decimal.Decimal, error) {
	win := e.state.Result.Pool
	winTotal := e.state.PoolTotals[win]
	amount := e.payout(e.state.Stakes[win][bettor], winTotal, e.state.Staked().Sub(winTotal))
	if amount.IsPositive() {
		if err := e.pay(ctx, bettor, amount); err != nil {
			return decimal.Zero, err
		}
		e.state.PaidOut = e.state.PaidOut.Add(amount)
		e.emit(model.RecordBetRewarded, win, bettor, amount, now)
	}
	e.state.Withdrawn[bettor] = true
	return amount, nil
}

// payout is stake + stake/winTotal × losing × (100 − rate)/100, truncated to
// the asset's granularity.
func (e *Event) payout(stake, winTotal, losing decimal.Decimal) decimal.Decimal {
	if !stake.IsPositive() || !winTotal.IsPositive() {
		return decimal.Zero
	}
	if !losing.IsPositive() {
		return stake
	}
	num := stake.Mul(losing).Mul(decimal.NewFromInt(100 - e.state.CommissionRate))
	share, _ := num.QuoRem(winTotal.Mul(hundred), e.token.Decimals())
	return stake.Add(share)
}

func (e *Event) commission(losing decimal.Decimal) decimal.Decimal {
	c, _ := losing.Mul(decimal.NewFromInt(e.state.CommissionRate)).QuoRem(hundred, e.token.Decimals())
	return c
}

// pay transfers amount out of the event's own balance.
func (e *Event) pay(ctx context.Context, to common.Address, amount decimal.Decimal) error {
	return transferErr(e.token.Transfer(ctx, e.state.Address, to, amount))
}

func transferErr(ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if !ok {
		return ErrTransferFailed
	}
	return nil
}

// closable checks that caller may close the event right now.
func (e *Event) closable(caller common.Address) (time.Time, error) {
	if caller != e.reg.Address() {
		return time.Time{}, ErrNotEventRegistry
	}
	if e.state.Result.Terminal() {
		return time.Time{}, ErrAlreadyClosed
	}
	now := e.now()
	if now.After(e.state.Deadline) {
		return time.Time{}, ErrDeadlinePassed
	}
	return now, nil
}

func (e *Event) validPool(pool int) bool {
	return pool >= 0 && pool < e.state.PoolCount
}

func (e *Event) emit(kind model.RecordKind, pool int, account common.Address, amount decimal.Decimal, at time.Time) *model.Record {
	e.records = append(e.records, model.Record{
		ID:      uuid.New().String(),
		Kind:    kind,
		Event:   e.state.Address,
		Pool:    pool,
		Account: account,
		Amount:  amount,
		At:      at,
	})
	return &e.records[len(e.records)-1]
}
