package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/model"
)

// PlaceBet stakes amount of bettor's funds on pool. The bettor must have
// approved the event address for at least amount beforehand.
func (r *Registry) PlaceBet(ctx context.Context, bettor, event common.Address, pool int, amount decimal.Decimal, referrer uint64) (err error) {
	defer track("place_bet", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.begin(ctx, event)
	if err != nil {
		return err
	}
	if err := t.ledger.PlaceBet(ctx, bettor, pool, amount, referrer); err != nil {
		return err
	}
	if err := r.settle(ctx, t); err != nil {
		return err
	}

	slog.Info("bet placed",
		"event", event.Hex(),
		"pool", pool,
		"bettor", bettor.Hex(),
		"amount", amount.String(),
		"referrer", referrer,
	)
	return nil
}

// Withdraw pays bettor whatever event owes them. Repeated calls return zero.
func (r *Registry) Withdraw(ctx context.Context, bettor, event common.Address) (paid decimal.Decimal, err error) {
	defer track("withdraw", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.begin(ctx, event)
	if err != nil {
		return decimal.Zero, err
	}
	if t.pre.Withdrawn[bettor] {
		return decimal.Zero, nil
	}
	paid, err = t.ledger.Withdraw(ctx, bettor)
	if err != nil {
		return decimal.Zero, err
	}
	if err := r.settle(ctx, t); err != nil {
		return decimal.Zero, err
	}

	slog.Info("withdrawal",
		"event", event.Hex(),
		"bettor", bettor.Hex(),
		"amount", paid.String(),
		"result", t.ledger.Result().Kind.String(),
	)
	return paid, nil
}

// --- Reads ---

// CanBet reports whether event accepts bets right now.
func (r *Registry) CanBet(ctx context.Context, event common.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, err := r.loadEvent(ctx, event)
	if err != nil {
		return false, err
	}
	return betsOpen(ev, r.clock()), nil
}

// Event returns a copy of the persisted event.
func (r *Registry) Event(ctx context.Context, event common.Address) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadEvent(ctx, event)
}

// PotentialGain previews account's payout should pool win, with extra added
// to its stake.
func (r *Registry) PotentialGain(ctx context.Context, event common.Address, pool int, account common.Address, extra decimal.Decimal) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.view(ctx, event)
	if err != nil {
		return decimal.Zero, err
	}
	return l.PotentialGain(pool, account, extra)
}

// PoolShare returns pool's integer percentage of the event's stakes.
func (r *Registry) PoolShare(ctx context.Context, event common.Address, pool int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.view(ctx, event)
	if err != nil {
		return 0, err
	}
	return l.PoolShare(pool)
}

func (r *Registry) CountBettorsPerPool(ctx context.Context, event common.Address, pool int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.view(ctx, event)
	if err != nil {
		return 0, err
	}
	return l.CountBettorsPerPool(pool)
}

func (r *Registry) ListBettorsPerPool(ctx context.Context, event common.Address, offset, limit, pool int) ([]common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.view(ctx, event)
	if err != nil {
		return nil, err
	}
	return l.ListBettorsPerPool(offset, limit, pool)
}

func (r *Registry) CountPartnerIDs(ctx context.Context, event, account common.Address) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.view(ctx, event)
	if err != nil {
		return 0, err
	}
	return l.CountPartnerIDs(account), nil
}

func (r *Registry) ListPartnerIDs(ctx context.Context, event common.Address, offset, limit int, account common.Address) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := r.view(ctx, event)
	if err != nil {
		return nil, err
	}
	return l.ListPartnerIDs(offset, limit, account), nil
}

// CountEvents returns how many events were ever created.
func (r *Registry) CountEvents(ctx context.Context) (int, error) {
	return r.store.CountEvents(ctx)
}

// ListEvents returns event addresses in creation order.
func (r *Registry) ListEvents(ctx context.Context, offset, limit int) ([]common.Address, error) {
	if offset < 0 || limit <= 0 {
		return []common.Address{}, nil
	}
	return r.store.ListEvents(ctx, offset, limit)
}

// CountOpenEvents returns how many events are not closed yet.
func (r *Registry) CountOpenEvents(ctx context.Context) (int, error) {
	return r.store.CountOpenEvents(ctx)
}

// ListOpenEvents returns open event addresses in creation order.
func (r *Registry) ListOpenEvents(ctx context.Context, offset, limit int) ([]common.Address, error) {
	if offset < 0 || limit <= 0 {
		return []common.Address{}, nil
	}
	return r.store.ListOpenEvents(ctx, offset, limit)
}

// Records returns every record emitted for event, oldest first.
func (r *Registry) Records(ctx context.Context, event common.Address) ([]model.Record, error) {
	return r.store.GetRecordsByEvent(ctx, event)
}
