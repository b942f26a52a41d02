package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/ledger"
	"github.com/atmx/wager-engine/internal/metrics"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

// CreateEvent opens a new event with poolCount outcome pools. The event
// ledger address is derived from the registry address and its creation
// nonce, and the current commission rate and asset are snapshotted into it.
func (r *Registry) CreateEvent(ctx context.Context, caller common.Address, poolCount int, minStake decimal.Decimal) (addr common.Address, err error) {
	defer track("create_event", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return common.Address{}, err
	}
	if poolCount < MinPools || poolCount > MaxPools {
		return common.Address{}, fmt.Errorf("%w: %d", ErrWrongNbTeam, poolCount)
	}
	settings := r.settings
	token, err := r.tokens.Token(settings.Asset)
	if err != nil {
		return common.Address{}, err
	}
	if !minStake.IsPositive() || !minStake.Equal(minStake.Truncate(token.Decimals())) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrInvalidMinStake, minStake)
	}

	now := r.clock()
	addr = crypto.CreateAddress(r.address, settings.Nonce)
	ev := model.NewEvent(addr, settings.Asset, poolCount, minStake, settings.CommissionRate, now, now.Add(DefaultLifetime))
	settings.Nonce++

	rec := r.record(model.RecordEventCreated, addr, poolCount, caller, minStake)
	if err := r.commit(ctx, &store.Commit{Event: ev, Settings: &settings, Records: []model.Record{rec}}); err != nil {
		return common.Address{}, err
	}

	slog.Info("event created",
		"event", addr.Hex(),
		"pools", poolCount,
		"min_stake", minStake.String(),
		"commission", ev.CommissionRate,
		"deadline", ev.Deadline,
	)
	return addr, nil
}

// EnableBet lifts any stop on betting. Enabling an event that was never
// disabled changes nothing.
func (r *Registry) EnableBet(ctx context.Context, caller, event common.Address) (err error) {
	defer track("enable_bet", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, err := r.schedulable(ctx, caller, event)
	if err != nil {
		return err
	}
	if ev.StopBetsAt.IsZero() {
		return nil
	}
	ev.StopBetsAt = time.Time{}
	rec := r.record(model.RecordBetsEnabled, event, 0, caller, decimal.Zero)
	return r.commit(ctx, &store.Commit{Event: ev, Records: []model.Record{rec}})
}

// DisableBet stops betting now.
func (r *Registry) DisableBet(ctx context.Context, caller, event common.Address) (err error) {
	defer track("disable_bet", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, err := r.schedulable(ctx, caller, event)
	if err != nil {
		return err
	}
	return r.stopBetsAt(ctx, caller, ev, r.clock())
}

// DisableBetAtDate schedules betting to stop at `at`. A date in the past, a
// date after an already scheduled stop, or any date once a stop has elapsed
// changes nothing.
func (r *Registry) DisableBetAtDate(ctx context.Context, caller, event common.Address, at time.Time) (err error) {
	defer track("disable_bet_at", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, err := r.schedulable(ctx, caller, event)
	if err != nil {
		return err
	}
	if at.Before(r.clock()) {
		return nil
	}
	return r.stopBetsAt(ctx, caller, ev, at)
}

// stopBetsAt moves the stop earlier only.
func (r *Registry) stopBetsAt(ctx context.Context, caller common.Address, ev *model.Event, at time.Time) error {
	if !ev.StopBetsAt.IsZero() {
		if !r.clock().Before(ev.StopBetsAt) || !at.Before(ev.StopBetsAt) {
			return nil
		}
	}
	ev.StopBetsAt = at
	rec := r.record(model.RecordBetsDisabled, ev.Address, 0, caller, decimal.Zero)
	return r.commit(ctx, &store.Commit{Event: ev, Records: []model.Record{rec}})
}

// schedulable loads an event whose betting schedule may still change.
func (r *Registry) schedulable(ctx context.Context, caller, event common.Address) (*model.Event, error) {
	if err := r.requireAdmin(caller); err != nil {
		return nil, err
	}
	ev, err := r.loadEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if ev.Result.Terminal() {
		return nil, ErrEventClosed
	}
	return ev, nil
}

// SetDeadline moves the closing deadline of an open event to a strictly
// future instant. Once the current deadline has passed the event is only
// refundable and the deadline is frozen.
func (r *Registry) SetDeadline(ctx context.Context, caller, event common.Address, deadline time.Time) (err error) {
	defer track("set_deadline", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, err := r.schedulable(ctx, caller, event)
	if err != nil {
		return err
	}
	now := r.clock()
	if !deadline.After(now) {
		return ErrWrongDeadline
	}
	if now.After(ev.Deadline) {
		return ErrDeadlineExceeded
	}
	ev.Deadline = deadline
	rec := r.record(model.RecordDeadlineChanged, event, 0, caller, decimal.Zero)
	return r.commit(ctx, &store.Commit{Event: ev, Records: []model.Record{rec}})
}

// CancelEvent voids an open event; every stake becomes refundable.
func (r *Registry) CancelEvent(ctx context.Context, caller, event common.Address) error {
	return r.close(ctx, "cancel_event", caller, event, func(l *ledger.Event) error {
		return l.Cancel(ctx, r.address)
	})
}

// EndEvent declares pool the winner and settles the event.
func (r *Registry) EndEvent(ctx context.Context, caller, event common.Address, pool int) error {
	return r.close(ctx, "end_event", caller, event, func(l *ledger.Event) error {
		return l.Close(ctx, r.address, pool)
	})
}

func (r *Registry) close(ctx context.Context, op string, caller, event common.Address, decide func(*ledger.Event) error) (err error) {
	defer track(op, time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	t, err := r.begin(ctx, event)
	if err != nil {
		return err
	}
	if t.pre.Result.Terminal() {
		return ErrAlreadyClosed
	}
	if err := decide(t.ledger); err != nil {
		return err
	}
	if err := r.settle(ctx, t); err != nil {
		return err
	}

	ev := t.ledger.State()
	metrics.SettlementsTotal.WithLabelValues(ev.Result.Kind.String()).Inc()
	metrics.OpenEvents.Dec()
	slog.Info("event closed",
		"event", event.Hex(),
		"result", ev.Result.Kind.String(),
		"pool", ev.Result.Pool,
		"commission", ev.Commission.String(),
		"forfeited", ev.Forfeited.String(),
	)
	return nil
}

// SetCommissionPercentage changes the rate snapshotted into future events.
func (r *Registry) SetCommissionPercentage(ctx context.Context, caller common.Address, pct int64) (err error) {
	defer track("set_commission", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if pct < MinCommission || pct > MaxCommission {
		return fmt.Errorf("%w: %d", ErrWrongPercentage, pct)
	}
	settings := r.settings
	settings.CommissionRate = pct
	return r.saveSettings(ctx, caller, &settings, decimal.NewFromInt(pct))
}

// SetTokenAddress switches the asset used by events created afterwards.
func (r *Registry) SetTokenAddress(ctx context.Context, caller, token common.Address) (err error) {
	defer track("set_asset", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if token == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, err := r.tokens.Token(token); err != nil {
		return err
	}
	settings := r.settings
	settings.Asset = token
	return r.saveSettings(ctx, caller, &settings, decimal.Zero)
}

// SetOwnerAddress changes the house beneficiary. It applies immediately,
// including to commission and forfeiture of events already open.
func (r *Registry) SetOwnerAddress(ctx context.Context, caller, house common.Address) (err error) {
	defer track("set_house", time.Now(), &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if house == (common.Address{}) {
		return ErrZeroAddress
	}
	settings := r.settings
	settings.House = house
	return r.saveSettings(ctx, caller, &settings, decimal.Zero)
}

func (r *Registry) saveSettings(ctx context.Context, caller common.Address, s *model.Settings, amount decimal.Decimal) error {
	rec := r.record(model.RecordSettingsChanged, common.Address{}, 0, caller, amount)
	if err := r.commit(ctx, &store.Commit{Settings: s, Records: []model.Record{rec}}); err != nil {
		return err
	}
	slog.Info("registry settings changed",
		"commission", s.CommissionRate,
		"asset", s.Asset.Hex(),
		"house", s.House.Hex(),
	)
	return nil
}
