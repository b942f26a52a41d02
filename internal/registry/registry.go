// Package registry is the factory and administrative gate for events. It
// owns the global settings, the per-event betting schedule and the event
// enumerations, and it is the only authority allowed to close an event
// ledger.
//
// Every public method runs as one serialized transaction: the event and
// settings are loaded and a private copy is mutated. The new state is
// persisted with a single store.Apply before any funds move; if a transfer
// then fails, the loaded state is written back. Records are published only
// after both steps succeed. A failed call leaves no effect behind.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/asset"
	"github.com/atmx/wager-engine/internal/auth"
	"github.com/atmx/wager-engine/internal/broadcast"
	"github.com/atmx/wager-engine/internal/ledger"
	"github.com/atmx/wager-engine/internal/metrics"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

const (
	MinPools = 2
	MaxPools = 31

	MinCommission     = 1
	MaxCommission     = 59
	DefaultCommission = 10

	// DefaultLifetime is how long a new event may be closed by the registry.
	DefaultLifetime = 52 * 7 * 24 * time.Hour
)

var (
	ErrUnauthorized     = errors.New("registry: caller is not an admin")
	ErrUnknownEvent     = errors.New("registry: unknown event")
	ErrWrongNbTeam      = errors.New("registry: pool count out of range")
	ErrInvalidMinStake  = errors.New("registry: invalid minimum stake")
	ErrWrongDeadline    = errors.New("registry: deadline must be in the future")
	ErrAlreadyClosed    = errors.New("registry: event already closed")
	ErrEventClosed      = errors.New("registry: cannot schedule a closed event")
	ErrWrongPercentage  = errors.New("registry: commission percentage out of range")
	ErrZeroAddress      = errors.New("registry: zero address")
	ErrDeadlineExceeded = errors.New("registry: event deadline already passed")
)

// Registry serializes every operation on the events it created.
type Registry struct {
	mu       sync.Mutex
	store    store.Store
	tokens   asset.Directory
	roles    auth.Authorizer
	clock    func() time.Time
	address  common.Address
	pub      broadcast.Publisher
	settings model.Settings
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.clock = now }
}

// WithAddress sets the registry's own account, which closes events and
// seeds event ledger addresses.
func WithAddress(addr common.Address) Option {
	return func(r *Registry) { r.address = addr }
}

// WithPublisher sets where committed records are broadcast.
func WithPublisher(p broadcast.Publisher) Option {
	return func(r *Registry) { r.pub = p }
}

// WithInitialSettings seeds the settings used when the store holds none.
// A zero CommissionRate falls back to DefaultCommission.
func WithInitialSettings(s model.Settings) Option {
	return func(r *Registry) { r.settings = s }
}

// New loads the registry settings from st, persisting the initial settings
// on first start.
func New(ctx context.Context, st store.Store, tokens asset.Directory, roles auth.Authorizer, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:  st,
		tokens: tokens,
		roles:  roles,
		clock:  time.Now,
		pub:    broadcast.Discard{},
	}
	for _, opt := range opts {
		opt(r)
	}

	saved, err := st.GetSettings(ctx)
	switch {
	case err == nil:
		r.settings = *saved
	case errors.Is(err, store.ErrNotFound):
		if r.settings.CommissionRate == 0 {
			r.settings.CommissionRate = DefaultCommission
		}
		initial := r.settings
		if err := st.Apply(ctx, &store.Commit{Settings: &initial}); err != nil {
			return nil, fmt.Errorf("registry: save initial settings: %w", err)
		}
		slog.Info("registry settings initialized",
			"commission", initial.CommissionRate,
			"asset", initial.Asset.Hex(),
			"house", initial.House.Hex(),
		)
	default:
		return nil, fmt.Errorf("registry: load settings: %w", err)
	}

	if n, err := st.CountOpenEvents(ctx); err == nil {
		metrics.OpenEvents.Set(float64(n))
	}
	return r, nil
}

// Address is the registry's own account.
func (r *Registry) Address() common.Address { return r.address }

// Settings returns the current global settings.
func (r *Registry) Settings() model.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// authority is the registry as seen by a ledger during one transaction.
type authority struct {
	address common.Address
	house   common.Address
}

func (a authority) Address() common.Address { return a.address }
func (a authority) House() common.Address   { return a.house }

func (a authority) BetsOpen(ev *model.Event, now time.Time) bool { return betsOpen(ev, now) }

// betsOpen is the betting schedule: open result, no elapsed stop, deadline
// not passed.
func betsOpen(ev *model.Event, now time.Time) bool {
	if ev.Result.Terminal() {
		return false
	}
	if !ev.StopBetsAt.IsZero() && !now.Before(ev.StopBetsAt) {
		return false
	}
	return !now.After(ev.Deadline)
}

func (r *Registry) asAuthority() authority {
	return authority{address: r.address, house: r.settings.House}
}

func (r *Registry) requireAdmin(caller common.Address) error {
	if !r.roles.HasRole(auth.RoleAdmin, caller) {
		return ErrUnauthorized
	}
	return nil
}

// loadEvent returns a private copy of the persisted event.
func (r *Registry) loadEvent(ctx context.Context, addr common.Address) (*model.Event, error) {
	ev, err := r.store.GetEvent(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, addr.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("registry: load event: %w", err)
	}
	return ev.Clone(), nil
}

// open wraps a loaded event in a ledger bound to its asset.
func (r *Registry) open(ev *model.Event) (*ledger.Event, error) {
	token, err := r.tokens.Token(ev.Asset)
	if err != nil {
		return nil, err
	}
	return ledger.Load(ev, r.asAuthority(), token, r.clock), nil
}

// view loads an event for a read-only query.
func (r *Registry) view(ctx context.Context, addr common.Address) (*ledger.Event, error) {
	ev, err := r.loadEvent(ctx, addr)
	if err != nil {
		return nil, err
	}
	return r.open(ev)
}

// commit persists a transaction that moves no funds, then broadcasts its
// records.
func (r *Registry) commit(ctx context.Context, c *store.Commit) error {
	if err := r.store.Apply(ctx, c); err != nil {
		return fmt.Errorf("registry: commit: %w", err)
	}
	if c.Settings != nil {
		r.settings = *c.Settings
	}
	r.announce(ctx, c.Records)
	return nil
}

// announce updates metrics and broadcasts committed records. Publishing is
// best effort: the record log in the store is authoritative.
func (r *Registry) announce(ctx context.Context, records []model.Record) {
	observe(records)
	if len(records) == 0 {
		return
	}
	if err := r.pub.Publish(ctx, records...); err != nil {
		metrics.PublishFailures.Inc()
		slog.Warn("record broadcast failed", "records", len(records), "err", err)
	}
}

// track times an operation and counts its rejection. Use as
// defer track("op", time.Now(), &err).
func track(op string, start time.Time, err *error) {
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if *err != nil {
		metrics.RejectionsTotal.WithLabelValues(op).Inc()
	}
}

func (r *Registry) record(kind model.RecordKind, event common.Address, pool int, account common.Address, amount decimal.Decimal) model.Record {
	return model.Record{
		ID:      uuid.New().String(),
		Kind:    kind,
		Event:   event,
		Pool:    pool,
		Account: account,
		Amount:  amount,
		At:      r.clock(),
	}
}

func observe(records []model.Record) {
	for _, rec := range records {
		switch rec.Kind {
		case model.RecordBetPlaced:
			metrics.BetsTotal.Inc()
			metrics.StakeVolume.Add(rec.Amount.InexactFloat64())
		case model.RecordBetRefunded:
			metrics.PayoutVolume.WithLabelValues("refund").Add(rec.Amount.InexactFloat64())
		case model.RecordBetRewarded:
			metrics.PayoutVolume.WithLabelValues("reward").Add(rec.Amount.InexactFloat64())
		case model.RecordCommissionPaid:
			metrics.PayoutVolume.WithLabelValues("commission").Add(rec.Amount.InexactFloat64())
		case model.RecordTreasuryTransferred:
			metrics.PayoutVolume.WithLabelValues("treasury").Add(rec.Amount.InexactFloat64())
		case model.RecordEventCreated:
			metrics.OpenEvents.Inc()
		}
	}
}
