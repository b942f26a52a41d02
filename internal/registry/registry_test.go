package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/wager-engine/internal/asset"
	"github.com/atmx/wager-engine/internal/auth"
	"github.com/atmx/wager-engine/internal/ledger"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

var (
	start        = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	houseAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	assetAddr    = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	adminAddr    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	strangerAddr = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bettor(b byte) common.Address { return common.BytesToAddress([]byte{0x10, b}) }

// capture records every published batch.
type capture struct {
	batches [][]model.Record
	err     error
}

func (c *capture) Publish(_ context.Context, records ...model.Record) error {
	c.batches = append(c.batches, records)
	return c.err
}

// flakyStore fails the next `failures` writes.
type flakyStore struct {
	*store.MemoryStore
	failures int
}

func (s *flakyStore) Apply(ctx context.Context, c *store.Commit) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("db down")
	}
	return s.MemoryStore.Apply(ctx, c)
}

type env struct {
	t     *testing.T
	ctx   context.Context
	now   time.Time
	token *asset.MemoryToken
	store *store.MemoryStore
	flaky *flakyStore
	pub   *capture
	reg   *Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:     t,
		ctx:   context.Background(),
		now:   start,
		token: asset.NewMemoryToken(assetAddr, 18),
		store: store.NewMemoryStore(),
		pub:   &capture{},
	}
	e.flaky = &flakyStore{MemoryStore: e.store}
	reg, err := New(e.ctx, e.flaky, asset.NewStaticDirectory(e.token), auth.NewRoles(adminAddr),
		WithClock(func() time.Time { return e.now }),
		WithAddress(registryAddr),
		WithPublisher(e.pub),
		WithInitialSettings(model.Settings{Asset: assetAddr, House: houseAddr}),
	)
	require.NoError(t, err)
	e.reg = reg
	return e
}

func (e *env) create(pools int) common.Address {
	e.t.Helper()
	addr, err := e.reg.CreateEvent(e.ctx, adminAddr, pools, d("1"))
	require.NoError(e.t, err)
	return addr
}

func (e *env) bet(event, who common.Address, pool int, amount string) {
	e.t.Helper()
	amt := d(amount)
	e.fund(who, event, amt)
	require.NoError(e.t, e.reg.PlaceBet(e.ctx, who, event, pool, amt, 0))
}

// fund mints amount to who and approves event to pull it.
func (e *env) fund(who, event common.Address, amount decimal.Decimal) {
	e.t.Helper()
	require.NoError(e.t, e.token.Mint(e.ctx, who, amount))
	allowed, err := e.token.Allowance(e.ctx, who, event)
	require.NoError(e.t, err)
	require.NoError(e.t, e.token.Approve(e.ctx, who, event, allowed.Add(amount)))
}

func (e *env) balance(who common.Address) decimal.Decimal {
	e.t.Helper()
	b, err := e.token.BalanceOf(e.ctx, who)
	require.NoError(e.t, err)
	return b
}

func (e *env) stopBetsAt(event common.Address) time.Time {
	e.t.Helper()
	ev, err := e.reg.Event(e.ctx, event)
	require.NoError(e.t, err)
	return ev.StopBetsAt
}

func (e *env) canBet(event common.Address) bool {
	e.t.Helper()
	ok, err := e.reg.CanBet(e.ctx, event)
	require.NoError(e.t, err)
	return ok
}

// assertConserved checks the persisted books against the asset balance.
func (e *env) assertConserved(event common.Address) {
	e.t.Helper()
	ev, err := e.reg.Event(e.ctx, event)
	require.NoError(e.t, err)
	bal := e.balance(event)
	assert.True(e.t, ev.Held().Equal(bal), "held %s, asset balance %s", ev.Held(), bal)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "expected %s, got %s", want, got)
}

func TestNew_PersistsInitialSettings(t *testing.T) {
	e := newEnv(t)
	s := e.reg.Settings()
	assert.Equal(t, int64(DefaultCommission), s.CommissionRate)
	assert.Equal(t, assetAddr, s.Asset)
	assert.Equal(t, houseAddr, s.House)

	require.NoError(t, e.reg.SetCommissionPercentage(e.ctx, adminAddr, 25))
	e.create(2)

	// A restart keeps what was saved, not the initial settings.
	again, err := New(e.ctx, e.store, asset.NewStaticDirectory(e.token), auth.NewRoles(adminAddr),
		WithAddress(registryAddr),
		WithInitialSettings(model.Settings{CommissionRate: 40}),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(25), again.Settings().CommissionRate)
	assert.Equal(t, uint64(1), again.Settings().Nonce)
}

func TestCreateEvent(t *testing.T) {
	e := newEnv(t)

	first := e.create(3)
	second := e.create(2)
	assert.Equal(t, crypto.CreateAddress(registryAddr, 0), first)
	assert.Equal(t, crypto.CreateAddress(registryAddr, 1), second)

	ev, err := e.reg.Event(e.ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 3, ev.PoolCount)
	assert.Equal(t, int64(10), ev.CommissionRate)
	assert.Equal(t, assetAddr, ev.Asset)
	assert.Equal(t, start.Add(52*7*24*time.Hour), ev.Deadline)
	assert.True(t, ev.StopBetsAt.IsZero())
	assert.Equal(t, model.ResultOpen, ev.Result.Kind)
	assert.True(t, e.canBet(first))

	n, _ := e.reg.CountEvents(e.ctx)
	assert.Equal(t, 2, n)
	list, _ := e.reg.ListEvents(e.ctx, 0, n)
	assert.Equal(t, []common.Address{first, second}, list)

	recs, _ := e.reg.Records(e.ctx, first)
	require.Len(t, recs, 1)
	assert.Equal(t, model.RecordEventCreated, recs[0].Kind)
	assert.Equal(t, adminAddr, recs[0].Account)
	require.Len(t, e.pub.batches, 2)
	assert.Equal(t, first, e.pub.batches[0][0].Event)
}

func TestCreateEvent_Rejections(t *testing.T) {
	e := newEnv(t)

	_, err := e.reg.CreateEvent(e.ctx, strangerAddr, 2, d("1"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	for _, pools := range []int{-1, 0, 1, 32} {
		_, err := e.reg.CreateEvent(e.ctx, adminAddr, pools, d("1"))
		assert.ErrorIs(t, err, ErrWrongNbTeam, "pools=%d", pools)
	}
	for _, stake := range []string{"0", "-1", "0.0000000000000000001"} {
		_, err := e.reg.CreateEvent(e.ctx, adminAddr, 2, d(stake))
		assert.ErrorIs(t, err, ErrInvalidMinStake, "min stake %s", stake)
	}

	n, _ := e.reg.CountEvents(e.ctx)
	assert.Zero(t, n)
	assert.Zero(t, e.reg.Settings().Nonce)

	for _, pools := range []int{MinPools, MaxPools} {
		_, err := e.reg.CreateEvent(e.ctx, adminAddr, pools, d("1"))
		assert.NoError(t, err, "pools=%d", pools)
	}
}

func TestCommissionIsSnapshotted(t *testing.T) {
	e := newEnv(t)
	before := e.create(2)
	require.NoError(t, e.reg.SetCommissionPercentage(e.ctx, adminAddr, 20))
	after := e.create(2)

	for event, want := range map[common.Address]int64{before: 10, after: 20} {
		ev, err := e.reg.Event(e.ctx, event)
		require.NoError(t, err)
		assert.Equal(t, want, ev.CommissionRate)
	}

	// The old event still settles at its own rate.
	e.bet(before, bettor(1), 0, "10")
	e.bet(before, bettor(2), 1, "10")
	require.NoError(t, e.reg.EndEvent(e.ctx, adminAddr, before, 0))
	assertAmount(t, "1", e.balance(houseAddr))
}

func TestSettings_Validation(t *testing.T) {
	e := newEnv(t)

	for _, pct := range []int64{0, -5, 60, 100} {
		assert.ErrorIs(t, e.reg.SetCommissionPercentage(e.ctx, adminAddr, pct), ErrWrongPercentage, "pct=%d", pct)
	}
	for _, pct := range []int64{MinCommission, MaxCommission} {
		assert.NoError(t, e.reg.SetCommissionPercentage(e.ctx, adminAddr, pct))
		assert.Equal(t, pct, e.reg.Settings().CommissionRate)
	}

	assert.ErrorIs(t, e.reg.SetTokenAddress(e.ctx, adminAddr, common.Address{}), ErrZeroAddress)
	assert.ErrorIs(t, e.reg.SetTokenAddress(e.ctx, adminAddr, bettor(9)), asset.ErrUnknownAsset)
	assert.ErrorIs(t, e.reg.SetOwnerAddress(e.ctx, adminAddr, common.Address{}), ErrZeroAddress)

	assert.ErrorIs(t, e.reg.SetCommissionPercentage(e.ctx, strangerAddr, 5), ErrUnauthorized)
	assert.ErrorIs(t, e.reg.SetTokenAddress(e.ctx, strangerAddr, assetAddr), ErrUnauthorized)
	assert.ErrorIs(t, e.reg.SetOwnerAddress(e.ctx, strangerAddr, bettor(1)), ErrUnauthorized)

	require.NoError(t, e.reg.SetOwnerAddress(e.ctx, adminAddr, bettor(1)))
	saved, err := e.store.GetSettings(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, bettor(1), saved.House)
}

func TestEnableBet(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)
	published := len(e.pub.batches)

	// Never disabled: nothing to do.
	require.NoError(t, e.reg.EnableBet(e.ctx, adminAddr, event))
	assert.Len(t, e.pub.batches, published)

	require.NoError(t, e.reg.DisableBet(e.ctx, adminAddr, event))
	assert.False(t, e.canBet(event))
	require.NoError(t, e.reg.EnableBet(e.ctx, adminAddr, event))
	assert.True(t, e.canBet(event))
	assert.True(t, e.stopBetsAt(event).IsZero())

	assert.ErrorIs(t, e.reg.EnableBet(e.ctx, strangerAddr, event), ErrUnauthorized)
	assert.ErrorIs(t, e.reg.DisableBet(e.ctx, strangerAddr, event), ErrUnauthorized)
	assert.ErrorIs(t, e.reg.DisableBetAtDate(e.ctx, strangerAddr, event, start.Add(time.Hour)), ErrUnauthorized)
}

func TestDisableBetAtDate_Schedule(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)
	stop := start.Add(10 * time.Minute)

	// Past dates are ignored.
	require.NoError(t, e.reg.DisableBetAtDate(e.ctx, adminAddr, event, start.Add(-time.Minute)))
	assert.True(t, e.stopBetsAt(event).IsZero())

	require.NoError(t, e.reg.DisableBetAtDate(e.ctx, adminAddr, event, stop))
	assert.Equal(t, stop, e.stopBetsAt(event))
	assert.True(t, e.canBet(event), "stop is still ahead")

	// A later date does not postpone the stop; an earlier one brings it forward.
	require.NoError(t, e.reg.DisableBetAtDate(e.ctx, adminAddr, event, stop.Add(time.Hour)))
	assert.Equal(t, stop, e.stopBetsAt(event))
	earlier := start.Add(5 * time.Minute)
	require.NoError(t, e.reg.DisableBetAtDate(e.ctx, adminAddr, event, earlier))
	assert.Equal(t, earlier, e.stopBetsAt(event))

	e.now = earlier
	assert.False(t, e.canBet(event), "stop reached")
	require.NoError(t, e.token.Mint(e.ctx, bettor(1), d("5")))
	require.NoError(t, e.token.Approve(e.ctx, bettor(1), event, d("5")))
	assert.ErrorIs(t, e.reg.PlaceBet(e.ctx, bettor(1), event, 0, d("5"), 0), ledger.ErrCannotBet)

	// Once the stop has elapsed further disables change nothing.
	e.now = earlier.Add(time.Minute)
	require.NoError(t, e.reg.DisableBet(e.ctx, adminAddr, event))
	require.NoError(t, e.reg.DisableBetAtDate(e.ctx, adminAddr, event, e.now.Add(time.Hour)))
	assert.Equal(t, earlier, e.stopBetsAt(event))

	// Enabling reopens betting.
	require.NoError(t, e.reg.EnableBet(e.ctx, adminAddr, event))
	assert.NoError(t, e.reg.PlaceBet(e.ctx, bettor(1), event, 0, d("5"), 0))
}

func TestDisableBet_OverridesScheduledStop(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)

	require.NoError(t, e.reg.DisableBetAtDate(e.ctx, adminAddr, event, start.Add(time.Hour)))
	e.now = start.Add(time.Minute)
	require.NoError(t, e.reg.DisableBet(e.ctx, adminAddr, event))
	assert.Equal(t, e.now, e.stopBetsAt(event))
	assert.False(t, e.canBet(event))

	recs, _ := e.reg.Records(e.ctx, event)
	var disabled int
	for _, r := range recs {
		if r.Kind == model.RecordBetsDisabled {
			disabled++
		}
	}
	assert.Equal(t, 2, disabled)
}

func TestScheduling_ClosedEvent(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)
	require.NoError(t, e.reg.CancelEvent(e.ctx, adminAddr, event))

	assert.ErrorIs(t, e.reg.EnableBet(e.ctx, adminAddr, event), ErrEventClosed)
	assert.ErrorIs(t, e.reg.DisableBet(e.ctx, adminAddr, event), ErrEventClosed)
	assert.ErrorIs(t, e.reg.DisableBetAtDate(e.ctx, adminAddr, event, start.Add(time.Hour)), ErrEventClosed)
	assert.ErrorIs(t, e.reg.SetDeadline(e.ctx, adminAddr, event, start.Add(time.Hour)), ErrEventClosed)
	assert.False(t, e.canBet(event))
}

func TestSetDeadline(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)

	assert.ErrorIs(t, e.reg.SetDeadline(e.ctx, adminAddr, event, start), ErrWrongDeadline)
	assert.ErrorIs(t, e.reg.SetDeadline(e.ctx, adminAddr, event, start.Add(-time.Hour)), ErrWrongDeadline)
	assert.ErrorIs(t, e.reg.SetDeadline(e.ctx, strangerAddr, event, start.Add(time.Hour)), ErrUnauthorized)

	deadline := start.Add(time.Hour)
	require.NoError(t, e.reg.SetDeadline(e.ctx, adminAddr, event, deadline))
	ev, _ := e.reg.Event(e.ctx, event)
	assert.Equal(t, deadline, ev.Deadline)

	e.now = deadline
	assert.True(t, e.canBet(event), "deadline itself is inclusive")

	e.now = deadline.Add(time.Second)
	assert.False(t, e.canBet(event))
	assert.ErrorIs(t, e.reg.SetDeadline(e.ctx, adminAddr, event, e.now.Add(time.Hour)), ErrDeadlineExceeded)
}

func TestEndEvent_Settlement(t *testing.T) {
	e := newEnv(t)
	event := e.create(3)
	other := e.create(2)

	stakes := []struct {
		who    common.Address
		pool   int
		amount string
	}{
		{bettor(1), 1, "30"},
		{bettor(2), 1, "5"},
		{bettor(3), 1, "30"},
		{bettor(4), 1, "40"},
		{bettor(5), 2, "50"},
		{bettor(6), 2, "70"},
	}
	for _, s := range stakes {
		e.bet(event, s.who, s.pool, s.amount)
	}
	e.assertConserved(event)

	share, err := e.reg.PoolShare(e.ctx, event, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(46), share)
	gain, err := e.reg.PotentialGain(e.ctx, event, 1, bettor(4), decimal.Zero)
	require.NoError(t, err)
	assertAmount(t, "81.142857142857142857", gain)

	_, err = e.reg.Withdraw(e.ctx, bettor(1), event)
	assert.ErrorIs(t, err, ledger.ErrCannotWithdraw)

	assert.ErrorIs(t, e.reg.EndEvent(e.ctx, strangerAddr, event, 1), ErrUnauthorized)
	assert.ErrorIs(t, e.reg.EndEvent(e.ctx, adminAddr, event, 3), ledger.ErrNotExistingPool)
	require.NoError(t, e.reg.EndEvent(e.ctx, adminAddr, event, 1))
	assert.ErrorIs(t, e.reg.EndEvent(e.ctx, adminAddr, event, 1), ErrAlreadyClosed)
	assert.ErrorIs(t, e.reg.CancelEvent(e.ctx, adminAddr, event), ErrAlreadyClosed)

	assertAmount(t, "12", e.balance(houseAddr))
	e.assertConserved(event)

	open, _ := e.reg.ListOpenEvents(e.ctx, 0, 10)
	assert.Equal(t, []common.Address{other}, open)
	n, _ := e.reg.CountOpenEvents(e.ctx)
	assert.Equal(t, 1, n)

	want := map[common.Address]string{
		bettor(1): "60.857142857142857142",
		bettor(2): "10.142857142857142857",
		bettor(3): "60.857142857142857142",
		bettor(4): "81.142857142857142857",
		bettor(5): "0",
		bettor(6): "0",
	}
	for who, amount := range want {
		paid, err := e.reg.Withdraw(e.ctx, who, event)
		require.NoError(t, err)
		assertAmount(t, amount, paid)

		again, err := e.reg.Withdraw(e.ctx, who, event)
		require.NoError(t, err)
		assert.True(t, again.IsZero(), "second withdrawal pays nothing")
		e.assertConserved(event)
	}

	recs, _ := e.reg.Records(e.ctx, event)
	counts := map[model.RecordKind]int{}
	for _, r := range recs {
		counts[r.Kind]++
	}
	assert.Equal(t, 1, counts[model.RecordEventCreated])
	assert.Equal(t, 6, counts[model.RecordBetPlaced])
	assert.Equal(t, 1, counts[model.RecordCommissionPaid])
	assert.Equal(t, 1, counts[model.RecordEventEnded])
	assert.Equal(t, 4, counts[model.RecordBetRewarded])
}

func TestEndEvent_NegativePoolIsRejected(t *testing.T) {
	e := newEnv(t)
	event := e.create(3)
	e.bet(event, bettor(1), 0, "10")
	e.bet(event, bettor(2), 1, "10")

	assert.ErrorIs(t, e.reg.EndEvent(e.ctx, adminAddr, event, -1), ledger.ErrNotExistingPool)

	ev, err := e.reg.Event(e.ctx, event)
	require.NoError(t, err)
	assert.Equal(t, model.ResultOpen, ev.Result.Kind)
	assert.True(t, e.canBet(event))
	n, _ := e.reg.CountOpenEvents(e.ctx)
	assert.Equal(t, 1, n)
}

func TestWithdraw_FailedCommitPaysNothing(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)
	e.bet(event, bettor(1), 0, "10")
	e.bet(event, bettor(2), 1, "10")
	require.NoError(t, e.reg.CancelEvent(e.ctx, adminAddr, event))

	e.flaky.failures = 1
	_, err := e.reg.Withdraw(e.ctx, bettor(1), event)
	require.Error(t, err)
	assert.True(t, e.balance(bettor(1)).IsZero())
	e.assertConserved(event)

	paid, err := e.reg.Withdraw(e.ctx, bettor(1), event)
	require.NoError(t, err)
	assertAmount(t, "10", paid)
	paid, err = e.reg.Withdraw(e.ctx, bettor(1), event)
	require.NoError(t, err)
	assert.True(t, paid.IsZero())

	assertAmount(t, "10", e.balance(bettor(1)))
	assertAmount(t, "10", e.balance(event))
	e.assertConserved(event)
}

func TestEndEvent_FailedCommitKeepsEventOpen(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)
	e.bet(event, bettor(1), 0, "10")
	e.bet(event, bettor(2), 1, "10")

	e.flaky.failures = 1
	require.Error(t, e.reg.EndEvent(e.ctx, adminAddr, event, 1))
	assert.True(t, e.balance(houseAddr).IsZero())
	ev, _ := e.reg.Event(e.ctx, event)
	assert.Equal(t, model.ResultOpen, ev.Result.Kind)
	e.assertConserved(event)

	require.NoError(t, e.reg.EndEvent(e.ctx, adminAddr, event, 1))
	assertAmount(t, "1", e.balance(houseAddr))
	e.assertConserved(event)
}

func TestEndEvent_SingleFundedPool(t *testing.T) {
	e := newEnv(t)
	event := e.create(4)
	e.bet(event, bettor(1), 3, "12")
	e.bet(event, bettor(2), 3, "8")

	require.NoError(t, e.reg.EndEvent(e.ctx, adminAddr, event, 1))
	ev, _ := e.reg.Event(e.ctx, event)
	assert.Equal(t, model.ResultVoid, ev.Result.Kind)

	for who, stake := range map[common.Address]string{bettor(1): "12", bettor(2): "8"} {
		paid, err := e.reg.Withdraw(e.ctx, who, event)
		require.NoError(t, err)
		assertAmount(t, stake, paid)
	}
	assert.True(t, e.balance(houseAddr).IsZero())
	assert.True(t, e.balance(event).IsZero())
}

func TestEndEvent_ForfeitureGoesToCurrentHouse(t *testing.T) {
	e := newEnv(t)
	event := e.create(3)
	e.bet(event, bettor(1), 0, "15")
	e.bet(event, bettor(2), 2, "20")

	newHouse := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	require.NoError(t, e.reg.SetOwnerAddress(e.ctx, adminAddr, newHouse))
	require.NoError(t, e.reg.EndEvent(e.ctx, adminAddr, event, 1))

	assertAmount(t, "35", e.balance(newHouse))
	assert.True(t, e.balance(houseAddr).IsZero())
	for _, who := range []common.Address{bettor(1), bettor(2)} {
		paid, err := e.reg.Withdraw(e.ctx, who, event)
		require.NoError(t, err)
		assert.True(t, paid.IsZero())
	}
	e.assertConserved(event)
}

func TestDeadlineFallback(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)
	e.bet(event, bettor(1), 0, "10")
	e.bet(event, bettor(2), 1, "4")

	ev, _ := e.reg.Event(e.ctx, event)
	e.now = ev.Deadline.Add(time.Second)

	assert.False(t, e.canBet(event))
	assert.ErrorIs(t, e.reg.EndEvent(e.ctx, adminAddr, event, 0), ledger.ErrDeadlinePassed)
	assert.ErrorIs(t, e.reg.CancelEvent(e.ctx, adminAddr, event), ledger.ErrDeadlinePassed)

	paid, err := e.reg.Withdraw(e.ctx, bettor(1), event)
	require.NoError(t, err)
	assertAmount(t, "10", paid)
	paid, err = e.reg.Withdraw(e.ctx, bettor(2), event)
	require.NoError(t, err)
	assertAmount(t, "4", paid)
	e.assertConserved(event)
}

func TestCancelEvent_RefundsEveryone(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)
	e.bet(event, bettor(1), 0, "10")
	e.bet(event, bettor(1), 1, "2")
	e.bet(event, bettor(2), 1, "4")

	assert.ErrorIs(t, e.reg.CancelEvent(e.ctx, strangerAddr, event), ErrUnauthorized)
	require.NoError(t, e.reg.CancelEvent(e.ctx, adminAddr, event))

	paid, err := e.reg.Withdraw(e.ctx, bettor(1), event)
	require.NoError(t, err)
	assertAmount(t, "12", paid)
	assertAmount(t, "12", e.balance(bettor(1)))
	assert.True(t, e.balance(houseAddr).IsZero())
}

func TestPlaceBet_Enumeration(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)
	for _, who := range []common.Address{bettor(3), bettor(1), bettor(3), bettor(2)} {
		amt := d("2")
		e.fund(who, event, amt)
		require.NoError(t, e.reg.PlaceBet(e.ctx, who, event, 0, amt, 42))
	}

	n, err := e.reg.CountBettorsPerPool(e.ctx, event, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	list, err := e.reg.ListBettorsPerPool(e.ctx, event, 0, n, 0)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{bettor(3), bettor(1), bettor(2)}, list)

	ids, err := e.reg.ListPartnerIDs(e.ctx, event, 0, 10, bettor(3))
	require.NoError(t, err)
	assert.Equal(t, []uint64{42}, ids)
	count, _ := e.reg.CountPartnerIDs(e.ctx, event, bettor(3))
	assert.Equal(t, 1, count)
}

func TestPlaceBet_FailureLeavesNoTrace(t *testing.T) {
	e := newEnv(t)
	event := e.create(2)
	require.NoError(t, e.token.Mint(e.ctx, bettor(1), d("5")))

	err := e.reg.PlaceBet(e.ctx, bettor(1), event, 0, d("5"), 0)
	require.ErrorIs(t, err, ledger.ErrTransferFailed)

	ev, _ := e.reg.Event(e.ctx, event)
	assert.True(t, ev.Staked().IsZero())
	recs, _ := e.reg.Records(e.ctx, event)
	assert.Len(t, recs, 1, "only the creation record")
	assertAmount(t, "5", e.balance(bettor(1)))
}

func TestUnknownEvent(t *testing.T) {
	e := newEnv(t)
	missing := bettor(99)

	assert.ErrorIs(t, e.reg.PlaceBet(e.ctx, bettor(1), missing, 0, d("1"), 0), ErrUnknownEvent)
	_, err := e.reg.Withdraw(e.ctx, bettor(1), missing)
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.ErrorIs(t, e.reg.EndEvent(e.ctx, adminAddr, missing, 0), ErrUnknownEvent)
	_, err = e.reg.CanBet(e.ctx, missing)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	e := newEnv(t)
	e.pub.err = errors.New("broker down")

	event, err := e.reg.CreateEvent(e.ctx, adminAddr, 2, d("1"))
	require.NoError(t, err)
	n, _ := e.reg.CountEvents(e.ctx)
	assert.Equal(t, 1, n)
	assert.NotEqual(t, common.Address{}, event)
}

func TestListEvents_Window(t *testing.T) {
	e := newEnv(t)
	var created []common.Address
	for i := 0; i < 4; i++ {
		created = append(created, e.create(2))
	}

	list, _ := e.reg.ListEvents(e.ctx, 1, 2)
	assert.Equal(t, created[1:3], list)
	list, _ = e.reg.ListEvents(e.ctx, 3, 50)
	assert.Equal(t, created[3:], list)
	list, _ = e.reg.ListEvents(e.ctx, 4, 1)
	assert.Empty(t, list)
	list, _ = e.reg.ListOpenEvents(e.ctx, -1, 1)
	assert.Empty(t, list)
}
