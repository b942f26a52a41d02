// Package model defines the core domain types shared across the wager engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ResultKind is the settlement state of an event.
type ResultKind uint8

const (
	ResultOpen ResultKind = iota
	ResultVoid
	ResultWin
	ResultForfeited
)

var resultNames = [...]string{"open", "void", "win", "forfeited"}

func (k ResultKind) String() string {
	if int(k) < len(resultNames) {
		return resultNames[k]
	}
	return fmt.Sprintf("result(%d)", uint8(k))
}

func (k ResultKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ResultKind) UnmarshalText(b []byte) error {
	for i, name := range resultNames {
		if name == string(b) {
			*k = ResultKind(i)
			return nil
		}
	}
	return fmt.Errorf("model: unknown result %q", b)
}

// Result is the outcome of an event. Pool is only meaningful for ResultWin.
type Result struct {
	Kind ResultKind `json:"kind"`
	Pool int        `json:"pool"`
}

// Terminal reports whether no further transition is possible.
func (r Result) Terminal() bool { return r.Kind != ResultOpen }

// Event is the persisted state of one wagering round. The ledger owns pool
// bookkeeping and Result; StopBetsAt and Deadline belong to the registry.
type Event struct {
	Address        common.Address  `json:"address"`
	Asset          common.Address  `json:"asset"`
	PoolCount      int             `json:"pool_count"`
	MinStake       decimal.Decimal `json:"min_stake"`
	CommissionRate int64           `json:"commission_rate"` // snapshot, percent
	Deadline       time.Time       `json:"deadline"`
	StopBetsAt     time.Time       `json:"stop_bets_at"` // zero = never disabled
	Result         Result          `json:"result"`

	PoolTotals []decimal.Decimal                    `json:"pool_totals"`
	Stakes     []map[common.Address]decimal.Decimal `json:"stakes"`
	Bettors    [][]common.Address                   `json:"bettors"`
	Referrers  map[common.Address][]uint64          `json:"referrers"`
	Withdrawn  map[common.Address]bool              `json:"withdrawn"`

	Commission decimal.Decimal `json:"commission"` // paid to the house at close
	Forfeited  decimal.Decimal `json:"forfeited"`  // swept to the house at close
	PaidOut    decimal.Decimal `json:"paid_out"`   // every unit that left the ledger

	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
}

// NewEvent returns an open event with empty pools.
func NewEvent(addr, asset common.Address, pools int, minStake decimal.Decimal, rate int64, createdAt, deadline time.Time) *Event {
	ev := &Event{
		Address:        addr,
		Asset:          asset,
		PoolCount:      pools,
		MinStake:       minStake,
		CommissionRate: rate,
		Deadline:       deadline,
		PoolTotals:     make([]decimal.Decimal, pools),
		Stakes:         make([]map[common.Address]decimal.Decimal, pools),
		Bettors:        make([][]common.Address, pools),
		Referrers:      make(map[common.Address][]uint64),
		Withdrawn:      make(map[common.Address]bool),
		CreatedAt:      createdAt,
	}
	for i := range ev.Stakes {
		ev.Stakes[i] = make(map[common.Address]decimal.Decimal)
		ev.PoolTotals[i] = decimal.Zero
	}
	return ev
}

// Staked returns the sum of every pool total.
func (e *Event) Staked() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range e.PoolTotals {
		sum = sum.Add(t)
	}
	return sum
}

// Held is the amount of the asset the event ledger should currently hold.
func (e *Event) Held() decimal.Decimal {
	return e.Staked().Sub(e.PaidOut)
}

// Clone returns a deep copy so a transaction can mutate it freely.
func (e *Event) Clone() *Event {
	c := *e
	c.PoolTotals = append([]decimal.Decimal(nil), e.PoolTotals...)
	c.Stakes = make([]map[common.Address]decimal.Decimal, len(e.Stakes))
	for i, m := range e.Stakes {
		c.Stakes[i] = make(map[common.Address]decimal.Decimal, len(m))
		for k, v := range m {
			c.Stakes[i][k] = v
		}
	}
	c.Bettors = make([][]common.Address, len(e.Bettors))
	for i, b := range e.Bettors {
		c.Bettors[i] = append([]common.Address(nil), b...)
	}
	c.Referrers = make(map[common.Address][]uint64, len(e.Referrers))
	for k, v := range e.Referrers {
		c.Referrers[k] = append([]uint64(nil), v...)
	}
	c.Withdrawn = make(map[common.Address]bool, len(e.Withdrawn))
	for k, v := range e.Withdrawn {
		c.Withdrawn[k] = v
	}
	return &c
}

// Settings are the registry-wide parameters. CommissionRate only applies to
// events created afterwards; Asset and House take effect immediately.
type Settings struct {
	CommissionRate int64          `json:"commission_rate"`
	Asset          common.Address `json:"asset"`
	House          common.Address `json:"house"`
	Nonce          uint64         `json:"nonce"` // events created so far
}

// RecordKind names an emitted record.
type RecordKind string

const (
	RecordBetPlaced           RecordKind = "bet_placed"
	RecordBetRefunded         RecordKind = "bet_refunded"
	RecordBetRewarded         RecordKind = "bet_rewarded"
	RecordCommissionPaid      RecordKind = "commission_paid"
	RecordTreasuryTransferred RecordKind = "treasury_transferred"
	RecordEventCreated        RecordKind = "event_created"
	RecordEventCancelled      RecordKind = "event_cancelled"
	RecordEventEnded          RecordKind = "event_ended"
	RecordBetsEnabled         RecordKind = "bets_enabled"
	RecordBetsDisabled        RecordKind = "bets_disabled"
	RecordDeadlineChanged     RecordKind = "deadline_changed"
	RecordSettingsChanged     RecordKind = "settings_changed"
)

// Record is an immutable, append-only notification for off-chain indexers.
// Once created, these are never modified or deleted.
type Record struct {
	ID       string          `json:"id"`
	Kind     RecordKind      `json:"kind"`
	Event    common.Address  `json:"event"`
	Pool     int             `json:"pool"`
	Account  common.Address  `json:"account"`
	Amount   decimal.Decimal `json:"amount"`
	Referrer uint64          `json:"referrer"`
	At       time.Time       `json:"at"`
}
