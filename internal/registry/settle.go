package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/asset"
	"github.com/atmx/wager-engine/internal/ledger"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/store"
)

// transfer is one movement of funds a ledger asked for.
type transfer struct {
	spender  common.Address
	from, to common.Address
	amount   decimal.Decimal
	pull     bool
}

// deferred is the asset as a ledger sees it inside a registry transaction.
// Transfers are accepted and queued; they run once the new state is durable.
type deferred struct {
	asset.Token
	queue []transfer
}

func (d *deferred) Transfer(_ context.Context, holder, to common.Address, amount decimal.Decimal) (bool, error) {
	d.queue = append(d.queue, transfer{from: holder, to: to, amount: amount})
	return true, nil
}

func (d *deferred) TransferFrom(_ context.Context, spender, from, to common.Address, amount decimal.Decimal) (bool, error) {
	d.queue = append(d.queue, transfer{spender: spender, from: from, to: to, amount: amount, pull: true})
	return true, nil
}

// flush runs the queued transfers in order. When one fails, the direct
// transfers already made are sent back.
func (d *deferred) flush(ctx context.Context) error {
	for i, t := range d.queue {
		var ok bool
		var err error
		if t.pull {
			ok, err = d.Token.TransferFrom(ctx, t.spender, t.from, t.to, t.amount)
		} else {
			ok, err = d.Token.Transfer(ctx, t.from, t.to, t.amount)
		}
		if err == nil && ok {
			continue
		}
		d.unwind(ctx, d.queue[:i])
		if err != nil {
			return fmt.Errorf("%w: %w", ledger.ErrTransferFailed, err)
		}
		return ledger.ErrTransferFailed
	}
	return nil
}

func (d *deferred) unwind(ctx context.Context, done []transfer) {
	for i := len(done) - 1; i >= 0; i-- {
		t := done[i]
		if ok, err := d.Token.Transfer(ctx, t.to, t.from, t.amount); err != nil || !ok {
			slog.Error("transfer could not be reversed",
				"from", t.to.Hex(), "to", t.from.Hex(), "amount", t.amount.String(), "err", err)
		}
	}
}

// txn is one mutating call on an event ledger.
type txn struct {
	pre    *model.Event
	ledger *ledger.Event
	funds  *deferred
}

// begin loads event for a mutating call. The ledger works on a private copy
// and its transfers are held back until settle.
func (r *Registry) begin(ctx context.Context, event common.Address) (*txn, error) {
	ev, err := r.loadEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	token, err := r.tokens.Token(ev.Asset)
	if err != nil {
		return nil, err
	}
	funds := &deferred{Token: token}
	return &txn{
		pre:    ev.Clone(),
		ledger: ledger.Load(ev, r.asAuthority(), funds, r.clock),
		funds:  funds,
	}, nil
}

// settle persists the ledger's new state and records, then moves the funds.
// A failed write moves nothing. A failed transfer restores the loaded state
// and revokes the records, so a retry starts from the same books.
func (r *Registry) settle(ctx context.Context, t *txn) error {
	c := &store.Commit{Event: t.ledger.State(), Records: t.ledger.Records()}
	if err := r.store.Apply(ctx, c); err != nil {
		return fmt.Errorf("registry: commit: %w", err)
	}
	if err := t.funds.flush(ctx); err != nil {
		undo := &store.Commit{Event: t.pre, Revoked: recordIDs(c.Records)}
		if uerr := r.store.Apply(ctx, undo); uerr != nil {
			slog.Error("event could not be restored after a failed transfer",
				"event", t.pre.Address.Hex(), "err", uerr)
			return errors.Join(err, fmt.Errorf("registry: restore: %w", uerr))
		}
		return err
	}
	r.announce(ctx, c.Records)
	return nil
}

func recordIDs(records []model.Record) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}
