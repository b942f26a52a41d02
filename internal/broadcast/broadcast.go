// Package broadcast delivers emitted records to off-chain consumers: browsers
// over WebSocket and indexers over NATS. Delivery is best effort; the record
// log in the store remains the source of truth.
package broadcast

import (
	"context"
	"errors"

	"github.com/atmx/wager-engine/internal/model"
)

// Publisher delivers committed records.
type Publisher interface {
	Publish(ctx context.Context, records ...model.Record) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, records ...model.Record) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, records...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
type Discard struct{}

func (Discard) Publish(context.Context, ...model.Record) error { return nil }
