package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/atmx/wager-engine/internal/model"
)

// NATSPublisher publishes each record as JSON on "<prefix>.<kind>", e.g.
// "wager.bet_placed", so indexers can subscribe to "wager.>".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Publish(_ context.Context, records ...model.Record) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
		if err := p.conn.Publish(p.Subject(r.Kind), data); err != nil {
			return fmt.Errorf("publish record %s: %w", r.ID, err)
		}
	}
	return nil
}

// Subject returns the subject a record kind is published on.
func (p *NATSPublisher) Subject(kind model.RecordKind) string {
	return p.prefix + "." + string(kind)
}
