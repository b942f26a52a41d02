// Package store defines the persistence interface for the wager engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/wager-engine/internal/model"
)

// ErrNotFound is returned when an event or the settings row does not exist.
var ErrNotFound = errors.New("store: not found")

// Commit is the durable outcome of one registry transaction. Apply writes
// all of it or none of it.
type Commit struct {
	// Event is inserted when unknown, replaced otherwise. Optional.
	Event *model.Event
	// Settings replaces the registry settings. Optional.
	Settings *model.Settings
	// Records are appended to the immutable record log.
	Records []model.Record
	// Revoked removes records of a transaction that was rolled back before
	// its funds moved. Applied before Records.
	Revoked []string
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// Apply atomically persists a transaction.
	Apply(ctx context.Context, c *Commit) error

	// --- Events ---

	// GetEvent retrieves an event by its ledger address.
	GetEvent(ctx context.Context, addr common.Address) (*model.Event, error)

	// CountEvents returns how many events were ever created.
	CountEvents(ctx context.Context) (int, error)

	// ListEvents returns event addresses in creation order.
	ListEvents(ctx context.Context, offset, limit int) ([]common.Address, error)

	// CountOpenEvents returns how many events are not yet closed.
	CountOpenEvents(ctx context.Context) (int, error)

	// ListOpenEvents returns open event addresses in creation order.
	ListOpenEvents(ctx context.Context, offset, limit int) ([]common.Address, error)

	// --- Settings ---

	// GetSettings returns the registry settings or ErrNotFound.
	GetSettings(ctx context.Context) (*model.Settings, error)

	// --- Immutable records ---

	// GetRecordsByEvent returns every record of an event in emission order.
	GetRecordsByEvent(ctx context.Context, addr common.Address) ([]model.Record, error)
}
