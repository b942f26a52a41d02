package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/model"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Event state is kept as JSONB next to indexed columns; record amounts are
// stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Apply(ctx context.Context, c *Commit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if c.Event != nil {
		state, err := json.Marshal(c.Event)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", c.Event.Address.Hex(), err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO events (address, result, state, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (address) DO UPDATE SET result = EXCLUDED.result, state = EXCLUDED.state`,
			c.Event.Address.Hex(), c.Event.Result.Kind.String(), state, c.Event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save event %s: %w", c.Event.Address.Hex(), err)
		}
	}

	if c.Settings != nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO registry_settings (id, commission_rate, asset, house, nonce)
			 VALUES (1, $1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET commission_rate = EXCLUDED.commission_rate,
			     asset = EXCLUDED.asset, house = EXCLUDED.house, nonce = EXCLUDED.nonce`,
			c.Settings.CommissionRate, c.Settings.Asset.Hex(), c.Settings.House.Hex(), int64(c.Settings.Nonce),
		)
		if err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}

	if len(c.Revoked) > 0 {
		_, err = tx.Exec(ctx, `DELETE FROM records WHERE id = ANY($1::UUID[])`, c.Revoked)
		if err != nil {
			return fmt.Errorf("revoke records: %w", err)
		}
	}

	for _, r := range c.Records {
		_, err = tx.Exec(ctx,
			`INSERT INTO records (id, kind, event, pool, account, amount, referrer, at)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8)`,
			r.ID, string(r.Kind), r.Event.Hex(), r.Pool, r.Account.Hex(),
			r.Amount.String(), strconv.FormatUint(r.Referrer, 10), r.At,
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetEvent(ctx context.Context, addr common.Address) (*model.Event, error) {
	var state []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM events WHERE address = $1`, addr.Hex()).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", addr.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", addr.Hex(), err)
	}

	var ev model.Event
	if err := json.Unmarshal(state, &ev); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", addr.Hex(), err)
	}
	return &ev, nil
}

func (s *PostgresStore) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListEvents(ctx context.Context, offset, limit int) ([]common.Address, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address FROM events ORDER BY seq OFFSET $1 LIMIT $2`, max(offset, 0), max(limit, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAddresses(rows)
}

func (s *PostgresStore) CountOpenEvents(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM events WHERE result = $1`, model.ResultOpen.String()).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListOpenEvents(ctx context.Context, offset, limit int) ([]common.Address, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address FROM events WHERE result = $1 ORDER BY seq OFFSET $2 LIMIT $3`,
		model.ResultOpen.String(), max(offset, 0), max(limit, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAddresses(rows)
}

func (s *PostgresStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	var st model.Settings
	var asset, house string
	var nonce int64

	err := s.pool.QueryRow(ctx,
		`SELECT commission_rate, asset, house, nonce FROM registry_settings WHERE id = 1`).
		Scan(&st.CommissionRate, &asset, &house, &nonce)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("settings: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	st.Asset = common.HexToAddress(asset)
	st.House = common.HexToAddress(house)
	st.Nonce = uint64(nonce)
	return &st, nil
}

func (s *PostgresStore) GetRecordsByEvent(ctx context.Context, addr common.Address) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, kind, event, pool, account, amount::TEXT, referrer::TEXT, at
		 FROM records WHERE event = $1 ORDER BY seq`, addr.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var r model.Record
		var kind, event, account, amountS, referrerS string

		if err := rows.Scan(&r.ID, &kind, &event, &r.Pool, &account, &amountS, &referrerS, &r.At); err != nil {
			return nil, err
		}

		r.Kind = model.RecordKind(kind)
		r.Event = common.HexToAddress(event)
		r.Account = common.HexToAddress(account)
		r.Amount, _ = decimal.NewFromString(amountS)
		r.Referrer, _ = strconv.ParseUint(referrerS, 10, 64)

		records = append(records, r)
	}
	return records, rows.Err()
}

// scanAddresses reads a single hex address column.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanAddresses(rows pgxRows) ([]common.Address, error) {
	out := []common.Address{}
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, err
		}
		out = append(out, common.HexToAddress(hex))
	}
	return out, rows.Err()
}
