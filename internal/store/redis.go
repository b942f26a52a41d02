package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/wager-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Apply(ctx context.Context, c *Commit) error {
	if err := s.primary.Apply(ctx, c); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	keys := []string{}
	if c.Event != nil {
		keys = append(keys, eventKey(c.Event.Address), recordsKey(c.Event.Address))
	}
	if c.Settings != nil {
		keys = append(keys, settingsKey)
	}
	for _, r := range c.Records {
		keys = append(keys, recordsKey(r.Event))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetEvent(ctx context.Context, addr common.Address) (*model.Event, error) {
	data, err := s.rdb.Get(ctx, eventKey(addr)).Bytes()
	if err == nil {
		var ev model.Event
		if json.Unmarshal(data, &ev) == nil {
			return &ev, nil
		}
	}

	// Cache miss: read from primary.
	ev, err := s.primary.GetEvent(ctx, addr)
	if err != nil {
		return nil, err
	}

	s.cache(ctx, eventKey(addr), ev)
	return ev, nil
}

func (s *CachedStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	data, err := s.rdb.Get(ctx, settingsKey).Bytes()
	if err == nil {
		var st model.Settings
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	st, err := s.primary.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	s.cache(ctx, settingsKey, st)
	return st, nil
}

func (s *CachedStore) GetRecordsByEvent(ctx context.Context, addr common.Address) ([]model.Record, error) {
	data, err := s.rdb.Get(ctx, recordsKey(addr)).Bytes()
	if err == nil {
		var records []model.Record
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	records, err := s.primary.GetRecordsByEvent(ctx, addr)
	if err != nil {
		return nil, err
	}

	s.cache(ctx, recordsKey(addr), records)
	return records, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CountEvents(ctx context.Context) (int, error) {
	return s.primary.CountEvents(ctx)
}

func (s *CachedStore) ListEvents(ctx context.Context, offset, limit int) ([]common.Address, error) {
	return s.primary.ListEvents(ctx, offset, limit)
}

func (s *CachedStore) CountOpenEvents(ctx context.Context) (int, error) {
	return s.primary.CountOpenEvents(ctx)
}

func (s *CachedStore) ListOpenEvents(ctx context.Context, offset, limit int) ([]common.Address, error) {
	return s.primary.ListOpenEvents(ctx, offset, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const settingsKey = "registry:settings"

func eventKey(addr common.Address) string   { return fmt.Sprintf("event:%s", addr.Hex()) }
func recordsKey(addr common.Address) string { return fmt.Sprintf("records:%s", addr.Hex()) }
