package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/wager-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[common.Address]*model.Event
	order    []common.Address
	settings *model.Settings
	records  []model.Record
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[common.Address]*model.Event),
	}
}

func (s *MemoryStore) Apply(_ context.Context, c *Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Event != nil {
		if _, ok := s.events[c.Event.Address]; !ok {
			s.order = append(s.order, c.Event.Address)
		}
		// Store a copy to avoid external mutation.
		s.events[c.Event.Address] = c.Event.Clone()
	}
	if c.Settings != nil {
		copy := *c.Settings
		s.settings = &copy
	}
	if len(c.Revoked) > 0 {
		revoked := make(map[string]bool, len(c.Revoked))
		for _, id := range c.Revoked {
			revoked[id] = true
		}
		kept := make([]model.Record, 0, len(s.records))
		for _, r := range s.records {
			if !revoked[r.ID] {
				kept = append(kept, r)
			}
		}
		s.records = kept
	}
	s.records = append(s.records, c.Records...)
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, addr common.Address) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[addr]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", addr.Hex(), ErrNotFound)
	}
	return ev.Clone(), nil
}

func (s *MemoryStore) CountEvents(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

func (s *MemoryStore) ListEvents(_ context.Context, offset, limit int) ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.order, offset, limit), nil
}

func (s *MemoryStore) CountOpenEvents(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.open()), nil
}

func (s *MemoryStore) ListOpenEvents(_ context.Context, offset, limit int) ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.open(), offset, limit), nil
}

// open filters events still accepting a closure, keeping creation order.
func (s *MemoryStore) open() []common.Address {
	var out []common.Address
	for _, addr := range s.order {
		if !s.events[addr].Result.Terminal() {
			out = append(out, addr)
		}
	}
	return out
}

func (s *MemoryStore) GetSettings(_ context.Context) (*model.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, fmt.Errorf("settings: %w", ErrNotFound)
	}
	copy := *s.settings
	return &copy, nil
}

func (s *MemoryStore) GetRecordsByEvent(_ context.Context, addr common.Address) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Record
	for _, r := range s.records {
		if r.Event == addr {
			result = append(result, r)
		}
	}
	return result, nil
}

func page(all []common.Address, offset, limit int) []common.Address {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) || limit <= 0 {
		return []common.Address{}
	}
	end := offset + min(limit, len(all)-offset)
	return append([]common.Address(nil), all[offset:end]...)
}
