package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/ledger-engine/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.Event
	byID   map[string]int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]int),
	}
}

func (s *MemoryStore) AppendEvent(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[ev.ID]; ok {
		return fmt.Errorf("event %s already exists", ev.ID)
	}
	s.byID[ev.ID] = len(s.events)
	s.events = append(s.events, cloneEvent(*ev))
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ev := cloneEvent(s.events[i])
	return &ev, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, filter Filter) ([]model.Event, error) {
	filter = filter.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Event, 0)
	for i := len(s.events) - 1; i >= 0 && len(result) < filter.Limit; i-- {
		ev := s.events[i]
		if filter.Account != "" && ev.Account != filter.Account {
			continue
		}
		if filter.Engine != "" && ev.Engine != filter.Engine {
			continue
		}
		result = append(result, cloneEvent(ev))
	}
	return result, nil
}

// cloneEvent copies the attribute map to avoid external mutation.
func cloneEvent(ev model.Event) model.Event {
	attrs := make(map[string]string, len(ev.Attributes))
	for k, v := range ev.Attributes {
		attrs[k] = v
	}
	ev.Attributes = attrs
	return ev
}
