package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/ledger-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Events are immutable, so cached events never go stale; per-account
// listings are invalidated whenever that account gains an event.
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

func (s *CachedStore) AppendEvent(ctx context.Context, ev *model.Event) error {
	if err := s.primary.AppendEvent(ctx, ev); err != nil {
		return err
	}
	if ev.Account != "" {
		s.rdb.Del(ctx, accountEventsKey(ev.Account))
	}
	s.cacheEvent(ctx, ev)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	data, err := s.rdb.Get(ctx, eventKey(id)).Bytes()
	if err == nil {
		var ev model.Event
		if json.Unmarshal(data, &ev) == nil {
			return &ev, nil
		}
	}

	ev, err := s.primary.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheEvent(ctx, ev)
	return ev, nil
}

// ListEvents caches the most recent MaxLimit events of each account and
// serves account-only filters from that window. Other filters pass through.
func (s *CachedStore) ListEvents(ctx context.Context, filter Filter) ([]model.Event, error) {
	if filter.Account == "" || filter.Engine != "" {
		return s.primary.ListEvents(ctx, filter)
	}
	filter = filter.normalize()

	data, err := s.rdb.Get(ctx, accountEventsKey(filter.Account)).Bytes()
	if err == nil {
		var events []model.Event
		if json.Unmarshal(data, &events) == nil {
			return truncate(events, filter.Limit), nil
		}
	}

	events, err := s.primary.ListEvents(ctx, Filter{Account: filter.Account, Limit: MaxLimit})
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, accountEventsKey(filter.Account), data, s.ttl)
	}
	return truncate(events, filter.Limit), nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheEvent(ctx context.Context, ev *model.Event) {
	if data, err := json.Marshal(ev); err == nil {
		s.rdb.Set(ctx, eventKey(ev.ID), data, s.ttl)
	}
}

func truncate(events []model.Event, limit int) []model.Event {
	if len(events) > limit {
		return events[:limit]
	}
	return events
}

func eventKey(id string) string              { return fmt.Sprintf("event:%s", id) }
func accountEventsKey(account string) string { return fmt.Sprintf("events:account:%s", account) }
