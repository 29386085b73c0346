// Package store defines the persistence interface for the ledger event
// journal. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/ledger-engine/internal/model"
)

const (
	// DefaultLimit is applied when a filter carries no limit.
	DefaultLimit = 100

	// MaxLimit caps the number of events returned by one query.
	MaxLimit = 1000
)

// ErrNotFound is returned when an event ID is unknown.
var ErrNotFound = errors.New("store: event not found")

// Filter narrows an event listing. Empty fields match everything.
type Filter struct {
	Account string
	Engine  string
	Limit   int
}

// normalize clamps Limit into [1, MaxLimit].
func (f Filter) normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Store is the persistence interface. Events are immutable: once appended
// they are never modified or deleted.
type Store interface {
	// AppendEvent persists an event.
	AppendEvent(ctx context.Context, ev *model.Event) error

	// GetEvent retrieves an event by its ID.
	GetEvent(ctx context.Context, id string) (*model.Event, error)

	// ListEvents returns events matching filter, newest first.
	ListEvents(ctx context.Context, filter Filter) ([]model.Event, error)
}
