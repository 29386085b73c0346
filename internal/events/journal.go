package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/atmx/ledger-engine/internal/model"
)

// DefaultAppendTimeout bounds a single journal write.
const DefaultAppendTimeout = 5 * time.Second

// Appender persists events. Implemented by store.Store.
type Appender interface {
	AppendEvent(ctx context.Context, ev *model.Event) error
}

// Journal writes every event to an Appender.
type Journal struct {
	store   Appender
	timeout time.Duration
}

// NewJournal creates a journal sink over store with DefaultAppendTimeout.
func NewJournal(store Appender) *Journal {
	return NewJournalWithTimeout(store, DefaultAppendTimeout)
}

// NewJournalWithTimeout creates a journal sink whose writes give up after
// timeout. A non-positive timeout selects DefaultAppendTimeout.
func NewJournalWithTimeout(store Appender, timeout time.Duration) *Journal {
	if timeout <= 0 {
		timeout = DefaultAppendTimeout
	}
	return &Journal{store: store, timeout: timeout}
}

// Emit runs while the emitting engine holds its lock, so the write is
// bounded by the journal's own timeout rather than the request's.
func (j *Journal) Emit(ctx context.Context, ev model.Event) {
	// The ledger mutation has already committed; a request cancellation
	// must not drop its record.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.timeout)
	defer cancel()

	if err := j.store.AppendEvent(ctx, &ev); err != nil {
		slog.Error("journal append failed",
			"event_id", ev.ID,
			"type", ev.Type,
			"engine", ev.Engine,
			"timeout", j.timeout,
			"err", err,
		)
	}
}
