// Package events carries the signals emitted by the engines after every
// successful state-changing call, and the sinks that consume them.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/ledger-engine/internal/model"
)

// Emitter receives committed events. Emit must not fail the operation that
// produced the event; sinks log their own errors.
type Emitter interface {
	Emit(ctx context.Context, ev model.Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev model.Event)

func (f EmitterFunc) Emit(ctx context.Context, ev model.Event) { f(ctx, ev) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(context.Context, model.Event) {})

// Fanout delivers each event to every emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, ev model.Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(ctx, ev)
		}
	}
}

// New builds an event with a fresh ID.
func New(engine, typ string, account model.Account, at time.Time, attrs map[string]string) model.Event {
	ev := model.Event{
		ID:         uuid.New().String(),
		Type:       typ,
		Engine:     engine,
		Attributes: attrs,
		Timestamp:  at.UTC(),
	}
	if account != (model.Account{}) {
		ev.Account = account.Hex()
	}
	if ev.Attributes == nil {
		ev.Attributes = map[string]string{}
	}
	return ev
}

// Recorder keeps every event in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *Recorder) Emit(_ context.Context, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(typ string) []model.Event {
	var out []model.Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the most recent event, or false when nothing was recorded.
func (r *Recorder) Last() (model.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return model.Event{}, false
	}
	return r.events[len(r.events)-1], true
}
