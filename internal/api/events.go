package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/store"
)

// ListEvents handles GET /api/v1/events?account=&engine=&limit=
// Returns journal entries newest first.
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{Engine: q.Get("engine")}

	if v := q.Get("account"); v != "" {
		acct, err := model.ParseAccount(v)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Account = acct.Hex()
	}
	switch filter.Engine {
	case "", model.EngineLending, model.EngineSwap, model.EnginePerp:
	default:
		writeError(w, fmt.Errorf("%w: unknown engine %q", errInvalidQuery, filter.Engine))
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", errInvalidQuery))
			return
		}
		filter.Limit = limit
	}

	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/{eventID}.
func (s *Service) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
