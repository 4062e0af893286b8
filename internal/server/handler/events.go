package handler

import (
	"net/http"

	"github.com/openmarket/trademanager/internal/domain"
)

// EventsHandler serves the most recent Event records.
type EventsHandler struct {
	store domain.RuleStore
}

// NewEventsHandler creates an EventsHandler backed by the given RuleStore.
func NewEventsHandler(store domain.RuleStore) *EventsHandler {
	return &EventsHandler{store: store}
}

// ListEvents responds with the latest N events (N capped at 100).
// GET /api/events?limit=N
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	n := opts.Limit
	if n > maxRecentList {
		n = maxRecentList
	}
	events, err := h.store.RecentEvents(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}
