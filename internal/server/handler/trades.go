package handler

import (
	"net/http"

	"github.com/openmarket/trademanager/internal/domain"
)

// maxRecentList is the hard cap on "latest N" dashboard reads (Trades and
// Events), independent of whatever limit a client requests.
const maxRecentList = 100

// TradesHandler serves the most recent Trade records.
type TradesHandler struct {
	store domain.RuleStore
}

// NewTradesHandler creates a TradesHandler backed by the given RuleStore.
func NewTradesHandler(store domain.RuleStore) *TradesHandler {
	return &TradesHandler{store: store}
}

// ListTrades responds with the latest N trades (N capped at 100).
// GET /api/trades?limit=N
func (h *TradesHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	n := opts.Limit
	if n > maxRecentList {
		n = maxRecentList
	}
	trades, err := h.store.RecentTrades(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, trades)
}
