package handler

import (
	"net/http"

	"github.com/openmarket/trademanager/internal/domain"
)

// RulesHandler serves active and recently-terminal rules.
type RulesHandler struct {
	store domain.RuleStore
}

// NewRulesHandler creates a RulesHandler backed by the given RuleStore.
func NewRulesHandler(store domain.RuleStore) *RulesHandler {
	return &RulesHandler{store: store}
}

// ListRules responds with the active and recently-terminal rules.
// GET /api/rules?limit=N
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	rules, err := h.store.RecentRules(r.Context(), opts.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}
