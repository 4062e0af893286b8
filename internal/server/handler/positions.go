package handler

import (
	"net/http"

	"github.com/openmarket/trademanager/internal/domain"
)

// PositionsProvider is implemented by the Worker's position cache. Positions
// must return an immutable snapshot copy, never the live cache.
type PositionsProvider interface {
	Positions() []domain.Position
}

// PositionsHandler serves the Worker's cached Broker positions.
type PositionsHandler struct {
	worker PositionsProvider
}

// NewPositionsHandler creates a PositionsHandler backed by the given
// positions provider.
func NewPositionsHandler(worker PositionsProvider) *PositionsHandler {
	return &PositionsHandler{worker: worker}
}

// ListPositions responds with the current cached positions snapshot.
// GET /api/positions
func (h *PositionsHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.worker.Positions())
}
