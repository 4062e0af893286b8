package handler

import (
	"net/http"

	"github.com/openmarket/trademanager/internal/domain"
)

// WorkerStatusProvider is implemented by the Worker. Status must return an
// immutable snapshot, re-derived on every call; it is never cached across
// requests.
type WorkerStatusProvider interface {
	Status() domain.WorkerStatus
}

// StatusHandler serves the worker's operational status for the dashboard.
type StatusHandler struct {
	worker WorkerStatusProvider
}

// NewStatusHandler creates a StatusHandler backed by the given status
// provider.
func NewStatusHandler(worker WorkerStatusProvider) *StatusHandler {
	return &StatusHandler{worker: worker}
}

// GetWorkerStatus responds with a synchronous snapshot of WorkerStatus.
// GET /health/worker
func (h *StatusHandler) GetWorkerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.worker.Status())
}
