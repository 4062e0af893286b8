package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DependencyCheck is a named liveness probe the health endpoint polls on
// every request. Redis and S3 connectivity are wired in as
// DependencyChecks so the dashboard cannot report healthy while the cache
// or blob backend the engine actually depends on is unreachable.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	logger *slog.Logger
	checks []DependencyCheck
}

// NewHealthHandler creates a HealthHandler with the provided logger and an
// optional set of dependency checks to run on every request.
func NewHealthHandler(logger *slog.Logger, checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{logger: logger, checks: checks}
}

// HealthCheck responds with the server's liveness and the result of every
// registered DependencyCheck. It answers 200 with status "ok" when all
// checks pass (or none are registered), or 503 with status "degraded" and
// the failing dependency names/errors otherwise.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for _, c := range h.checks {
		if err := c.Ping(r.Context()); err != nil {
			failures[c.Name] = err.Error()
		}
	}

	status := http.StatusOK
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(failures) > 0 {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["failures"] = failures
		if h.logger != nil {
			h.logger.WarnContext(r.Context(), "dependency check failed", slog.Any("failures", failures))
		}
	}

	writeJSON(w, status, body)
}
