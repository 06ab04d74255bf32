package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// BackendCheck reports whether one backend is reachable.
type BackendCheck func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode      string
	programID domain.Pubkey
	node      domain.Pubkey
	checks    map[string]BackendCheck
	clock     domain.Clock
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks are run on every request
// with a short timeout.
func NewHealthHandler(mode string, programID, node domain.Pubkey, checks map[string]BackendCheck, clock domain.Clock, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		programID: programID,
		node:      node,
		checks:    checks,
		clock:     clock,
		logger:    logger,
	}
}

// HealthCheck reports liveness, ledger time and backend status. Any failing
// check turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	backends := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "handler: health check failed",
				slog.String("backend", name),
				slog.String("error", err.Error()),
			)
			backends[name] = err.Error()
			status = "degraded"
			continue
		}
		backends[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"mode":       h.mode,
		"program_id": h.programID,
		"node":       h.node,
		"ledger_now": h.clock.Now(),
		"backends":   backends,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
