package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// ReadinessChecker reports whether the encryption client has finished
// initializing.
type ReadinessChecker interface {
	IsReady() bool
}

// SessionCounter reports the number of live viewing sessions.
type SessionCounter interface {
	Len() int
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	fhe       ReadinessChecker
	sessions  SessionCounter
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. sessions may be nil.
func NewHealthHandler(fhe ReadinessChecker, sessions SessionCounter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		fhe:       fhe,
		sessions:  sessions,
		startedAt: time.Now().UTC(),
		logger:    logHandler(logger, "health"),
	}
}

// HealthCheck responds with liveness and encryption readiness. The server is
// alive before the FHE client is ready, so the status code stays 200.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"fhe_ready":      h.fhe != nil && h.fhe.IsReady(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}
