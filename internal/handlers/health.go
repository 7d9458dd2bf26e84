package handlers

import (
	"context"
	"net/http"
	"time"

	"docqa/internal/contextutil"
)

// Pinger checks that the embedding backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service health and dependency status.
type HealthHandler struct {
	embedder     Pinger
	checkTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(embedder Pinger) *HealthHandler {
	return &HealthHandler{
		embedder:     embedder,
		checkTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Issues    []string          `json:"issues,omitempty"`
}

// ServeHTTP handles GET /health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	var issues []string

	if h.embedder != nil {
		if err := h.embedder.Ping(checkCtx); err != nil {
			logger.WarnContext(ctx, "embedding backend health check failed", "error", err)
			checks["embeddings"] = "error"
			issues = append(issues, "embedding_backend_unavailable")
		} else {
			checks["embeddings"] = "ok"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if len(issues) > 0 {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	})
}
