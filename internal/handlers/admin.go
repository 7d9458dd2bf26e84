package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"docqa/internal/contextutil"
	"docqa/internal/service"
	"docqa/internal/storage"
)

// Admin exposes maintenance operations; implemented by
// service.DocumentService.
type Admin interface {
	RebuildIndex(ctx context.Context) (int, error)
	Stats(ctx context.Context) (service.Stats, error)
}

// QueryHistory lists past queries; implemented by storage.QueryRepo.
type QueryHistory interface {
	ListRecent(ctx context.Context, limit int) ([]*storage.QueryRecord, error)
}

// AdminHandler handles index maintenance and stats endpoints.
type AdminHandler struct {
	admin   Admin
	history QueryHistory
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin Admin, history QueryHistory) *AdminHandler {
	return &AdminHandler{admin: admin, history: history}
}

// Rebuild handles POST /api/v1/admin/rebuild.
func (h *AdminHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	rebuilt, err := h.admin.RebuildIndex(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	logger.InfoContext(ctx, "index rebuild requested", "chunks", rebuilt)
	writeJSON(w, http.StatusOK, map[string]any{"rebuilt_chunks": rebuilt})
}

// Stats handles GET /api/v1/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// History handles GET /api/v1/admin/queries?limit=N.
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	queries, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	type queryResponse struct {
		ID         int64  `json:"id"`
		QueryText  string `json:"query_text"`
		Response   string `json:"response"`
		CreatedAt  string `json:"created_at"`
		DurationMs int64  `json:"duration_ms"`
		TopK       int    `json:"top_k"`
	}
	out := make([]queryResponse, len(queries))
	for i, q := range queries {
		out[i] = queryResponse{
			ID:         q.ID,
			QueryText:  q.QueryText,
			Response:   q.Response,
			CreatedAt:  q.CreatedAt.UTC().Format(time.RFC3339),
			DurationMs: q.DurationMs,
			TopK:       q.TopK,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": out, "total": len(out)})
}
