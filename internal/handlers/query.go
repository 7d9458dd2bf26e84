package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"docqa/internal/contextutil"
	"docqa/internal/service"
)

const maxTopK = 20

// QA answers questions; implemented by service.QAService.
type QA interface {
	Ask(ctx context.Context, question string, topK int) (*service.Answer, error)
}

// QueryHandler handles question answering requests.
type QueryHandler struct {
	qa QA
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(qa QA) *QueryHandler {
	return &QueryHandler{qa: qa}
}

// QueryRequest represents the HTTP request payload for questions.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// ServeHTTP handles POST /api/v1/query.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TopK < 0 {
		req.TopK = 0
	}
	if req.TopK > maxTopK {
		req.TopK = maxTopK
	}

	answer, err := h.qa.Ask(ctx, req.Question, req.TopK)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}
