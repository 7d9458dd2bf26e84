// Package handlers contains the HTTP handlers for the document Q&A API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"docqa/internal/contextutil"
	"docqa/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeServiceError maps service-layer errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		logger.WarnContext(ctx, "validation failed", "field", vErr.Field, "error", err)
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, service.ErrInvalidInput):
		logger.WarnContext(ctx, "invalid input", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		logger.WarnContext(ctx, "not found", "error", err)
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrExternalService):
		logger.ErrorContext(ctx, "external service failed", "error", err)
		writeError(w, http.StatusBadGateway, "External service error")
	default:
		logger.ErrorContext(ctx, "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
