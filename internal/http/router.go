// Package http wires the chi router and request middleware.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docqa/internal/handlers"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	QA           handlers.QA
	Documents    handlers.Documents
	Admin        handlers.Admin
	QueryHistory handlers.QueryHistory
	Embedder     handlers.Pinger
	MaxBodyBytes int64
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(LoggerMiddleware)

	queryHandler := handlers.NewQueryHandler(deps.QA)
	documentHandler := handlers.NewDocumentHandler(deps.Documents, deps.MaxBodyBytes)
	adminHandler := handlers.NewAdminHandler(deps.Admin, deps.QueryHistory)
	healthHandler := handlers.NewHealthHandler(deps.Embedder)

	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/query", queryHandler)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", documentHandler.Upload)
			r.Get("/", documentHandler.List)
			r.Get("/{id}", documentHandler.Get)
			r.Delete("/{id}", documentHandler.Delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/rebuild", adminHandler.Rebuild)
			r.Get("/stats", adminHandler.Stats)
			r.Get("/queries", adminHandler.History)
		})
	})

	r.Method(http.MethodGet, "/health", healthHandler)

	return r
}
