/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/accounts/*   Account history, products, expirations
  /api/removals     Cross-account removals feed
  /api/analysis/*   Batch re-analysis runs and trigger

SECURITY NOTE:
  No authentication middleware. The assistant is an internal ops tool
  behind the corporate network boundary.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/{id}/snapshots", h.IngestSnapshot)
			r.Get("/{id}/history", h.GetHistory)
			r.Get("/{id}/expirations", h.GetExpirations)
			r.Get("/{id}/products", h.GetProducts)
			r.Get("/{id}/categories", h.GetCategories)
		})

		// Monitoring routes
		r.Get("/removals", h.ListRemovals)

		// Analysis routes
		r.Route("/analysis", func(r chi.Router) {
			r.Get("/runs", h.ListAnalysisRuns)
			r.Post("/refresh", h.TriggerRefresh)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
