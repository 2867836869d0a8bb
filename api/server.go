/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/claimants/*      Claimant management and claim submission
  /api/claims/*         Claim review workflow
  /api/programs/*       Benefit catalog management
  /api/scenarios/*      Demo scenarios and database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. Reviewer identity is read from
  trusted headers; run behind an authenticating gateway in production.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Reviewer-ID", "X-Reviewer-Role", "X-Claimant-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Claimant routes
		r.Route("/claimants", func(r chi.Router) {
			r.Get("/", h.ListClaimants)
			r.Post("/", h.CreateClaimant)
			r.Get("/{id}", h.GetClaimant)
			r.Get("/{id}/claims", h.ListClaimantClaims)
			r.Post("/{id}/claims", h.SubmitClaim)
			r.Get("/{id}/usage", h.GetUsage)
		})

		// Claim review routes
		r.Route("/claims", func(r chi.Router) {
			r.Get("/", h.ListClaims)
			r.Get("/{id}", h.GetClaim)
			r.Post("/{id}/approve", h.ApproveClaim)
			r.Post("/{id}/complete", h.CompleteClaim)
			r.Post("/{id}/reject", h.RejectClaim)
			r.Get("/{id}/comments", h.ListComments)
			r.Post("/{id}/comments", h.AddComment)
		})

		// Catalog routes
		r.Route("/programs", func(r chi.Router) {
			r.Get("/", h.ListPrograms)
			r.Post("/", h.CreateProgram)
			r.Get("/{id}", h.GetProgram)
			r.Delete("/{id}", h.DeleteProgram)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
