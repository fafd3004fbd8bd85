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
  /api/rooms/*        Rooms, members, presence, cycles, payment history
  /api/cycles/*       Cycle enrichment, reconciliation, adjustments, audit
  /api/payments/*     Payment submission and verification
  /api/admin/*        Cross-room portfolio stats
  /api/scenarios/*    Demo scenarios and database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Room routes
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", h.ListRooms)
			r.Post("/", h.CreateRoom)
			r.Get("/{id}", h.GetRoom)
			r.Post("/{id}/members", h.AddMember)
			r.Post("/{id}/members/{uid}/presence", h.RecordPresence)
			r.Post("/{id}/cycles", h.OpenCycle)
			r.Get("/{id}/payments", h.ListPayments)
			r.Get("/{id}/summary", h.GetRoomSummary)
		})

		// Cycle routes
		r.Route("/cycles", func(r chi.Router) {
			r.Get("/{id}", h.GetCycle)
			r.Post("/{id}/recalculate", h.RecalculateCycle)
			r.Get("/{id}/reconciliation", h.GetReconciliation)
			r.Post("/{id}/adjustments", h.AdjustCharge)
			r.Post("/{id}/refunds", h.Refund)
			r.Get("/{id}/audit", h.GetAuditTrail)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.SubmitPayment)
			r.Post("/{id}/verify", h.VerifyPayment)
			r.Post("/{id}/reject", h.RejectPayment)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/portfolio", h.GetPortfolio)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
