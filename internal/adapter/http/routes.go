package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/ws", h.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Post("/competitions", h.CreateCompetition)
		r.Get("/competitions", h.ListCompetitions)
		r.Get("/competitions/{id}", h.GetCompetition)
		r.Get("/competitions/{id}/ledger", h.CompetitionLedger)

		r.Get("/agents/{agentID}/ledger", h.AgentLedger)
	})
}
