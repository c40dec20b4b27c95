package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/reasoner/internal/metrics"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	// Session routes
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Get("/status", s.getSessionStatus)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.updateSession)
			r.Delete("/", s.deleteSession)
			r.Get("/history", s.getHistory)
			r.Post("/run", s.runSession) // NDJSON stream
			r.Post("/abort", s.abortSession)
		})
	})

	// Local models
	r.Route("/model", func(r chi.Router) {
		r.Get("/", s.getModel)
		r.Get("/scan", s.scanModels)
		r.Post("/load", s.loadModel)
	})

	r.Route("/config", func(r chi.Router) {
		r.Get("/", s.getConfig)
		r.Get("/hardware", s.getHardware)
		r.Patch("/hardware", s.updateHardware)
	})

	r.Get("/provider", s.listProviders)

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)
	r.Handle("/metrics", metrics.Handler())

	// Flat routes used by the bundled web client
	r.Get("/scan", s.scanModels)
	r.Post("/config_hardware", s.legacyConfigHardware)
	r.Post("/load_model", s.legacyLoadModel)
	r.Get("/list_sessions", s.legacyListSessions)
	r.Post("/create_session", s.legacyCreateSession)
	r.Post("/delete_session", s.legacyDeleteSession)
	r.Post("/get_history", s.legacyGetHistory)
	r.Post("/stream", s.legacyStream)
}
