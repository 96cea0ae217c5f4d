package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/locales", func(r chi.Router) {
			r.Get("/", s.handleListLocales)
			r.Post("/refresh", s.handleRefreshAll)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetLocale)
				r.Put("/status", s.handleSetLocaleStatus)
				r.Post("/refresh", s.handleRefreshLocale)
				r.Get("/history", s.handleGetLocaleHistory)
			})
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/", s.handleGetSync)
			r.Put("/", s.handleConfigureSync)
			r.Delete("/", s.handleStopSync)
			r.Post("/trigger", s.handleTriggerSync)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"locales": s.store.Len(),
	})
}
