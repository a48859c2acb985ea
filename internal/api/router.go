package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystemMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/state", s.handleGetDeviceState)
				r.Put("/state", s.handleSetDeviceState)

				r.Route("/services", func(r chi.Router) {
					r.Get("/", s.handleListServices)
					r.Post("/", s.handleAddService)
					r.Get("/{name}", s.handleGetService)
					r.Put("/{name}", s.handleConfigureService)
					r.Delete("/{name}", s.handleRemoveService)
				})

				r.Route("/workflows", func(r chi.Router) {
					r.Post("/pick-replace", s.handlePickReplace)
					r.Post("/vision-test", s.handleVisionTest)
					r.Post("/feed", s.handleFeed)
				})
			})
		})

		r.Get("/executions", s.handleListExecutions)

		r.Route("/builds", func(r chi.Router) {
			r.Get("/", s.handleListBuilds)
			r.Post("/", s.handleStartBuild)
			r.Get("/history", s.handleBuildHistory)
			r.Get("/{id}", s.handleGetBuild)
			r.Post("/{id}/cancel", s.handleCancelBuild)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
