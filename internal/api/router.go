package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.recoveryMiddleware)

	// Socket upgrades are logged by their links, not per request.
	for _, sock := range s.sockets {
		r.Get(sock.Path(), sock.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.loggingMiddleware)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", s.handleHealth)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/events", s.handleEvents)
		})

		if s.prometheus != nil {
			r.Method(http.MethodGet, "/metrics", s.prometheus)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	return r
}
