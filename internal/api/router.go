package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
//
// The WebSocket endpoint skips the logging middleware: its wrapped response
// writer would interfere with connection hijacking during the upgrade, and
// upgrade outcomes are logged by the handler itself.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Group(func(r chi.Router) {
		r.Use(s.loggingMiddleware)
		r.Get("/healthz", s.handleHealth)
	})

	r.Get(s.cfg.Path, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": len(s.devices.DeviceNames()),
		"clients": s.hub.ClientCount(),
	})
}
