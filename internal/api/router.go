package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-leap/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.rateLimitMiddleware())
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket or bearer, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermDeviceRead)).Post("/auth/ws-ticket", s.handleWSTicket)
			r.With(s.requirePermission(auth.PermSystemAdmin)).Get("/metrics", s.handleMetrics)
			r.With(s.requirePermission(auth.PermSystemAdmin)).Get("/audit", s.handleListAudit)

			// Bridge endpoints
			r.Route("/bridges", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermBridgeRead)).Get("/", s.handleListBridges)
				r.With(s.requirePermission(auth.PermDeviceOperate)).Post("/resync", s.handleResync)
			})

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermDeviceRead))
					r.Get("/", s.handleListDevices)
					r.Get("/stats", s.handleDeviceStats)
					r.Get("/{id}", s.handleGetDevice)
					r.Get("/{id}/history", s.handleDeviceHistory)
				})
				r.With(s.requirePermission(auth.PermDeviceOperate)).Post("/{id}/commands", s.handleDeviceCommand)
			})

			// Linked device rules
			r.Route("/linked-devices", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermAutomationRead)).Get("/", s.handleListLinkedRules)
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermAutomationManage))
					r.Post("/", s.handleCreateLinkedRule)
					r.Delete("/{id}", s.handleDeleteLinkedRule)
				})
			})

			// Automation triggers
			r.Route("/triggers", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermAutomationRead))
					r.Get("/", s.handleListTriggers)
					r.Get("/{id}", s.handleGetTrigger)
				})
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermAutomationManage))
					r.Post("/", s.handleCreateTrigger)
					r.Patch("/{id}", s.handlePatchTrigger)
					r.Delete("/{id}", s.handleDeleteTrigger)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := 0
	sessions := s.bridge.Sessions()
	for _, sess := range sessions {
		if sess.Connected {
			connected++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           s.version,
		"bridges":           len(sessions),
		"bridges_connected": connected,
	})
}
