package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-leap/internal/audit"
)

// handleListBridges returns the connection status of every configured bridge.
func (s *Server) handleListBridges(w http.ResponseWriter, _ *http.Request) {
	sessions := s.bridge.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{"bridges": sessions, "count": len(sessions)})
}

// handleResync queues a state refresh of every device entity. Refreshed
// states arrive as ordinary state events.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	n := s.bridge.Resync(r.Context())
	s.logger.Info("manual resync queued", "entities", n)
	s.auditLog(r, audit.ActionResync, audit.EntityBridge, "", map[string]any{"queued": n})
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": n})
}
