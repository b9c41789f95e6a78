package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-leap/internal/audit"
)

// auditChanSize is the buffer of the asynchronous audit writer. Entries
// beyond it are dropped so auditing never slows a request.
const auditChanSize = 256

// auditLog queues an entry for the audit writer. The subject is taken from
// the request's token claims.
func (s *Server) auditLog(r *http.Request, action, entityType, entityID string, details map[string]any) {
	if s.auditRepo == nil {
		return
	}

	subject := ""
	if claims := claimsFromContext(r.Context()); claims != nil {
		subject = claims.Subject
	}

	entry := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Subject:    subject,
		Source:     commandSource,
		Details:    details,
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit queue full, dropping entry",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
		)
	}
}

// drainAuditLog writes queued entries one at a time until ctx is done,
// then writes whatever is still queued.
func (s *Server) drainAuditLog(ctx context.Context) {
	defer close(s.auditDone)

	write := func(e *audit.Entry) {
		if err := s.auditRepo.Create(context.Background(), e); err != nil {
			s.logger.Error("audit write failed",
				"action", e.Action,
				"entity_type", e.EntityType,
				"error", err,
			)
		}
	}

	for {
		select {
		case e := <-s.auditCh:
			write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-s.auditCh:
					write(e)
				default:
					return
				}
			}
		}
	}
}

// handleListAudit returns audit entries, newest first.
//
// Query parameters:
//   - action: command, resync, create, update or delete
//   - entity_type: device, bridge, trigger or linked_rule
//   - entity_id: one entity
//   - limit: page size (default 50, max 200)
//   - offset: entries to skip
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit log is not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, p.name+" must be a non-negative integer")
			return
		}
		*p.dst = n
	}

	page, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
