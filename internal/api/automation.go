package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-leap/internal/audit"
	"github.com/nerrad567/gray-logic-leap/internal/automation"
)

// ─── Linked device rules ────────────────────────────────────────────────────

// linkedRuleRequest is the request body for POST /linked-devices.
type linkedRuleRequest struct {
	Name              string `json:"name"`
	ControllerAddress string `json:"controller_address"`
	TargetDeviceID    string `json:"target_device_id"`
}

// handleListLinkedRules returns every linked device rule.
func (s *Server) handleListLinkedRules(w http.ResponseWriter, _ *http.Request) {
	if s.linked == nil {
		writeUnavailable(w, "linked device rules are not configured")
		return
	}
	rules := s.linked.List()
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// handleCreateLinkedRule adds a rule making a controller toggle a device.
func (s *Server) handleCreateLinkedRule(w http.ResponseWriter, r *http.Request) {
	if s.linked == nil {
		writeUnavailable(w, "linked device rules are not configured")
		return
	}

	var req linkedRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rule, err := s.linked.Add(r.Context(), automation.LinkedDeviceRule{
		Name:              req.Name,
		ControllerAddress: req.ControllerAddress,
		TargetDeviceID:    req.TargetDeviceID,
	})
	if err != nil {
		writeAutomationError(w, err)
		return
	}

	s.auditLog(r, audit.ActionCreate, audit.EntityLinkedRule, rule.ID, map[string]any{
		"controller_address": rule.ControllerAddress,
		"target_device_id":   rule.TargetDeviceID,
	})
	writeJSON(w, http.StatusCreated, rule)
}

// handleDeleteLinkedRule removes a rule by ID.
func (s *Server) handleDeleteLinkedRule(w http.ResponseWriter, r *http.Request) {
	if s.linked == nil {
		writeUnavailable(w, "linked device rules are not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.linked.Remove(r.Context(), id); err != nil {
		writeAutomationError(w, err)
		return
	}
	s.auditLog(r, audit.ActionDelete, audit.EntityLinkedRule, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Triggers ───────────────────────────────────────────────────────────────

// triggerRequest is the request body for POST /triggers.
type triggerRequest struct {
	Name      string                 `json:"name"`
	Type      automation.TriggerType `json:"type"`
	Address   string                 `json:"address"`
	EventType string                 `json:"event_type"`
	Count     int                    `json:"count"`
	Status    string                 `json:"status"`
}

// triggerPatch is the request body for PATCH /triggers/{id}. Only the
// fields present are changed.
type triggerPatch struct {
	Name      *string `json:"name"`
	EventType *string `json:"event_type"`
	Count     *int    `json:"count"`
	Status    *string `json:"status"`
	Enabled   *bool   `json:"enabled"`
}

// onlyEnabled reports whether the patch toggles processing and nothing else.
func (p triggerPatch) onlyEnabled() bool {
	return p.Enabled != nil && p.Name == nil && p.EventType == nil && p.Count == nil && p.Status == nil
}

// handleListTriggers returns every trigger sorted by name.
func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	if s.triggers == nil {
		writeUnavailable(w, "triggers are not configured")
		return
	}

	triggers, err := s.triggers.ListTriggers(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list triggers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggers": triggers, "count": len(triggers)})
}

// handleGetTrigger returns one trigger.
func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	if s.triggers == nil {
		writeUnavailable(w, "triggers are not configured")
		return
	}

	t, err := s.triggers.GetTrigger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAutomationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleCreateTrigger creates an enabled trigger.
func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	if s.triggers == nil {
		writeUnavailable(w, "triggers are not configured")
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	t := &automation.Trigger{
		Name:      req.Name,
		Type:      req.Type,
		Address:   req.Address,
		EventType: req.EventType,
		Count:     req.Count,
		Status:    req.Status,
	}
	if err := s.triggers.CreateTrigger(r.Context(), t); err != nil {
		writeAutomationError(w, err)
		return
	}

	s.auditLog(r, audit.ActionCreate, audit.EntityTrigger, t.ID, map[string]any{
		"type":    t.Type,
		"address": t.Address,
	})
	writeJSON(w, http.StatusCreated, t)
}

// handlePatchTrigger edits a trigger or starts and stops its processing.
func (s *Server) handlePatchTrigger(w http.ResponseWriter, r *http.Request) {
	if s.triggers == nil {
		writeUnavailable(w, "triggers are not configured")
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var patch triggerPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if patch.onlyEnabled() {
		t, err := s.triggers.SetEnabled(ctx, id, *patch.Enabled)
		if err != nil {
			writeAutomationError(w, err)
			return
		}
		s.auditLog(r, audit.ActionUpdate, audit.EntityTrigger, id, map[string]any{"enabled": t.Enabled})
		writeJSON(w, http.StatusOK, t)
		return
	}

	t, err := s.triggers.GetTrigger(ctx, id)
	if err != nil {
		writeAutomationError(w, err)
		return
	}
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.EventType != nil {
		t.EventType = *patch.EventType
	}
	if patch.Count != nil {
		t.Count = *patch.Count
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Enabled != nil {
		t.Enabled = *patch.Enabled
	}

	if err := s.triggers.UpdateTrigger(ctx, t); err != nil {
		writeAutomationError(w, err)
		return
	}
	s.auditLog(r, audit.ActionUpdate, audit.EntityTrigger, id, nil)
	writeJSON(w, http.StatusOK, t)
}

// handleDeleteTrigger removes a trigger.
func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	if s.triggers == nil {
		writeUnavailable(w, "triggers are not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.triggers.DeleteTrigger(r.Context(), id); err != nil {
		writeAutomationError(w, err)
		return
	}
	s.auditLog(r, audit.ActionDelete, audit.EntityTrigger, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// writeAutomationError maps automation domain errors to HTTP responses.
func writeAutomationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, automation.ErrTriggerNotFound),
		errors.Is(err, automation.ErrRuleNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, automation.ErrTriggerExists),
		errors.Is(err, automation.ErrRuleExists):
		writeConflict(w, err.Error())
	case errors.Is(err, automation.ErrInvalidTrigger),
		errors.Is(err, automation.ErrInvalidRule),
		errors.Is(err, automation.ErrInvalidName),
		errors.Is(err, automation.ErrInvalidAddress):
		writeValidationError(w, err.Error())
	default:
		writeInternalError(w, "automation storage error")
	}
}
