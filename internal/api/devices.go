package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-leap/internal/audit"
	"github.com/nerrad567/gray-logic-leap/internal/bridges/lutron"
	"github.com/nerrad567/gray-logic-leap/internal/device"
)

// commandSource tags commands that arrive over the admin API.
const commandSource = "api"

// commandRequest is the request body for POST /devices/{id}/commands.
type commandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleListDevices returns all devices.
//
// Query parameters:
//   - bridge: only entities of this bridge
//   - kind: only devices of this kind (dimmer, shade, occupancy, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		devices []device.Device
		err     error
	)
	if bridgeID := r.URL.Query().Get("bridge"); bridgeID != "" {
		devices, err = s.devices.ListByBridge(ctx, bridgeID)
	} else {
		devices, err = s.devices.ListDevices(ctx)
	}
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := make([]device.Device, 0, len(devices))
		for _, d := range devices {
			if d.Kind == kind {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one device with its current state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeviceHistory returns recent state changes, newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 200)
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.devices.History(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("reading state history failed", "device", id, "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "history": entries, "count": len(entries)})
}

// handleDeviceStats returns counts of devices by kind and bridge.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.devices.GetStats())
}

// handleDeviceCommand submits a command through the gateway. It returns
// 202 once the command is accepted; the outcome follows on the MQTT ack
// topic and as a state event.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeValidationError(w, "command is required")
		return
	}

	msg := lutron.CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   id,
		Command:    req.Command,
		Parameters: req.Parameters,
		Source:     commandSource,
	}

	if err := s.bridge.SubmitCommand(msg); err != nil {
		switch {
		case errors.Is(err, lutron.ErrUnknownDevice):
			writeNotFound(w, err.Error())
		case errors.Is(err, lutron.ErrUnsupportedCommand),
			errors.Is(err, lutron.ErrInvalidParameters):
			writeValidationError(w, err.Error())
		default:
			s.logger.Warn("command rejected", "device", id, "command", req.Command, "error", err)
			writeUnavailable(w, err.Error())
		}
		return
	}

	claims := claimsFromContext(r.Context())
	subject := ""
	if claims != nil {
		subject = claims.Subject
	}
	s.logger.Info("command accepted",
		"id", msg.ID,
		"device", id,
		"command", req.Command,
		"subject", subject,
	)
	s.auditLog(r, audit.ActionCommand, audit.EntityDevice, id, map[string]any{
		"command_id": msg.ID,
		"command":    req.Command,
		"parameters": req.Parameters,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":        msg.ID,
		"device_id": id,
		"command":   req.Command,
		"status":    "accepted",
	})
}
