package lutron

import (
	"encoding/json"
	"fmt"
	"time"
)

// MQTT message types exchanged with the home-automation host.
// Topics follow graylogic/{category}/lutron/{id}.

// CommandMessage is sent by the host to change a device.
// Topic: graylogic/command/lutron/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	DeviceID string `json:"device_id"`

	// Command is one of the Cmd* names (e.g. "on", "set_level").
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"level": 50} for set_level
	//   {"speed": "MediumHigh"} for set_fan
	//   {"scene_id": "3"} for activate_scene
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated
	// ("api", "automation", "linked_device").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
//
// Bridge commands are fire-and-forget, so a command is either accepted
// for execution or rejected up front. There is no later success ack.
type AckStatus string

const (
	// AckAccepted indicates the command was validated and handed to the bridge.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command was rejected.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/lutron/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address,omitempty"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g. "INVALID_COMMAND").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command and request failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
	ErrCodeUnknownAction     = "UNKNOWN_ACTION"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
)

// StateMessage carries a device's merged state.
// Topic: graylogic/state/lutron/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`

	// Address is the engine address ("bridge:native").
	Address string `json:"address,omitempty"`
}

// EventMessage announces a transient event.
// Topic: graylogic/event/lutron/{button|gesture|occupancy|trigger}
// QoS: 0, Retained: No
type EventMessage struct {
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Protocol  string         `json:"protocol"`
	Payload   map[string]any `json:"payload"`
}

// HealthStatus represents the operational status of the service.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports operational status.
// Topic: graylogic/health/lutron
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string          `json:"bridge"`
	Timestamp      time.Time       `json:"timestamp"`
	Status         HealthStatus    `json:"status"`
	Version        string          `json:"version"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	Sessions       []SessionStatus `json:"sessions"`
	Statistics     *EngineStats    `json:"statistics,omitempty"`
	DevicesManaged int             `json:"devices_managed"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// RequestMessage asks the service for information or an admin change.
// Topic: graylogic/request/lutron/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is the requested operation. See the Action* constants.
	Action string `json:"action"`

	DeviceID   string         `json:"device_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Request actions.
const (
	ActionReadState          = "read_state"
	ActionResync             = "resync"
	ActionBridgeStatus       = "bridge_status"
	ActionListLinkedDevices  = "list_linked_devices"
	ActionAddLinkedDevice    = "add_linked_device"
	ActionRemoveLinkedDevice = "remove_linked_device"
	ActionListTriggers       = "list_triggers"
	ActionAddTrigger         = "add_trigger"
	ActionRemoveTrigger      = "remove_trigger"
	ActionSetLogLevel        = "set_log_level"
)

// ResponseMessage answers a request.
// Topic: graylogic/response/lutron/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnmarshalJSON accepts a missing or RFC3339 timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// NewAckMessage creates an acknowledgement for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError creates a failed acknowledgement with error details.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed, address)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message for a device.
func NewStateMessage(deviceID, address string, state map[string]any) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewEventMessage creates an event message.
func NewEventMessage(kind string, payload map[string]any) EventMessage {
	return EventMessage{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Protocol:  Protocol,
		Payload:   payload,
	}
}

// NewResponse creates a successful response.
func NewResponse(req RequestMessage, data map[string]any) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      data,
	}
}

// NewErrorResponse creates a failed response.
func NewErrorResponse(req RequestMessage, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Error:     &ResponseError{Code: code, Message: message},
	}
}
