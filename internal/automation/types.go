package automation

import "time"

// TriggerType identifies what a trigger listens for.
type TriggerType string

// Trigger types.
const (
	// TriggerButtonEvent fires on one button event type (Press, Release, LongHold).
	TriggerButtonEvent TriggerType = "button_event"

	// TriggerMultiPress fires when a gesture of exactly Count presses ends.
	TriggerMultiPress TriggerType = "multi_press"

	// TriggerOccupancy fires when an occupancy group reports Status.
	TriggerOccupancy TriggerType = "occupancy"
)

// AllTriggerTypes returns every trigger type.
func AllTriggerTypes() []TriggerType {
	return []TriggerType{TriggerButtonEvent, TriggerMultiPress, TriggerOccupancy}
}

// Button event types and occupancy statuses a trigger may name.
const (
	EventPress    = "Press"
	EventRelease  = "Release"
	EventLongHold = "LongHold"

	StatusOccupied   = "Occupied"
	StatusUnoccupied = "Unoccupied"
)

// Trigger is a persisted descriptor matched against bridge events.
//
// Only the field that belongs to Type is meaningful: EventType for
// button_event, Count for multi_press and Status for occupancy.
type Trigger struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      TriggerType `json:"type"`
	Address   string      `json:"address"`
	EventType string      `json:"event_type,omitempty"`
	Count     int         `json:"count,omitempty"`
	Status    string      `json:"status,omitempty"`
	Enabled   bool        `json:"enabled"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Event is an observed occurrence a trigger may match.
type Event struct {
	Type      TriggerType `json:"type"`
	Address   string      `json:"address"`
	EventType string      `json:"event_type,omitempty"`
	Count     int         `json:"count,omitempty"`
	Status    string      `json:"status,omitempty"`
	At        time.Time   `json:"at"`
}

// Matches reports whether the trigger applies to ev. Disabled triggers
// never match.
func (t *Trigger) Matches(ev Event) bool {
	if !t.Enabled || t.Type != ev.Type || t.Address != ev.Address {
		return false
	}
	switch t.Type {
	case TriggerButtonEvent:
		return t.EventType == ev.EventType
	case TriggerMultiPress:
		return t.Count == ev.Count
	case TriggerOccupancy:
		return t.Status == ev.Status
	default:
		return false
	}
}

// LinkedDeviceRule makes a button press toggle a host device.
type LinkedDeviceRule struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ControllerAddress string `json:"controller_address"`
	TargetDeviceID    string `json:"target_device_id"`
}
