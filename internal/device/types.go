package device

import "time"

// Device is a host device managed by leapbridge.
// This matches the devices table in migrations/20260301_120000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`

	// Bridge linkage. Both are empty for a bridge device.
	BridgeID string `json:"bridge_id,omitempty"`
	NativeID string `json:"native_id,omitempty"`

	// Current state
	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Device kinds. They mirror the kinds the lutron engine projects onto.
const (
	KindBridge    = "bridge"
	KindAuto      = "auto"
	KindSwitch    = "switch"
	KindDimmer    = "dimmer"
	KindShade     = "shade"
	KindFan       = "fan"
	KindColor     = "color"
	KindOccupancy = "occupancy"
)

// AllKinds returns every valid device kind.
func AllKinds() []string {
	return []string{
		KindBridge, KindAuto, KindSwitch, KindDimmer,
		KindShade, KindFan, KindColor, KindOccupancy,
	}
}

// IsBridge reports whether the device is a bridge.
func (d *Device) IsBridge() bool {
	return d.Kind == KindBridge
}

// DeepCopy creates a complete independent copy of the Device.
// The state map is cloned so modifications to the copy do not affect the
// original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.State = deepCopyMap(d.State)
	if d.StateUpdatedAt != nil {
		t := *d.StateUpdatedAt
		cpy.StateUpdatedAt = &t
	}
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// State holds the projected device state as a JSON map.
//
// Examples:
//
//	Dimmer:    {"on": true, "brightness": 42}
//	Shade:     {"position": 80, "tilt": 30}
//	Fan:       {"on": true, "speed": "Medium", "speed_index": 2}
//	Occupancy: {"occupied": false}
type State map[string]any

// Merge returns a copy of s with update applied on top. Keys absent from
// update keep their current value.
func (s State) Merge(update map[string]any) State {
	merged := make(State, len(s)+len(update))
	for k, v := range s {
		merged[k] = deepCopyValue(v)
	}
	for k, v := range update {
		merged[k] = deepCopyValue(v)
	}
	return merged
}
