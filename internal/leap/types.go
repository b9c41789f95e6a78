package leap

// Device is a physical device known to the bridge.
//
// State holds the last reported zone status using the raw keys
// StateCurrent, StateFanSpeed, StateTilt and StateColor. Keys that the
// bridge has never reported are absent.
type Device struct {
	ID           string
	Name         string
	Type         string
	Model        string
	Serial       string
	AreaID       string
	ZoneID       string
	ButtonGroups []string
	State        map[string]any
}

// Raw state keys populated from zone status.
const (
	StateCurrent  = "current_state"
	StateFanSpeed = "fan_speed"
	StateTilt     = "tilt"
	StateColor    = "color"
)

// Button is a keypad or remote button.
type Button struct {
	ID             string
	Name           string
	Number         int
	ButtonGroupID  string
	ParentDeviceID string
}

// Scene is a programmed virtual button.
type Scene struct {
	ID   string
	Name string
}

// Area is a room or zone grouping on the bridge.
type Area struct {
	ID       string
	Name     string
	ParentID string
}

// OccupancyGroup is a set of occupancy sensors reporting as one.
type OccupancyGroup struct {
	ID     string
	Name   string
	AreaID string
	Status OccupancyStatus
}

// ButtonEventType is the kind of a button status event.
type ButtonEventType string

// Button event types reported by the bridge.
const (
	ButtonPress    ButtonEventType = "Press"
	ButtonRelease  ButtonEventType = "Release"
	ButtonLongHold ButtonEventType = "LongHold"
)

// OccupancyStatus is the reported status of an occupancy group.
type OccupancyStatus string

// Occupancy statuses reported by the bridge.
const (
	Occupied   OccupancyStatus = "Occupied"
	Unoccupied OccupancyStatus = "Unoccupied"
	Unknown    OccupancyStatus = "Unknown"
)

// FanSpeed is a fan speed as named on the wire.
type FanSpeed string

// Fan speeds understood by GoToFanSpeed.
const (
	FanOff        FanSpeed = "Off"
	FanLow        FanSpeed = "Low"
	FanMedium     FanSpeed = "Medium"
	FanMediumHigh FanSpeed = "MediumHigh"
	FanHigh       FanSpeed = "High"
)

// Valid reports whether s is one of the defined fan speeds.
func (s FanSpeed) Valid() bool {
	switch s {
	case FanOff, FanLow, FanMedium, FanMediumHigh, FanHigh:
		return true
	}
	return false
}

// Stats reports link counters.
type Stats struct {
	Connected        bool   `json:"connected"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	ReadErrors       uint64 `json:"read_errors"`
	Unsolicited      uint64 `json:"unsolicited"`
	PendingRequests  int    `json:"pending_requests"`
}
