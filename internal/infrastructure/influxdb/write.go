package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by leapbridge.
const (
	MeasurementEntityState = "lutron_entity_state"
	MeasurementOccupancy   = "lutron_occupancy"
	MeasurementButton      = "lutron_button"
	MeasurementGesture     = "lutron_gesture"
)

// WriteEntityState records the numeric and boolean fields of a projected
// state update. Non-numeric fields (icon hints, speed names) are skipped.
//
// Example:
//
//	client.WriteEntityState("kitchen-lights", "dimmer", map[string]any{"brightness": 42})
func (c *Client) WriteEntityState(deviceID, kind string, fields map[string]any) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		switch n := v.(type) {
		case bool:
			values[k] = n
		case int:
			values[k] = int64(n)
		case int64, float64:
			values[k] = n
		}
	}
	if len(values) == 0 {
		return
	}
	c.WritePoint(MeasurementEntityState,
		map[string]string{"device_id": deviceID, "kind": kind},
		values,
	)
}

// WriteOccupancy records an occupancy group transition.
func (c *Client) WriteOccupancy(deviceID string, occupied bool) {
	c.WritePoint(MeasurementOccupancy,
		map[string]string{"device_id": deviceID},
		map[string]any{"occupied": occupied},
	)
}

// WriteButtonEvent records a raw keypad button event.
func (c *Client) WriteButtonEvent(address, eventType string) {
	c.WritePoint(MeasurementButton,
		map[string]string{"address": address, "event": eventType},
		map[string]any{"count": int64(1)},
	)
}

// WriteGesture records a finalized multi-tap gesture.
func (c *Client) WriteGesture(address string, taps int, duration time.Duration) {
	c.WritePoint(MeasurementGesture,
		map[string]string{"address": address},
		map[string]any{"taps": int64(taps), "duration_ms": duration.Milliseconds()},
	)
}

// WritePoint writes a custom point with full control over tags and fields.
// It is a no-op when the client is nil or closed.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}
