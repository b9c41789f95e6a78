// Package influxdb records leapbridge telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library and writes:
//   - projected entity state (levels, on/off, fan speed index)
//   - occupancy transitions
//   - raw button events and finalized multi-tap gestures
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off; a nil *Client is safe to call
//	}
//	defer client.Close()
//
//	client.WriteGesture("hub:12", 2, 380*time.Millisecond)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched per batch_size / flush_interval; batch errors are delivered to
// the SetOnError callback.
package influxdb
