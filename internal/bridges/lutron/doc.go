// Package lutron keeps a home-automation host's devices in sync with one or
// more Lutron bridges and turns host commands into bridge calls.
//
// Each configured bridge gets a Session that connects, discovers devices,
// buttons, scenes, areas and occupancy groups, subscribes to status pushes
// and then announces readiness. Host devices bound to a bridge wait for that
// readiness before they are registered in the EntityRegistry.
//
// Architecture:
//
//	 leap.Client (reader goroutine)
//	        │ DeviceEvent / ButtonEvent / OccupancyEvent
//	        ▼
//	 Engine queue (bounded, non-blocking) ──▶ loop goroutine
//	                                           │
//	                     ┌─────────────────────┼─────────────────────┐
//	                     ▼                     ▼                     ▼
//	              EntityRegistry         Router/Projector      GestureDetector
//	                                           │
//	                                           ▼
//	                         Host (Gateway): store, MQTT, WebSocket, InfluxDB
//
// Addresses are "bridgeID:nativeID". Occupancy groups use
// "bridgeID:occupancy/groupID" because the bridge numbers groups and
// devices independently.
//
// Gestures: presses on one button within the click timeout, measured from
// the first press, are counted and reported once as a multi-press. A
// press on a different button ends every other open window unless
// GestureOptions.Independent is set.
//
// MQTT surface (protocol "lutron"):
//
//	graylogic/command/lutron/{device_id}   commands in
//	graylogic/ack/lutron/{device_id}       accepted / failed
//	graylogic/state/lutron/{device_id}     retained merged state
//	graylogic/request/lutron/{request_id}  admin requests
//	graylogic/response/lutron/{request_id}
//	graylogic/event/lutron/{kind}          button, gesture, occupancy, trigger
//	graylogic/health/lutron                retained health
package lutron
