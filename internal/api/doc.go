// Package api implements the admin HTTP API and WebSocket event stream for
// leapbridge.
//
// This package provides:
//   - REST endpoints for bridges, devices, state history and commands
//   - CRUD for linked-device rules and automation triggers
//   - An audit trail of commands, resyncs and rule changes
//   - WebSocket hub that relays state, button, gesture, occupancy and
//     trigger events
//   - Bearer JWT authentication with per-route role permissions
//   - Middleware stack (request ID, logging, recovery, CORS, rate limit)
//
// # Architecture
//
// The API sits beside the MQTT surface of the lutron gateway. Reads go to
// the device store and the automation registries; commands go through
// the gateway exactly like an MQTT command, so both surfaces share
// validation and acknowledgement semantics.
//
// # Security
//
// Every route except /api/v1/health needs an Authorization: Bearer token
// minted by "leapbridge token". Browsers that cannot set headers on a
// WebSocket upgrade request a single-use ticket first.
package api
