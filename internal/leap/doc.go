// Package leap is a minimal client for the Lutron LEAP protocol.
//
// LEAP runs over a mutually authenticated TLS connection (port 8081) and
// exchanges one JSON communique per CRLF-terminated line. Requests carry
// a ClientTag which the bridge echoes on the response; subscription
// pushes reuse the tag of the SubscribeRequest that opened them.
//
// The client covers what an event-sync engine needs:
//
//   - Discovery of devices, buttons, scenes, areas and occupancy groups
//   - Zone, button and occupancy-group status subscriptions
//   - Zone commands (level, fan speed, tilt, raise/lower/stop) and
//     press-and-release of scenes and keypad buttons
//
// A Client owns one connection and never reconnects on its own. Pairing
// (generating the client certificate) is done out of band; CheckPaired
// verifies its output files are present.
//
// Subscriber callbacks run on the reader goroutine. They must hand work
// off rather than issue further requests on the same client.
package leap
