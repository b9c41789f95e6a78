package leap

import "errors"

// Sentinel errors for LEAP operations.
var (
	// ErrConnectionFailed is returned when dialling or the TLS handshake fails.
	ErrConnectionFailed = errors.New("leap: connection failed")

	// ErrNotConnected is returned when the link is down or was never connected.
	ErrNotConnected = errors.New("leap: not connected")

	// ErrRequestFailed is returned when the bridge answers with a non-2xx status.
	ErrRequestFailed = errors.New("leap: request failed")

	// ErrTimeout is returned when the bridge does not answer in time.
	ErrTimeout = errors.New("leap: request timed out")

	// ErrInvalidConfig is returned when the client configuration is incomplete.
	ErrInvalidConfig = errors.New("leap: invalid configuration")

	// ErrNotPaired is returned when the credential files written by pairing
	// are missing.
	ErrNotPaired = errors.New("leap: bridge not paired")

	// ErrUnknownDevice is returned when a command names a device with no zone.
	ErrUnknownDevice = errors.New("leap: unknown device")

	// ErrMessageTooLarge is returned when a line exceeds maxMessageSize.
	ErrMessageTooLarge = errors.New("leap: message too large")
)
