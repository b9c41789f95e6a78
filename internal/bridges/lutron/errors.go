package lutron

import "errors"

// Sentinel errors for the Lutron engine.
var (
	// ErrTransportFailure is returned when connecting to or discovering a
	// bridge fails. The session ends in the Failed state.
	ErrTransportFailure = errors.New("lutron: transport failure")

	// ErrUnresolvedAddress is returned when an event names an address that
	// is not registered. Expected briefly while entities start.
	ErrUnresolvedAddress = errors.New("lutron: unresolved address")

	// ErrDuplicateRegistration is returned when an address is already mapped
	// to a different host device. The first mapping is kept.
	ErrDuplicateRegistration = errors.New("lutron: duplicate registration")

	// ErrMalformedPayload is returned when a raw state field is missing or
	// has the wrong type. Only that field is skipped.
	ErrMalformedPayload = errors.New("lutron: malformed payload")

	// ErrSessionClosed is returned when waiting on a session that was stopped.
	ErrSessionClosed = errors.New("lutron: session closed")

	// ErrUnknownBridge is returned when a device names a bridge with no session.
	ErrUnknownBridge = errors.New("lutron: unknown bridge")

	// ErrUnknownDevice is returned when a command targets an unmanaged device.
	ErrUnknownDevice = errors.New("lutron: unknown device")

	// ErrUnsupportedCommand is returned when a command does not apply to the
	// device kind.
	ErrUnsupportedCommand = errors.New("lutron: unsupported command")

	// ErrInvalidParameters is returned when command parameters are missing
	// or out of range.
	ErrInvalidParameters = errors.New("lutron: invalid parameters")

	// ErrEngineStopped is returned when work is submitted after Stop.
	ErrEngineStopped = errors.New("lutron: engine stopped")
)
