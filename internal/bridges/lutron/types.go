package lutron

import (
	"strings"
	"time"
)

// Protocol is the protocol identifier used in topics and state messages.
const Protocol = "lutron"

// Kind is the kind of a host device managed by the engine.
type Kind string

// Device kinds. KindAuto is resolved from the LEAP device type when the
// entity starts.
const (
	KindBridge    Kind = "bridge"
	KindSwitch    Kind = "switch"
	KindDimmer    Kind = "dimmer"
	KindShade     Kind = "shade"
	KindFan       Kind = "fan"
	KindColor     Kind = "color"
	KindOccupancy Kind = "occupancy"
	KindAuto      Kind = "auto"
)

// IsEntity reports whether the kind is backed by a registry entity.
func (k Kind) IsEntity() bool {
	switch k {
	case KindSwitch, KindDimmer, KindShade, KindFan, KindColor, KindOccupancy, KindAuto:
		return true
	}
	return false
}

// HostDevice is the host's record of a managed device.
//
// For KindBridge the ID is the bridge id and BridgeID/NativeID are empty.
type HostDevice struct {
	ID       string
	Name     string
	Kind     Kind
	BridgeID string
	NativeID string
}

// BridgeSpec describes how to reach one bridge.
type BridgeSpec struct {
	ID           string
	Name         string
	Address      string
	Port         int
	KeyFile      string
	CertFile     string
	CAFile       string
	PingInterval time.Duration
}

// addressSeparator joins bridge id and native id.
const addressSeparator = ":"

// occupancyPrefix keeps occupancy group ids apart from device ids, which
// the bridge numbers independently.
const occupancyPrefix = "occupancy/"

// MakeAddress returns the engine address "bridgeID:nativeID".
func MakeAddress(bridgeID, nativeID string) string {
	return bridgeID + addressSeparator + nativeID
}

// OccupancyAddress returns the address of an occupancy group.
func OccupancyAddress(bridgeID, groupID string) string {
	return MakeAddress(bridgeID, occupancyPrefix+groupID)
}

// SplitAddress is the inverse of MakeAddress. The native part keeps any
// occupancy prefix.
func SplitAddress(address string) (bridgeID, nativeID string, ok bool) {
	bridgeID, nativeID, ok = strings.Cut(address, addressSeparator)
	if !ok || bridgeID == "" || nativeID == "" {
		return "", "", false
	}
	return bridgeID, nativeID, true
}

// EntityAddress returns the registry address for a host entity device.
func EntityAddress(dev HostDevice) string {
	if dev.Kind == KindOccupancy {
		return OccupancyAddress(dev.BridgeID, dev.NativeID)
	}
	return MakeAddress(dev.BridgeID, dev.NativeID)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
