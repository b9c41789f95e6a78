package lutron

import (
	"time"

	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/config"
)

// BridgeSpecsFromConfig converts configured bridges into specs with
// resolved credential paths.
func BridgeSpecsFromConfig(cfg config.LutronConfig) []BridgeSpec {
	specs := make([]BridgeSpec, 0, len(cfg.Bridges))
	for _, b := range cfg.Bridges {
		keyFile, certFile, caFile := b.Credentials()
		name := b.Name
		if name == "" {
			name = b.ID
		}
		specs = append(specs, BridgeSpec{
			ID:       b.ID,
			Name:     name,
			Address:  b.Address,
			Port:     b.Port,
			KeyFile:  keyFile,
			CertFile: certFile,
			CAFile:   caFile,
		})
	}
	return specs
}

// HostDevicesFromConfig returns the host devices to start: one per bridge
// followed by every configured entity.
func HostDevicesFromConfig(cfg config.LutronConfig) []HostDevice {
	devices := make([]HostDevice, 0, len(cfg.Bridges)+len(cfg.Devices))
	for _, b := range cfg.Bridges {
		name := b.Name
		if name == "" {
			name = b.ID
		}
		devices = append(devices, HostDevice{ID: b.ID, Name: name, Kind: KindBridge})
	}
	for _, d := range cfg.Devices {
		devices = append(devices, HostDevice{
			ID:       d.ID,
			Name:     d.Name,
			Kind:     Kind(d.Kind),
			BridgeID: d.Bridge,
			NativeID: d.NativeID,
		})
	}
	return devices
}

// EngineOptionsFromConfig maps the lutron section onto engine options.
// Host, Triggers and Linked are left for the caller.
func EngineOptionsFromConfig(cfg config.LutronConfig) EngineOptions {
	return EngineOptions{
		Bridges:         BridgeSpecsFromConfig(cfg),
		QueueSize:       cfg.EventQueueSize,
		Gesture: GestureOptions{
			Timeout:     time.Duration(cfg.Gesture.ClickTimeoutMS) * time.Millisecond,
			Independent: cfg.Gesture.IndependentWindows,
		},
		TickInterval:    time.Duration(cfg.Gesture.TickIntervalMS) * time.Millisecond,
		ResyncInterval:  time.Duration(cfg.ResyncInterval) * time.Minute,
		CommandTimeout:  time.Duration(cfg.CommandTimeout) * time.Second,
		RestartInterval: restartInterval(cfg.RestartInterval),
	}
}

// restartInterval converts seconds. Any negative value disables restarts.
func restartInterval(seconds int) time.Duration {
	if seconds < 0 {
		return -1
	}
	return time.Duration(seconds) * time.Second
}
