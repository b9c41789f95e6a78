package lutron

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/config"
)

func testLutronConfig() config.LutronConfig {
	return config.LutronConfig{
		EventQueueSize: 64,
		ResyncInterval: 15,
		CommandTimeout: 3,
		Gesture: config.GestureConfig{
			ClickTimeoutMS:     400,
			TickIntervalMS:     50,
			IndependentWindows: true,
		},
		Bridges: []config.BridgeConfig{
			{ID: "hub", Name: "Main Repeater", Address: "192.168.1.20", Port: 8081, CertDir: "/etc/leap"},
			{ID: "attic", Address: "192.168.1.21", Port: 8081, KeyFile: "/k", CertFile: "/c", CAFile: "/ca"},
		},
		Devices: []config.DeviceConfig{
			{ID: "kitchen-pendants", Name: "Kitchen Pendants", Kind: "dimmer", Bridge: "hub", NativeID: "5"},
			{ID: "kitchen-motion", Kind: "occupancy", Bridge: "hub", NativeID: "4"},
		},
	}
}

func TestBridgeSpecsFromConfig(t *testing.T) {
	specs := BridgeSpecsFromConfig(testLutronConfig())
	if len(specs) != 2 {
		t.Fatalf("specs = %v", specs)
	}

	hub := specs[0]
	dir := filepath.Join("/etc/leap", "192.168.1.20")
	if hub.KeyFile != filepath.Join(dir, "leapHub.key") || hub.CAFile != filepath.Join(dir, "leapHub-bridge.crt") {
		t.Errorf("hub credentials = %+v", hub)
	}
	if hub.Name != "Main Repeater" || hub.Port != 8081 {
		t.Errorf("hub = %+v", hub)
	}

	attic := specs[1]
	if attic.Name != "attic" || attic.KeyFile != "/k" || attic.CertFile != "/c" || attic.CAFile != "/ca" {
		t.Errorf("attic = %+v", attic)
	}
}

func TestHostDevicesFromConfig(t *testing.T) {
	devs := HostDevicesFromConfig(testLutronConfig())
	if len(devs) != 4 {
		t.Fatalf("devices = %v", devs)
	}
	if devs[0].Kind != KindBridge || devs[1].Kind != KindBridge || devs[1].Name != "attic" {
		t.Errorf("bridges not first: %+v", devs[:2])
	}
	want := HostDevice{ID: "kitchen-motion", Kind: KindOccupancy, BridgeID: "hub", NativeID: "4"}
	if devs[3] != want {
		t.Errorf("devs[3] = %+v, want %+v", devs[3], want)
	}
}

func TestEngineOptionsFromConfig(t *testing.T) {
	opts := EngineOptionsFromConfig(testLutronConfig())

	if opts.QueueSize != 64 || len(opts.Bridges) != 2 {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Gesture.Timeout != 400*time.Millisecond || !opts.Gesture.Independent {
		t.Errorf("gesture = %+v", opts.Gesture)
	}
	if opts.TickInterval != 50*time.Millisecond || opts.ResyncInterval != 15*time.Minute || opts.CommandTimeout != 3*time.Second {
		t.Errorf("intervals = %v %v %v", opts.TickInterval, opts.ResyncInterval, opts.CommandTimeout)
	}
	if opts.Host != nil || opts.Triggers != nil {
		t.Error("host wiring should be left to the caller")
	}
}

func TestEngineOptionsFromConfig_RestartInterval(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{"unset uses engine default", 0, 0},
		{"seconds", 10, 10 * time.Second},
		{"disabled", -1, -1},
		{"any negative disables", -30, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testLutronConfig()
			cfg.RestartInterval = tt.seconds
			if got := EngineOptionsFromConfig(cfg).RestartInterval; got != tt.want {
				t.Errorf("RestartInterval = %v, want %v", got, tt.want)
			}
		})
	}
}
