package lutron

import (
	"context"

	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// Link is the per-bridge transport the engine consumes.
//
// Subscriber callbacks are invoked on the link's own goroutine. The engine
// never touches its registry from them; it only enqueues.
type Link interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	SetOnDisconnect(fn func(error))

	Devices(ctx context.Context) ([]leap.Device, error)
	Buttons(ctx context.Context) ([]leap.Button, error)
	Scenes(ctx context.Context) ([]leap.Scene, error)
	Areas(ctx context.Context) ([]leap.Area, error)
	OccupancyGroups(ctx context.Context) ([]leap.OccupancyGroup, error)
	DeviceByID(id string) (leap.Device, bool)

	AddSubscriber(deviceID string, fn func()) func()
	AddButtonSubscriber(buttonID string, fn func(leap.ButtonEventType)) func()
	AddOccupancySubscriber(groupID string, fn func(leap.OccupancyStatus)) func()

	TurnOn(ctx context.Context, deviceID string) error
	TurnOff(ctx context.Context, deviceID string) error
	SetValue(ctx context.Context, deviceID string, level int) error
	SetFan(ctx context.Context, deviceID string, speed leap.FanSpeed) error
	SetTilt(ctx context.Context, deviceID string, tilt int) error
	RaiseCover(ctx context.Context, deviceID string) error
	LowerCover(ctx context.Context, deviceID string) error
	StopCover(ctx context.Context, deviceID string) error
	ActivateScene(ctx context.Context, sceneID string) error
	TapButton(ctx context.Context, buttonID string) error
}

// Ensure leap.Client implements Link.
var _ Link = (*leap.Client)(nil)

// linkStatter is implemented by links that expose transport counters.
type linkStatter interface {
	Stats() leap.Stats
}

// LinkFactory builds an unconnected link for a bridge.
type LinkFactory func(spec BridgeSpec) (Link, error)

// NewLEAPLink is the default LinkFactory. A bridge whose pairing files are
// missing is rejected before any connection is attempted.
func NewLEAPLink(logger Logger) LinkFactory {
	return func(spec BridgeSpec) (Link, error) {
		if err := leap.CheckPaired(spec.KeyFile, spec.CertFile, spec.CAFile); err != nil {
			return nil, err
		}
		client, err := leap.NewClient(leap.Config{
			Address:      spec.Address,
			Port:         spec.Port,
			KeyFile:      spec.KeyFile,
			CertFile:     spec.CertFile,
			CAFile:       spec.CAFile,
			PingInterval: spec.PingInterval,
		})
		if err != nil {
			return nil, err
		}
		if logger != nil {
			client.SetLogger(logger)
		}
		return client, nil
	}
}
