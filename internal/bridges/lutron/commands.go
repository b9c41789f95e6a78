package lutron

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// Command names accepted by Engine.Submit.
const (
	CmdOn            = "on"
	CmdOff           = "off"
	CmdToggle        = "toggle"
	CmdSetLevel      = "set_level"
	CmdSetFan        = "set_fan"
	CmdSetTilt       = "set_tilt"
	CmdRaise         = "raise"
	CmdLower         = "lower"
	CmdStop          = "stop"
	CmdActivateScene = "activate_scene"
	CmdTapButton     = "tap_button"
)

// Command is a host request to change a device.
type Command struct {
	DeviceID string
	Action   string
	Level    int
	FanSpeed leap.FanSpeed
	Tilt     int
	SceneID  string
	ButtonID string
}

// supportedCommands lists the actions each kind accepts.
var supportedCommands = map[Kind][]string{
	KindBridge: {CmdActivateScene, CmdTapButton},
	KindSwitch: {CmdOn, CmdOff, CmdToggle},
	KindDimmer: {CmdOn, CmdOff, CmdToggle, CmdSetLevel},
	KindColor:  {CmdOn, CmdOff, CmdToggle, CmdSetLevel},
	KindShade:  {CmdOn, CmdOff, CmdToggle, CmdSetLevel, CmdSetTilt, CmdRaise, CmdLower, CmdStop},
	KindFan:    {CmdOn, CmdOff, CmdToggle, CmdSetFan},
}

// Supports reports whether kind accepts action.
func Supports(kind Kind, action string) bool {
	for _, a := range supportedCommands[kind] {
		if a == action {
			return true
		}
	}
	return false
}

// validate checks parameters that do not depend on live state.
func (c Command) validate(kind Kind) error {
	if !Supports(kind, c.Action) {
		return fmt.Errorf("%w: %q on %s device", ErrUnsupportedCommand, c.Action, kind)
	}
	switch c.Action {
	case CmdSetLevel:
		if c.Level < 0 || c.Level > 100 {
			return fmt.Errorf("%w: level %d out of range 0..100", ErrInvalidParameters, c.Level)
		}
	case CmdSetTilt:
		if c.Tilt < 0 || c.Tilt > 100 {
			return fmt.Errorf("%w: tilt %d out of range 0..100", ErrInvalidParameters, c.Tilt)
		}
	case CmdSetFan:
		if !c.FanSpeed.Valid() {
			return fmt.Errorf("%w: unknown fan speed %q", ErrInvalidParameters, c.FanSpeed)
		}
	case CmdActivateScene:
		if c.SceneID == "" {
			return fmt.Errorf("%w: scene_id is required", ErrInvalidParameters)
		}
	case CmdTapButton:
		if c.ButtonID == "" {
			return fmt.Errorf("%w: button_id is required", ErrInvalidParameters)
		}
	}
	return nil
}

// commandFunc binds a command to a link call.
type commandFunc func(ctx context.Context, link Link) error

// bind resolves the link call for an entity command. lastState is the
// entity's last raw payload and decides what toggle does.
func (c Command) bind(kind Kind, nativeID string, lastState map[string]any) commandFunc {
	action := c.Action
	if action == CmdToggle {
		action = CmdOn
		if isOn(kind, lastState) {
			action = CmdOff
		}
	}

	switch action {
	case CmdOn:
		if kind == KindFan {
			return func(ctx context.Context, l Link) error { return l.SetFan(ctx, nativeID, leap.FanHigh) }
		}
		return func(ctx context.Context, l Link) error { return l.TurnOn(ctx, nativeID) }
	case CmdOff:
		if kind == KindFan {
			return func(ctx context.Context, l Link) error { return l.SetFan(ctx, nativeID, leap.FanOff) }
		}
		return func(ctx context.Context, l Link) error { return l.TurnOff(ctx, nativeID) }
	case CmdSetLevel:
		level := c.Level
		return func(ctx context.Context, l Link) error { return l.SetValue(ctx, nativeID, level) }
	case CmdSetFan:
		speed := c.FanSpeed
		return func(ctx context.Context, l Link) error { return l.SetFan(ctx, nativeID, speed) }
	case CmdSetTilt:
		tilt := c.Tilt
		return func(ctx context.Context, l Link) error { return l.SetTilt(ctx, nativeID, tilt) }
	case CmdRaise:
		return func(ctx context.Context, l Link) error { return l.RaiseCover(ctx, nativeID) }
	case CmdLower:
		return func(ctx context.Context, l Link) error { return l.LowerCover(ctx, nativeID) }
	case CmdStop:
		return func(ctx context.Context, l Link) error { return l.StopCover(ctx, nativeID) }
	case CmdActivateScene:
		id := c.SceneID
		return func(ctx context.Context, l Link) error { return l.ActivateScene(ctx, id) }
	case CmdTapButton:
		id := c.ButtonID
		return func(ctx context.Context, l Link) error { return l.TapButton(ctx, id) }
	}
	return nil
}

// isOn reports whether the last raw payload shows the device on.
func isOn(kind Kind, raw map[string]any) bool {
	if kind == KindFan {
		speed, _ := raw[leap.StateFanSpeed].(string)
		return speed != "" && leap.FanSpeed(speed) != leap.FanOff
	}
	level, err := levelField(raw, leap.StateCurrent)
	return err == nil && level > 0
}
