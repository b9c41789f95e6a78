package leap

import (
	"context"
	"fmt"
)

// Command types sent to zone and button command processors.
const (
	cmdGoToLevel       = "GoToLevel"
	cmdGoToFanSpeed    = "GoToFanSpeed"
	cmdTiltParameters  = "TiltParameters"
	cmdRaise           = "Raise"
	cmdLower           = "Lower"
	cmdStop            = "Stop"
	cmdPressAndRelease = "PressAndRelease"
)

// TurnOn sets the device's zone to full level.
func (c *Client) TurnOn(ctx context.Context, deviceID string) error {
	return c.SetValue(ctx, deviceID, 100)
}

// TurnOff sets the device's zone to level zero.
func (c *Client) TurnOff(ctx context.Context, deviceID string) error {
	return c.SetValue(ctx, deviceID, 0)
}

// SetValue sets a zone level in the range 0..100.
func (c *Client) SetValue(ctx context.Context, deviceID string, level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("level %d out of range 0..100", level)
	}
	return c.zoneCommand(ctx, deviceID, command{
		CommandType: cmdGoToLevel,
		Parameter:   []commandParameter{{Type: "Level", Value: level}},
	})
}

// SetFan sets a fan zone speed.
func (c *Client) SetFan(ctx context.Context, deviceID string, speed FanSpeed) error {
	if !speed.Valid() {
		return fmt.Errorf("unknown fan speed %q", speed)
	}
	return c.zoneCommand(ctx, deviceID, command{
		CommandType:        cmdGoToFanSpeed,
		FanSpeedParameters: &fanSpeedParameters{FanSpeed: string(speed)},
	})
}

// SetTilt sets a blind tilt in the range 0..100.
func (c *Client) SetTilt(ctx context.Context, deviceID string, tilt int) error {
	if tilt < 0 || tilt > 100 {
		return fmt.Errorf("tilt %d out of range 0..100", tilt)
	}
	return c.zoneCommand(ctx, deviceID, command{
		CommandType:    cmdTiltParameters,
		TiltParameters: &tiltParameters{Tilt: tilt},
	})
}

// RaiseCover starts raising a shade.
func (c *Client) RaiseCover(ctx context.Context, deviceID string) error {
	return c.zoneCommand(ctx, deviceID, command{CommandType: cmdRaise})
}

// LowerCover starts lowering a shade.
func (c *Client) LowerCover(ctx context.Context, deviceID string) error {
	return c.zoneCommand(ctx, deviceID, command{CommandType: cmdLower})
}

// StopCover stops a moving shade.
func (c *Client) StopCover(ctx context.Context, deviceID string) error {
	return c.zoneCommand(ctx, deviceID, command{CommandType: cmdStop})
}

// ActivateScene presses and releases a programmed virtual button.
func (c *Client) ActivateScene(ctx context.Context, sceneID string) error {
	url := "/virtualbutton/" + sceneID + "/commandprocessor"
	_, err := c.request(ctx, CreateRequest, url, commandBody{Command: command{CommandType: cmdPressAndRelease}})
	return err
}

// TapButton presses and releases a physical keypad button.
func (c *Client) TapButton(ctx context.Context, buttonID string) error {
	url := "/button/" + buttonID + "/commandprocessor"
	_, err := c.request(ctx, CreateRequest, url, commandBody{Command: command{CommandType: cmdPressAndRelease}})
	return err
}

func (c *Client) zoneCommand(ctx context.Context, deviceID string, cmd command) error {
	c.dataMu.RLock()
	d, ok := c.devices[deviceID]
	zoneID := ""
	if ok {
		zoneID = d.ZoneID
	}
	c.dataMu.RUnlock()

	if zoneID == "" {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	url := "/zone/" + zoneID + "/commandprocessor"
	_, err := c.request(ctx, CreateRequest, url, commandBody{Command: cmd})
	return err
}
