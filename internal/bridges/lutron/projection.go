package lutron

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// Host state fields written by projections.
const (
	FieldOn         = "on"
	FieldBrightness = "brightness"
	FieldPosition   = "position"
	FieldTilt       = "tilt"
	FieldSpeedIndex = "speed_index"
	FieldSpeed      = "speed"
	FieldOccupied   = "occupied"
	FieldIcon       = "icon"
)

// Occupancy icon hints.
const (
	IconTripped = "tripped"
	IconIdle    = "idle"
)

// fanSpeedIndex maps bridge fan speeds to a 0-3 index. MediumHigh shares
// Medium's index; the host has no fourth step.
var fanSpeedIndex = map[leap.FanSpeed]int{
	leap.FanOff:        0,
	leap.FanLow:        1,
	leap.FanMedium:     2,
	leap.FanMediumHigh: 2,
	leap.FanHigh:       3,
}

// FanSpeedIndex returns the speed index of a bridge fan speed.
func FanSpeedIndex(speed leap.FanSpeed) (int, bool) {
	idx, ok := fanSpeedIndex[speed]
	return idx, ok
}

// ColorProjector turns the raw colour payload into host fields.
type ColorProjector func(raw any) (map[string]any, error)

// Projector converts raw bridge state into host state updates.
//
// Color is optional. When nil, colour payloads are ignored and only the
// level is projected.
type Projector struct {
	Color ColorProjector
}

// Project applies the kind-specific projection to a raw state payload.
//
// A missing or mistyped field is reported as ErrMalformedPayload; the
// returned update still holds every field that could be projected.
func (p Projector) Project(kind Kind, raw map[string]any) (map[string]any, error) {
	update := make(map[string]any)
	var errs []error

	switch kind {
	case KindSwitch:
		level, err := levelField(raw, leap.StateCurrent)
		if err != nil {
			errs = append(errs, err)
			break
		}
		update[FieldOn] = level > 0

	case KindDimmer:
		errs = appendErr(errs, projectLevel(raw, update, FieldBrightness))

	case KindShade:
		errs = appendErr(errs, projectLevel(raw, update, FieldPosition))
		if _, present := raw[leap.StateTilt]; present {
			tilt, err := levelField(raw, leap.StateTilt)
			if err != nil {
				errs = append(errs, err)
			} else {
				update[FieldTilt] = tilt
			}
		}

	case KindFan:
		speed, ok := raw[leap.StateFanSpeed].(string)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s missing or not a string", ErrMalformedPayload, leap.StateFanSpeed))
			break
		}
		idx, known := FanSpeedIndex(leap.FanSpeed(speed))
		if !known {
			errs = append(errs, fmt.Errorf("%w: unknown fan speed %q", ErrMalformedPayload, speed))
			break
		}
		update[FieldSpeedIndex] = idx
		update[FieldSpeed] = speed

	case KindColor:
		errs = appendErr(errs, projectLevel(raw, update, FieldBrightness))
		if color, present := raw[leap.StateColor]; present && p.Color != nil {
			fields, err := p.Color(color)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: color: %w", ErrMalformedPayload, err))
			}
			for k, v := range fields {
				update[k] = v
			}
		}

	default:
		return nil, fmt.Errorf("%w: no projection for kind %q", ErrMalformedPayload, kind)
	}

	return update, errors.Join(errs...)
}

// projectLevel writes the dimmer/shade level rule: zero means off, any
// other level is written to field and leaves on/off to the host.
func projectLevel(raw, update map[string]any, field string) error {
	level, err := levelField(raw, leap.StateCurrent)
	if err != nil {
		return err
	}
	if level == 0 {
		update[FieldOn] = false
		return nil
	}
	update[field] = level
	return nil
}

// ProjectOccupancy maps an occupancy status to sensor fields.
func ProjectOccupancy(status leap.OccupancyStatus) (map[string]any, error) {
	switch status {
	case leap.Occupied:
		return map[string]any{FieldOccupied: true, FieldIcon: IconTripped}, nil
	case leap.Unoccupied:
		return map[string]any{FieldOccupied: false, FieldIcon: IconIdle}, nil
	default:
		return nil, fmt.Errorf("%w: occupancy status %q", ErrMalformedPayload, status)
	}
}

// levelField reads an integer 0..100 from raw. JSON numbers arrive as
// float64 or json.Number depending on the decoder.
func levelField(raw map[string]any, key string) (int, error) {
	v, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", ErrMalformedPayload, key)
	}

	var level int
	switch n := v.(type) {
	case int:
		level = n
	case int64:
		level = int(n)
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %s=%v is not an integer", ErrMalformedPayload, key, n)
		}
		level = int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%v: %w", ErrMalformedPayload, key, n, err)
		}
		level = int(i)
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrMalformedPayload, key, v)
	}

	if level < 0 || level > 100 {
		return 0, fmt.Errorf("%w: %s=%d out of range", ErrMalformedPayload, key, level)
	}
	return level, nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

// KindForDeviceType infers a device kind from a LEAP device type such as
// "WallDimmer" or "SerenaRollerShade". It returns "" when no kind fits.
func KindForDeviceType(deviceType string) Kind {
	t := strings.ToLower(deviceType)
	switch {
	case strings.Contains(t, "fan"):
		return KindFan
	case strings.Contains(t, "shade"), strings.Contains(t, "blind"), strings.Contains(t, "drape"):
		return KindShade
	case strings.Contains(t, "spectrum"), strings.Contains(t, "whitetune"), strings.Contains(t, "color"):
		return KindColor
	case strings.Contains(t, "dimmer"):
		return KindDimmer
	case strings.Contains(t, "switch"):
		return KindSwitch
	}
	return ""
}
