package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	maxNameLength = 100
	maxIDLength   = 64
	idPattern     = `^[A-Za-z0-9][A-Za-z0-9_.-]*$`

	// Size limits for the state JSON to keep a misbehaving bridge from
	// growing rows without bound.
	maxStateKeys      = 50
	maxStringValueLen = 1024
	maxSliceLen       = 50
	maxNestingDepth   = 5
)

var idRegex = regexp.MustCompile(idPattern)

// validKinds is built once from AllKinds.
var validKinds = func() map[string]struct{} {
	m := make(map[string]struct{}, len(AllKinds()))
	for _, k := range AllKinds() {
		m[k] = struct{}{}
	}
	return m
}()

// ValidateDevice performs validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateKind(d.Kind); err != nil {
		return err
	}

	if d.IsBridge() {
		if d.BridgeID != "" || d.NativeID != "" {
			return fmt.Errorf("%w: bridge %s must not reference another bridge", ErrInvalidDevice, d.ID)
		}
	} else {
		if d.BridgeID == "" {
			return fmt.Errorf("%w: bridge_id is required for kind %s", ErrInvalidDevice, d.Kind)
		}
		if d.NativeID == "" {
			return fmt.Errorf("%w: native_id is required for kind %s", ErrInvalidDevice, d.Kind)
		}
	}

	return ValidateState(d.State)
}

// ValidateID checks if a device ID is valid.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidID, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q must be letters, digits, '.', '_' or '-'", ErrInvalidID, id)
	}
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateKind checks if a kind is recognised.
func ValidateKind(kind string) error {
	if _, ok := validKinds[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return nil
}

// ValidateState checks a state map against the size limits.
func ValidateState(s State) error {
	if len(s) > maxStateKeys {
		return fmt.Errorf("%w: more than %d keys", ErrInvalidState, maxStateKeys)
	}
	return validateMap(s, 0)
}

// validateMap recursively validates map values with depth tracking.
func validateMap(m map[string]any, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: exceeds maximum nesting depth", ErrInvalidState)
	}
	for k, v := range m {
		if k == "" || len(k) > maxStringValueLen {
			return fmt.Errorf("%w: invalid key %q", ErrInvalidState, k)
		}
		if err := validateValue(v, depth); err != nil {
			return err
		}
	}
	return nil
}

// validateValue recursively validates a value's size.
func validateValue(v any, depth int) error {
	switch val := v.(type) {
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: string value too long", ErrInvalidState)
		}
	case map[string]any:
		if len(val) > maxStateKeys {
			return fmt.Errorf("%w: nested map too large", ErrInvalidState)
		}
		return validateMap(val, depth+1)
	case []any:
		if len(val) > maxSliceLen {
			return fmt.Errorf("%w: array too large", ErrInvalidState)
		}
		for _, elem := range val {
			if err := validateValue(elem, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
