package automation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxPressCount = 10
)

// ValidateTrigger performs comprehensive validation on a trigger.
// Returns an error describing the first validation failure found.
func ValidateTrigger(t *Trigger) error {
	if t == nil {
		return ErrInvalidTrigger
	}
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if err := ValidateAddress(t.Address); err != nil {
		return err
	}

	switch t.Type {
	case TriggerButtonEvent:
		switch t.EventType {
		case EventPress, EventRelease, EventLongHold:
		default:
			return fmt.Errorf("%w: event_type must be Press, Release or LongHold, got %q", ErrInvalidTrigger, t.EventType)
		}
	case TriggerMultiPress:
		if t.Count < 1 || t.Count > maxPressCount {
			return fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidTrigger, maxPressCount)
		}
	case TriggerOccupancy:
		if t.Status != StatusOccupied && t.Status != StatusUnoccupied {
			return fmt.Errorf("%w: status must be Occupied or Unoccupied, got %q", ErrInvalidTrigger, t.Status)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTrigger, t.Type)
	}
	return nil
}

// ValidateLinkedRule checks a linked device rule.
func ValidateLinkedRule(r *LinkedDeviceRule) error {
	if r == nil {
		return ErrInvalidRule
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRule, maxNameLength)
	}
	if err := ValidateAddress(r.ControllerAddress); err != nil {
		return err
	}
	if strings.TrimSpace(r.TargetDeviceID) == "" {
		return fmt.Errorf("%w: target device is required", ErrInvalidRule)
	}
	return nil
}

// ValidateName checks that a name is present and not too long.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateAddress checks the "bridge:native" address form.
func ValidateAddress(address string) error {
	bridge, native, ok := strings.Cut(address, ":")
	if !ok || bridge == "" || native == "" {
		return fmt.Errorf("%w: %q is not bridge:native", ErrInvalidAddress, address)
	}
	return nil
}

// GenerateID creates a new UUID for a trigger or rule.
func GenerateID() string {
	return uuid.New().String()
}
