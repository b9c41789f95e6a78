package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrTriggerNotFound) {
//	    // handle not found case
//	}
var (
	// ErrTriggerNotFound is returned when a trigger ID does not exist.
	ErrTriggerNotFound = errors.New("trigger: not found")

	// ErrTriggerExists is returned when creating a trigger with an ID that already exists.
	ErrTriggerExists = errors.New("trigger: already exists")

	// ErrInvalidTrigger is returned when trigger validation fails.
	ErrInvalidTrigger = errors.New("trigger: invalid")

	// ErrInvalidName is returned when a name is empty or too long.
	ErrInvalidName = errors.New("automation: invalid name")

	// ErrInvalidAddress is returned when an address is not "bridge:native".
	ErrInvalidAddress = errors.New("automation: invalid address")

	// ErrRuleNotFound is returned when a linked device rule ID does not exist.
	ErrRuleNotFound = errors.New("linked rule: not found")

	// ErrRuleExists is returned when the same controller already toggles the same target.
	ErrRuleExists = errors.New("linked rule: already exists")

	// ErrInvalidRule is returned when linked rule validation fails.
	ErrInvalidRule = errors.New("linked rule: invalid")
)
