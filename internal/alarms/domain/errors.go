package alarms

import "errors"

// ErrNotFound is returned when a rule does not exist for the device.
var ErrNotFound = errors.New("alarms: not found")

// ErrValidation is returned for malformed rule definitions.
var ErrValidation = errors.New("alarms: validation failed")
