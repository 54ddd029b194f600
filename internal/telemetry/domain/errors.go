package telemetry

import "errors"

// ErrValidation is returned for malformed ingest payloads.
var ErrValidation = errors.New("telemetry: validation failed")

// ErrUnknownDevice is returned when readings arrive for a device that is not
// registered.
var ErrUnknownDevice = errors.New("telemetry: unknown device")
