package devices

import "errors"

var (
	// ErrNotFound is returned for absent devices and for devices owned by a
	// different user. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("devices: not found")
	// ErrAlreadyRegistered is returned when a device id is taken.
	ErrAlreadyRegistered = errors.New("devices: already registered")
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("devices: invalid request")
)
