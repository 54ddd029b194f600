package commands

import "errors"

var (
	// ErrNotFound covers both truly absent commands and commands outside the
	// caller's visible scope.
	ErrNotFound = errors.New("commands: not found")
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("commands: invalid request")
)
