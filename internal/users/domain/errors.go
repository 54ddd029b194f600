package users

import "errors"

var (
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("users: invalid request")
)
