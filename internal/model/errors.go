package model

import "errors"

var (
	// ErrValidation is returned when required fields are missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when no matching user or record exists.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when registering an email that already exists.
	ErrConflict = errors.New("already exists")
	// ErrStore wraps any failure of the underlying persistence layer.
	ErrStore = errors.New("store operation failed")
	// ErrInvalidCredentials is returned when a password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
