package models

import "errors"

var (
	// ErrValidation marks input rejected before reaching a store.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers both missing records and records owned by someone else.
	ErrNotFound           = errors.New("not found")
	ErrDuplicateEmail     = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("unauthenticated")
	// ErrUnavailable wraps connectivity failures of a backing store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrCorruptState is returned when persisted state cannot be loaded or repaired.
	ErrCorruptState = errors.New("corrupt persisted state")
)
