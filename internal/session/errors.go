package session

import "errors"

// Sentinel errors returned by the registry and manager. Callers use
// errors.Is to map them to transport-level responses.
var (
	// ErrNotFound is returned when a session identifier is unknown,
	// either because it never existed or because the reaper removed it.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists is returned when creating a session under an
	// identifier that is already registered.
	ErrAlreadyExists = errors.New("session already exists")

	// ErrInvalidRequest is returned when a start request fails validation
	// before any operation is launched.
	ErrInvalidRequest = errors.New("invalid request")
)
