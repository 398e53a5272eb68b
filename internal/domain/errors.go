package domain

import "errors"

// Domain errors - use with errors.Is()
var (
	// ErrNotFound indicates a session was not found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an action was attempted against a session in
	// the wrong state (e.g. an intervention submitted while the session
	// isn't waiting for human input).
	ErrConflict = errors.New("conflict")

	// ErrStoreUnavailable indicates a transient backend fault in the state
	// store, event stream, or work queue.
	ErrStoreUnavailable = errors.New("store unavailable")
)
