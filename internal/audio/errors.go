package audio

import "errors"

var (
	// ErrIndexOutOfRange is returned by index-based mutators given an index
	// outside the backing list.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrSessionNotFound is returned when a session is not in the Visible list.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDisposed is returned by controls of a device or session that has
	// already been destroyed.
	ErrDisposed = errors.New("entity disposed")
)
