package store

import "errors"

// Sentinel errors returned by KeyStore implementations. Callers match with
// errors.Is; higher layers translate these into the application error types.
var (
	// ErrNotFound indicates a lookup miss. It is a valid empty result for
	// most callers, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates the backing store is unreachable or the
	// operation timed out. The caller decides whether and how to retry.
	ErrUnavailable = errors.New("store unavailable")
)
