package domain

import "errors"

var (
	// ErrStorageUnavailable wraps backing-store failures; surfaced to the
	// triggering connection, never fatal to the process.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound covers absent rooms, classes and participants. Benign on
	// disconnect/rename paths, a rejected request on class lifecycle actions.
	ErrNotFound = errors.New("not found")
)
