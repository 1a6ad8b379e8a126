package jobs

import "errors"

var (
	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidState is returned when an operation is not legal from the job's status.
	ErrInvalidState = errors.New("invalid job state")

	// ErrQueueFull is returned by CreateJob when the admission queue has no room.
	ErrQueueFull = errors.New("job queue is full")

	// ErrStoreUnavailable wraps I/O failures of a remote job store.
	ErrStoreUnavailable = errors.New("job store unavailable")
)
