package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")

	// ErrDuplicateRequest is returned when a request ID was already recorded
	// but its decision snapshot is not yet durable (evaluation in flight).
	ErrDuplicateRequest = errors.New("duplicate request in flight")
)
