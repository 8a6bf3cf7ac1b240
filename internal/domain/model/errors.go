package model

import "errors"

// Sentinel kinds shared across domain packages.
var (
	// ErrConfiguration marks a deployment invariant violation (missing rubric,
	// empty rule matrix, no default baseline). Fatal at load time, never a
	// per-candidate runtime error.
	ErrConfiguration = errors.New("configuration error")

	// ErrVersionConflict marks a lost compare-and-swap race when publishing a
	// new weight-set version. Recoverable; the writer retries against the
	// latest version.
	ErrVersionConflict = errors.New("weight set version conflict")
)
