package learning

import "errors"

// Sentinel kinds for learning-loop errors.
var (
	// ErrWeightUpdateRejected marks a computed delta that would push a weight
	// past the safety ceiling. The signal is skipped and logged; the batch
	// continues for other signals.
	ErrWeightUpdateRejected = errors.New("weight update rejected")

	// ErrNoDecision marks an outcome that references no stored decision.
	ErrNoDecision = errors.New("no decision snapshot for outcome")
)
