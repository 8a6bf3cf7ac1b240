// Package learning turns resolved hiring outcomes into learning events,
// accumulates error patterns, and periodically publishes new weight-set
// versions.
package learning

import "github.com/hireloop/caliber/internal/domain/model"

// Outcome-to-score mapping constants. The mapping is deliberately pluggable
// and versioned: the mapper version is stamped on every learning event so
// historical events stay interpretable after the mapping changes.
const (
	standardMapperVersion = "std-v1"

	outcomeBase      = 50
	notHiredScore    = 25
	hiredBonus       = 15
	startedBonus     = 10
	retained30Bonus  = 5
	retained90Bonus  = 15
	ratingStep       = 5  // per point away from a neutral 3 rating
	incidentPenalty  = 40
	neutralRating    = 3
)

// OutcomeMapper converts ground truth into an actual score on the same 0-100
// scale as predictions.
type OutcomeMapper interface {
	Version() string
	Map(rec model.OutcomeRecord) int
}

// StandardMapper is the default documented mapping: hired-and-retained
// outcomes land high, early terminations and incidents land low.
type StandardMapper struct{}

// Version returns the mapper version stamped on learning events.
func (StandardMapper) Version() string { return standardMapperVersion }

// Map scores the outcome.
func (StandardMapper) Map(rec model.OutcomeRecord) int {
	if !rec.Hired {
		return notHiredScore
	}
	score := outcomeBase + hiredBonus
	if rec.Started {
		score += startedBonus
	}
	if rec.Retained90 {
		score += retained90Bonus
	} else if rec.Retained30 {
		score += retained30Bonus
	}
	if rec.PerformanceRating > 0 {
		score += (rec.PerformanceRating - neutralRating) * ratingStep
	}
	if rec.IncidentFlag {
		score -= incidentPenalty
	}
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}
	return score
}
