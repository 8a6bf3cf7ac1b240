// Package repository defines the versioned store interfaces backing the
// decision engine and two implementations: an in-memory store and a
// SQLite-backed store.
package repository

import (
	"context"
	"time"

	"github.com/hireloop/caliber/internal/domain/model"
)

// BaselineStore reads and incrementally updates calibration baselines.
type BaselineStore interface {
	// Baseline returns the current baseline snapshot for a segment.
	// The second return is false when the segment has never been observed.
	Baseline(ctx context.Context, key model.BaselineKey) (model.Baseline, bool, error)

	// ObserveScore folds one raw composite score into the segment baseline
	// atomically and returns the new version. Concurrent observations for the
	// same segment must serialize; no update may be lost.
	ObserveScore(ctx context.Context, key model.BaselineKey, raw float64) (model.Baseline, error)
}

// WeightStore manages versioned, immutable weight sets.
type WeightStore interface {
	// ActiveWeightSet returns the single active set for a scope.
	ActiveWeightSet(ctx context.Context, scope string) (model.WeightSet, bool, error)

	// WeightSet returns a set by version regardless of active state.
	WeightSet(ctx context.Context, version string) (model.WeightSet, bool, error)

	// SeedWeightSet installs ws as the active set for its scope only when the
	// scope has no active set yet. Used for initial catalog seeding.
	SeedWeightSet(ctx context.Context, ws model.WeightSet) error

	// PublishWeightSet activates ws, deactivating its parent, with
	// compare-and-swap semantics on ws.ParentVersion: when the active version
	// for the scope is not the parent, publishing fails with
	// model.ErrVersionConflict and nothing changes.
	PublishWeightSet(ctx context.Context, ws model.WeightSet) error

	// SetFrozen flips the frozen flag on a version. Explicit administrative
	// action; the batch updater never calls this.
	SetFrozen(ctx context.Context, version string, frozen bool) error
}

// DecisionStore persists immutable decision snapshots.
type DecisionStore interface {
	SaveDecision(ctx context.Context, snap model.DecisionSnapshot) error
	Decision(ctx context.Context, id string) (model.DecisionSnapshot, bool, error)
	LatestDecisionForCandidate(ctx context.Context, candidateID string) (model.DecisionSnapshot, bool, error)
}

// LearningStore persists learning events and error patterns.
type LearningStore interface {
	// AppendEvent records one immutable learning event. Appending a second
	// event for the same outcome ID is a no-op and returns false, so the
	// caller can keep replayed outcomes from repeating side effects.
	AppendEvent(ctx context.Context, ev model.LearningEvent) (bool, error)

	EventsSince(ctx context.Context, since time.Time) ([]model.LearningEvent, error)

	// IncrementPattern bumps the occurrence counter for a pattern key,
	// creating the row when absent. Must be atomic under concurrency.
	IncrementPattern(ctx context.Context, patternType, signal, industry string, errVal float64, at time.Time) error

	Patterns(ctx context.Context) ([]model.LearningPattern, error)

	// DeletePatterns removes patterns consumed by a batch weight update.
	DeletePatterns(ctx context.Context, patterns []model.LearningPattern) error
}

// FairnessStore persists periodic fairness snapshots, append-only by date.
type FairnessStore interface {
	SaveFairnessSnapshots(ctx context.Context, snaps []model.FairnessSnapshot) error

	// FairnessSnapshots returns snapshots for a report date; an empty date
	// selects the most recent one on record.
	FairnessSnapshots(ctx context.Context, reportDate string) ([]model.FairnessSnapshot, error)
}

// Store bundles every aggregate the engine persists.
type Store interface {
	BaselineStore
	WeightStore
	DecisionStore
	LearningStore
	FairnessStore

	Close() error
}
