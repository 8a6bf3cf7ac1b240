package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hireloop/caliber/internal/domain/model"
	"github.com/hireloop/caliber/pkg/logger"
)

// Batch update constants. Deltas are deliberately small and clamped so a
// noisy sample cannot destabilize the weights in one cycle.
const (
	defaultSignificance = 5    // minimum pattern occurrences before a delta applies
	deltaPerOccurrence  = 0.5  // scaled by log2(1+occurrences)
	maxDeltaPerCycle    = 2.0  // step clamp
	penaltyCeiling      = 50.0 // |penalty| beyond this rejects the update
	defaultMaxRetries   = 3
)

// PatternReader lists and consumes accumulated patterns.
type PatternReader interface {
	Patterns(ctx context.Context) ([]model.LearningPattern, error)
	DeletePatterns(ctx context.Context, patterns []model.LearningPattern) error
}

// WeightPublisher reads the active weight set and publishes a successor with
// compare-and-swap semantics: publishing fails with model.ErrVersionConflict
// when the active version no longer matches the parent.
type WeightPublisher interface {
	WeightSource
	PublishWeightSet(ctx context.Context, ws model.WeightSet) error
}

// Batch aggregates significant patterns into a new weight-set version.
// At-most-one-writer per scope is enforced by the CAS publish; a concurrent
// batch run loses the race and retries against the latest version.
type Batch struct {
	patterns     PatternReader
	weights      WeightPublisher
	scope        string
	significance int64
	maxRetries   int
	logger       logger.Logger
	now          func() time.Time
}

// BatchOption applies a configuration option to the Batch.
type BatchOption func(*Batch)

// WithSignificance sets the occurrence threshold for applying a pattern.
func WithSignificance(n int64) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.significance = n
		}
	}
}

// WithBatchScope sets the weight-set scope the batch publishes into.
func WithBatchScope(scope string) BatchOption {
	return func(b *Batch) {
		if scope != "" {
			b.scope = scope
		}
	}
}

// WithMaxRetries bounds CAS retry attempts on version conflicts.
func WithMaxRetries(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.maxRetries = n
		}
	}
}

// WithBatchLogger sets a custom logger for the batch updater.
func WithBatchLogger(lg logger.Logger) BatchOption {
	return func(b *Batch) {
		if lg != nil {
			b.logger = lg
		}
	}
}

// WithClock overrides the time source. Tests pin it for reproducible versions.
func WithClock(now func() time.Time) BatchOption {
	return func(b *Batch) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBatch wires a batch weight updater.
func NewBatch(patterns PatternReader, weights WeightPublisher, opts ...BatchOption) *Batch {
	b := &Batch{
		patterns:     patterns,
		weights:      weights,
		scope:        ScopeGlobal,
		significance: defaultSignificance,
		maxRetries:   defaultMaxRetries,
		now:          time.Now,
	}

	// Apply all options
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Run performs one batch weight update. Returns the published weight set, or
// ok=false when there was nothing significant to apply or the active set is
// frozen.
func (b *Batch) Run(ctx context.Context) (model.WeightSet, bool, error) {
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		ws, ok, err := b.runOnce(ctx)
		if errors.Is(err, model.ErrVersionConflict) {
			if b.logger != nil {
				b.logger.Warn(ctx, "weight publish lost the version race; retrying",
					logger.Int("attempt", attempt+1))
			}
			continue
		}
		return ws, ok, err
	}
	return model.WeightSet{}, false, fmt.Errorf("weight publish: retries exhausted: %w", model.ErrVersionConflict)
}

func (b *Batch) runOnce(ctx context.Context) (model.WeightSet, bool, error) {
	active, ok, err := b.weights.ActiveWeightSet(ctx, b.scope)
	if err != nil {
		return model.WeightSet{}, false, fmt.Errorf("load active weight set: %w", err)
	}
	if !ok {
		return model.WeightSet{}, false, fmt.Errorf("no active weight set for scope %s: %w", b.scope, model.ErrConfiguration)
	}
	if active.Frozen {
		if b.logger != nil {
			b.logger.Info(ctx, "active weight set is frozen; skipping batch update",
				logger.String("version", active.Version))
		}
		return model.WeightSet{}, false, nil
	}

	all, err := b.patterns.Patterns(ctx)
	if err != nil {
		return model.WeightSet{}, false, fmt.Errorf("load patterns: %w", err)
	}

	next := active.Clone()
	var applied []model.LearningPattern
	for _, p := range all {
		if p.OccurrenceCount < b.significance {
			continue
		}
		if err := b.apply(ctx, &next, p); err != nil {
			if errors.Is(err, ErrWeightUpdateRejected) {
				if b.logger != nil {
					b.logger.Warn(ctx, "weight delta rejected",
						logger.String("signal", p.Signal),
						logger.String("pattern_type", p.PatternType),
						logger.Error(err),
					)
				}
				continue
			}
			return model.WeightSet{}, false, err
		}
		applied = append(applied, p)
	}
	if len(applied) == 0 {
		return model.WeightSet{}, false, nil
	}

	next.Version = uuid.NewString()
	next.ParentVersion = active.Version
	next.Active = true
	next.Frozen = false
	next.CreatedAt = b.now()

	if err := b.weights.PublishWeightSet(ctx, next); err != nil {
		return model.WeightSet{}, false, err
	}

	// Consumed patterns reset so the same evidence is not applied twice.
	if err := b.patterns.DeletePatterns(ctx, applied); err != nil {
		return model.WeightSet{}, false, fmt.Errorf("clear applied patterns: %w", err)
	}

	if b.logger != nil {
		b.logger.Info(ctx, "published new weight set",
			logger.String("version", next.Version),
			logger.String("parent", active.Version),
			logger.Int("patterns_applied", len(applied)),
		)
	}
	return next, true, nil
}

// apply folds one pattern into the candidate weight set. The signed delta
// follows the mean error direction: negative error (predicted too high)
// strengthens the flag penalty, positive error weakens it.
func (b *Batch) apply(ctx context.Context, ws *model.WeightSet, p model.LearningPattern) error {
	delta := b.delta(p)
	if delta == 0 {
		return nil
	}

	if p.Signal == "composite_bias" {
		// Base optimism: nudge the composite weight itself, in hundredths.
		ws.BaseWeight += delta / 100
		return nil
	}

	current := ws.FlagPenalties[p.Signal]
	updated := current + delta
	if math.Abs(updated) > penaltyCeiling {
		return fmt.Errorf("signal %s: penalty %.2f exceeds ceiling %.0f: %w",
			p.Signal, updated, penaltyCeiling, ErrWeightUpdateRejected)
	}
	ws.FlagPenalties[p.Signal] = updated
	return nil
}

func (b *Batch) delta(p model.LearningPattern) float64 {
	if p.OccurrenceCount <= 0 {
		return 0
	}
	magnitude := deltaPerOccurrence * math.Log2(1+float64(p.OccurrenceCount))
	if magnitude > maxDeltaPerCycle {
		magnitude = maxDeltaPerCycle
	}
	if p.ErrorSum < 0 {
		return -magnitude
	}
	return magnitude
}
