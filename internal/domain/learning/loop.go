package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hireloop/caliber/internal/domain/model"
	"github.com/hireloop/caliber/pkg/logger"
)

// DecisionSource resolves the prediction an outcome refers to.
type DecisionSource interface {
	Decision(ctx context.Context, id string) (model.DecisionSnapshot, bool, error)
	LatestDecisionForCandidate(ctx context.Context, candidateID string) (model.DecisionSnapshot, bool, error)
}

// EventStore appends immutable learning events.
type EventStore interface {
	// AppendEvent returns false when an event for the same outcome ID is
	// already recorded.
	AppendEvent(ctx context.Context, ev model.LearningEvent) (bool, error)
}

// PatternStore accumulates error patterns with atomic increment-or-insert.
type PatternStore interface {
	IncrementPattern(ctx context.Context, patternType, signal, industry string, errVal float64, at time.Time) error
}

// WeightSource reads the active weight set for a scope.
type WeightSource interface {
	ActiveWeightSet(ctx context.Context, scope string) (model.WeightSet, bool, error)
}

// ScopeGlobal is the weight-set scope used when no per-company scoping applies.
const ScopeGlobal = "global"

// Loop processes one resolved outcome at a time: compute the prediction
// error, classify it, append a learning event, and bump matching patterns.
// The event ledger is the durable idempotency guard: a replayed outcome ID
// appends nothing and bumps no patterns, whatever upstream filtering saw.
type Loop struct {
	decisions DecisionSource
	events    EventStore
	patterns  PatternStore
	weights   WeightSource
	mapper    OutcomeMapper
	scope     string
	logger    logger.Logger
}

// LoopOption applies a configuration option to the Loop.
type LoopOption func(*Loop)

// WithMapper replaces the default outcome-to-score mapper.
func WithMapper(m OutcomeMapper) LoopOption {
	return func(l *Loop) {
		if m != nil {
			l.mapper = m
		}
	}
}

// WithScope sets the weight-set scope consulted for good/bad thresholds.
func WithScope(scope string) LoopOption {
	return func(l *Loop) {
		if scope != "" {
			l.scope = scope
		}
	}
}

// WithLoopLogger sets a custom logger for the loop.
func WithLoopLogger(lg logger.Logger) LoopOption {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLoop wires the learning loop against its stores.
func NewLoop(decisions DecisionSource, events EventStore, patterns PatternStore, weights WeightSource, opts ...LoopOption) *Loop {
	l := &Loop{
		decisions: decisions,
		events:    events,
		patterns:  patterns,
		weights:   weights,
		mapper:    StandardMapper{},
		scope:     ScopeGlobal,
	}

	// Apply all options
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// ProcessOutcome runs steps 1-4 of the feedback loop for one outcome record.
// The batch weight update (step 5) runs separately, see Batch.
func (l *Loop) ProcessOutcome(ctx context.Context, rec model.OutcomeRecord) (model.LearningEvent, error) {
	snapshot, err := l.resolveDecision(ctx, rec)
	if err != nil {
		return model.LearningEvent{}, err
	}

	ws, ok, err := l.weights.ActiveWeightSet(ctx, l.scope)
	if err != nil {
		return model.LearningEvent{}, fmt.Errorf("load active weight set: %w", err)
	}
	if !ok {
		return model.LearningEvent{}, fmt.Errorf("no active weight set for scope %s: %w", l.scope, model.ErrConfiguration)
	}

	actual := l.mapper.Map(rec)
	predicted := snapshot.CalibratedScore
	errVal := float64(actual - predicted)

	ev := model.LearningEvent{
		ID:                uuid.NewString(),
		OutcomeID:         rec.OutcomeID,
		DecisionID:        snapshot.ID,
		Meta:              snapshot.Meta,
		PredictedScore:    predicted,
		PredictedDecision: snapshot.Decision,
		ActualScore:       actual,
		Error:             errVal,
		FalsePositive:     float64(predicted) >= ws.GoodThreshold && float64(actual) <= ws.BadThreshold,
		FalseNegative:     float64(predicted) <= ws.BadThreshold && float64(actual) >= ws.GoodThreshold,
		WeightVersion:     ws.Version,
		MapperVersion:     l.mapper.Version(),
		CreatedAt:         rec.ResolvedAt,
	}
	for _, f := range snapshot.RiskFlags {
		ev.FlagCodes = append(ev.FlagCodes, f.Code)
	}

	inserted, err := l.events.AppendEvent(ctx, ev)
	if err != nil {
		return model.LearningEvent{}, fmt.Errorf("append learning event: %w", err)
	}
	if !inserted {
		// This outcome already drove pattern accounting once.
		if l.logger != nil {
			l.logger.Info(ctx, "outcome replay ignored", logger.String("outcome_id", rec.OutcomeID))
		}
		return ev, nil
	}

	if err := l.recordPatterns(ctx, ev); err != nil {
		// Pattern accounting is best-effort; the event itself is already durable.
		if l.logger != nil {
			l.logger.Warn(ctx, "pattern update failed", logger.Error(err),
				logger.String("outcome_id", rec.OutcomeID))
		}
	}

	return ev, nil
}

func (l *Loop) resolveDecision(ctx context.Context, rec model.OutcomeRecord) (model.DecisionSnapshot, error) {
	if rec.DecisionID != "" {
		snap, ok, err := l.decisions.Decision(ctx, rec.DecisionID)
		if err != nil {
			return model.DecisionSnapshot{}, fmt.Errorf("load decision %s: %w", rec.DecisionID, err)
		}
		if ok {
			return snap, nil
		}
	}
	snap, ok, err := l.decisions.LatestDecisionForCandidate(ctx, rec.CandidateID)
	if err != nil {
		return model.DecisionSnapshot{}, fmt.Errorf("load decision for candidate %s: %w", rec.CandidateID, err)
	}
	if !ok {
		return model.DecisionSnapshot{}, fmt.Errorf("outcome %s: %w", rec.OutcomeID, ErrNoDecision)
	}
	return snap, nil
}

// recordPatterns bumps one pattern per signal implicated in the error.
// False positives with matched flags point at underweighted flags; false
// negatives point at overweighted ones. Accurate predictions record nothing.
func (l *Loop) recordPatterns(ctx context.Context, ev model.LearningEvent) error {
	industry := ev.Meta.IndustryCode
	switch {
	case ev.FalsePositive:
		if len(ev.FlagCodes) == 0 {
			return l.patterns.IncrementPattern(ctx, model.PatternOverweightedBoost, "composite_bias", industry, ev.Error, ev.CreatedAt)
		}
		for _, code := range ev.FlagCodes {
			if err := l.patterns.IncrementPattern(ctx, model.PatternUnderweightedFlag, code, industry, ev.Error, ev.CreatedAt); err != nil {
				return err
			}
		}
	case ev.FalseNegative:
		for _, code := range ev.FlagCodes {
			if err := l.patterns.IncrementPattern(ctx, model.PatternOverweightedBoost, code, industry, ev.Error, ev.CreatedAt); err != nil {
				return err
			}
		}
	}
	return nil
}
