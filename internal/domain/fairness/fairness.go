// Package fairness aggregates per-group prediction-versus-outcome statistics
// and raises alerts on systematic bias. Informational only: it never touches
// scoring weights.
package fairness

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hireloop/caliber/internal/domain/model"
)

// Reporter defaults.
const (
	defaultTolerance  = 2.0 // group divergence vs global average divergence
	defaultMinSamples = 10  // sample floor to avoid alerting on noise
	defaultWindow     = 90 * 24 * time.Hour
	divergenceFloor   = 1.0 // global divergence floor so near-zero baselines do not alert everything
)

// Group dimensions reported on.
const (
	GroupCountry  = "country"
	GroupLanguage = "language"
	GroupIndustry = "industry"
	GroupChannel  = "source_channel"
)

// EventSource lists learning events inside the reporting window.
type EventSource interface {
	EventsSince(ctx context.Context, since time.Time) ([]model.LearningEvent, error)
}

// SnapshotSink persists computed snapshots, append-only by report date.
type SnapshotSink interface {
	SaveFairnessSnapshots(ctx context.Context, snaps []model.FairnessSnapshot) error
}

// Option applies a configuration option to the Reporter.
type Option func(*Reporter)

// WithTolerance sets the divergence multiple that triggers an alert.
func WithTolerance(t float64) Option {
	return func(r *Reporter) {
		if t > 0 {
			r.tolerance = t
		}
	}
}

// WithMinSamples sets the per-group sample floor for alerting.
func WithMinSamples(n int64) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.minSamples = n
		}
	}
}

// WithWindow sets the reporting window length.
func WithWindow(w time.Duration) Option {
	return func(r *Reporter) {
		if w > 0 {
			r.window = w
		}
	}
}

// Reporter computes fairness snapshots over accumulated learning events.
type Reporter struct {
	events     EventSource
	sink       SnapshotSink
	tolerance  float64
	minSamples int64
	window     time.Duration
}

// NewReporter creates a fairness reporter.
func NewReporter(events EventSource, sink SnapshotSink, opts ...Option) *Reporter {
	r := &Reporter{
		events:     events,
		sink:       sink,
		tolerance:  defaultTolerance,
		minSamples: defaultMinSamples,
		window:     defaultWindow,
	}

	// Apply all options
	for _, opt := range opts {
		opt(r)
	}

	return r
}

type groupAgg struct {
	count        int64
	predictedSum float64
	actualSum    float64
	hirePredicts int64
	hireCorrect  int64
}

// Run computes one snapshot per (group type, group value) for the window
// ending at reportDate and persists them.
func (r *Reporter) Run(ctx context.Context, reportDate time.Time) ([]model.FairnessSnapshot, error) {
	events, err := r.events.EventsSince(ctx, reportDate.Add(-r.window))
	if err != nil {
		return nil, fmt.Errorf("load learning events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	groups := make(map[string]map[string]*groupAgg)
	var globalDivergenceSum float64
	for _, ev := range events {
		globalDivergenceSum += math.Abs(float64(ev.ActualScore - ev.PredictedScore))
		for gt, gv := range groupValues(ev.Meta) {
			if gv == "" {
				continue
			}
			if groups[gt] == nil {
				groups[gt] = make(map[string]*groupAgg)
			}
			agg := groups[gt][gv]
			if agg == nil {
				agg = &groupAgg{}
				groups[gt][gv] = agg
			}
			agg.count++
			agg.predictedSum += float64(ev.PredictedScore)
			agg.actualSum += float64(ev.ActualScore)
			if ev.PredictedDecision == model.DecisionHire {
				agg.hirePredicts++
				if !ev.FalsePositive {
					agg.hireCorrect++
				}
			}
		}
	}

	globalDivergence := globalDivergenceSum / float64(len(events))
	if globalDivergence < divergenceFloor {
		globalDivergence = divergenceFloor
	}

	date := reportDate.Format("2006-01-02")
	var snaps []model.FairnessSnapshot
	for gt, values := range groups {
		for gv, agg := range values {
			n := float64(agg.count)
			snap := model.FairnessSnapshot{
				ReportDate:   date,
				GroupType:    gt,
				GroupValue:   gv,
				SampleCount:  agg.count,
				AvgPredicted: agg.predictedSum / n,
				AvgActual:    agg.actualSum / n,
			}
			snap.Divergence = math.Abs(snap.AvgPredicted - snap.AvgActual)
			if agg.hirePredicts > 0 {
				snap.HirePrecision = float64(agg.hireCorrect) / float64(agg.hirePredicts)
			}
			snap.HasAlert = agg.count >= r.minSamples && snap.Divergence > r.tolerance*globalDivergence
			snaps = append(snaps, snap)
		}
	}

	// Stable output order for reproducible reports.
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].GroupType != snaps[j].GroupType {
			return snaps[i].GroupType < snaps[j].GroupType
		}
		return snaps[i].GroupValue < snaps[j].GroupValue
	})

	if err := r.sink.SaveFairnessSnapshots(ctx, snaps); err != nil {
		return nil, fmt.Errorf("save fairness snapshots: %w", err)
	}
	return snaps, nil
}

func groupValues(meta model.CandidateMeta) map[string]string {
	return map[string]string{
		GroupCountry:  meta.CountryCode,
		GroupLanguage: meta.Language,
		GroupIndustry: meta.IndustryCode,
		GroupChannel:  meta.SourceChannel,
	}
}
