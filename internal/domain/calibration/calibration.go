// Package calibration normalizes raw composite scores against population
// baselines so candidates are comparable across positions, industries, and
// languages.
package calibration

import (
	"context"
	"fmt"
	"math"

	"github.com/hireloop/caliber/internal/domain/model"
)

// Calibration constants. The linear rescale centers the population mean at 50
// and spreads one standard deviation over 10 points.
const (
	DefaultMean   = 50.0
	DefaultStdDev = 15.0

	stdDevFloor = 1.0
	zClampBound = 5.0
	zScale      = 10.0
	centerScore = 50.0

	defaultMinSamples = 20
)

// Fallback levels recorded on a calibration result.
const (
	FallbackExact    = "exact"
	FallbackIndustry = "industry"
	FallbackGlobal   = "global"
)

// BaselineSource resolves the baseline for a segment. The second return value
// is false when no baseline exists for the key.
type BaselineSource interface {
	Baseline(ctx context.Context, key model.BaselineKey) (model.Baseline, bool, error)
}

// Result is the deterministic output of one calibration run. Re-running with
// the same baseline version yields an identical result.
type Result struct {
	CalibratedScore int
	ZScore          float64 // 4-decimal precision, after clamping
	Segment         string
	BaselineVersion int64
	Fallback        string
	Warnings        []model.Warning
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithMinSamples sets the sample count below which a segment baseline is
// considered stale and skipped in favor of the next fallback level.
func WithMinSamples(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minSamples = n
		}
	}
}

// Engine computes calibrated scores. Reads pin a baseline version; the engine
// never writes, so concurrent evaluation across candidates is lock-free.
type Engine struct {
	source     BaselineSource
	minSamples int64
}

// NewEngine creates a calibration engine over the given baseline source.
func NewEngine(source BaselineSource, opts ...Option) *Engine {
	e := &Engine{
		source:     source,
		minSamples: defaultMinSamples,
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Calibrate normalizes raw against the best available baseline for key.
// maxScoreCap applies a final clamp when >= 0 (cap from the red-flag detector).
//
// Fallback order: exact segment -> industry only -> global default.
func (e *Engine) Calibrate(ctx context.Context, raw float64, key model.BaselineKey, maxScoreCap int) (Result, error) {
	baseline, fallback, warnings, err := e.resolve(ctx, key)
	if err != nil {
		return Result{}, err
	}

	stddev := baseline.StdDev
	if stddev < stdDevFloor {
		stddev = stdDevFloor
	}

	z := (raw - baseline.Mean) / stddev
	// Clamp before rescaling so a runaway outlier cannot blow past the scale.
	if z > zClampBound {
		z = zClampBound
	} else if z < -zClampBound {
		z = -zClampBound
	}
	z = math.Round(z*10000) / 10000

	calibrated := int(math.Round(centerScore + z*zScale))
	if calibrated < 0 {
		calibrated = 0
	} else if calibrated > 100 {
		calibrated = 100
	}
	if maxScoreCap >= 0 && calibrated > maxScoreCap {
		calibrated = maxScoreCap
	}

	return Result{
		CalibratedScore: calibrated,
		ZScore:          z,
		Segment:         baseline.Key.Segment(),
		BaselineVersion: baseline.Version,
		Fallback:        fallback,
		Warnings:        warnings,
	}, nil
}

// resolve walks the documented fallback order and reports which level served.
func (e *Engine) resolve(ctx context.Context, key model.BaselineKey) (model.Baseline, string, []model.Warning, error) {
	var warnings []model.Warning

	exact, ok, err := e.source.Baseline(ctx, key)
	if err != nil {
		return model.Baseline{}, "", nil, fmt.Errorf("resolve baseline %s: %w", key.Segment(), err)
	}
	if ok && exact.SampleCount >= e.minSamples {
		return exact, FallbackExact, warnings, nil
	}
	if ok {
		warnings = append(warnings, model.Warning{
			Code:   model.WarnStaleBaseline,
			Detail: fmt.Sprintf("segment %s has %d samples (minimum %d)", key.Segment(), exact.SampleCount, e.minSamples),
		})
	}

	industry, ok, err := e.source.Baseline(ctx, key.IndustryOnly())
	if err != nil {
		return model.Baseline{}, "", nil, fmt.Errorf("resolve industry baseline %s: %w", key.IndustryCode, err)
	}
	if ok && industry.SampleCount >= e.minSamples {
		return industry, FallbackIndustry, warnings, nil
	}

	warnings = append(warnings, model.Warning{
		Code:   model.WarnStaleBaseline,
		Detail: fmt.Sprintf("no mature baseline for %s; using global default", key.Segment()),
	})
	global := model.Baseline{
		Key:    model.BaselineKey{},
		Mean:   DefaultMean,
		StdDev: DefaultStdDev,
	}
	return global, FallbackGlobal, warnings, nil
}
