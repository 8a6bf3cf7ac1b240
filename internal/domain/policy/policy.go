package policy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hireloop/caliber/internal/domain/model"
)

// Confidence bounds. Confidence grows with the calibrated score's distance
// from the matched rule's nearest threshold.
const (
	baseConfidence       = 50
	maxConfidence        = 100
	confidencePerPoint   = 2
	autoRejectConfidence = 100
)

// Rule is one row of the decision matrix.
type Rule struct {
	Code      string         `yaml:"code"`
	Priority  int            `yaml:"priority"`
	Decision  model.Decision `yaml:"decision"`
	Label     string         `yaml:"label"`
	Active    bool           `yaml:"active"`
	Condition Condition      `yaml:"condition"`
}

// Matrix is a versioned ordered rule set.
type Matrix struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// Outcome is the result of one matrix evaluation.
type Outcome struct {
	Decision      model.Decision
	RawDecision   model.Decision
	PolicyCode    string
	Reason        string
	ConfidencePct int
	Provenance    string
}

// Engine evaluates the matrix. Rules are sorted once at construction;
// evaluation is read-only and safe for concurrent use.
type Engine struct {
	version string
	rules   []Rule // active rules, ascending priority
}

// NewEngine validates the matrix and prepares it for evaluation.
//
// Load-time invariants (violations are model.ErrConfiguration, not
// per-candidate errors): at least one active rule, every condition valid, and
// a trivially-true catch-all at the lowest priority so evaluation always
// terminates with a decision.
func NewEngine(matrix Matrix) (*Engine, error) {
	var active []Rule
	for _, r := range matrix.Rules {
		if !r.Active {
			continue
		}
		if err := r.Condition.Validate(); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Code, err)
		}
		switch r.Decision {
		case model.DecisionHire, model.DecisionHold, model.DecisionReject:
		default:
			return nil, fmt.Errorf("rule %s: invalid decision %q: %w", r.Code, r.Decision, model.ErrConfiguration)
		}
		active = append(active, r)
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("no active rules in matrix %q: %w", matrix.Version, model.ErrConfiguration)
	}

	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority < active[j].Priority })

	last := active[len(active)-1]
	if last.Condition.Kind != KindAlways {
		return nil, fmt.Errorf("matrix %q has no catch-all default rule: %w", matrix.Version, model.ErrConfiguration)
	}

	return &Engine{version: matrix.Version, rules: active}, nil
}

// Version returns the matrix version the engine was built from.
func (e *Engine) Version() string {
	return e.version
}

// Decide runs the matrix top-to-bottom: the first matching active rule wins
// and later rules are never evaluated. A matched auto-reject flag forces the
// final decision to REJECT regardless of the matched rule; an unexpired
// administrator override takes precedence over everything, but the
// rule-computed value is always retained in RawDecision for audit.
func (e *Engine) Decide(ctx context.Context, in Input, override *model.Override, now time.Time) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("policy evaluation cancelled: %w", err)
	}

	out := Outcome{Decision: model.DecisionPending, Provenance: model.ProvenanceRules}

	for _, r := range e.rules {
		if !r.Condition.Matches(in) {
			continue
		}
		out.RawDecision = r.Decision
		out.Decision = r.Decision
		out.PolicyCode = r.Code
		out.Reason = r.Label
		out.ConfidencePct = confidence(r.Condition, in.CalibratedScore)
		break
	}

	if in.AutoReject {
		out.Decision = model.DecisionReject
		out.Reason = "auto-reject red flag matched"
		out.ConfidencePct = autoRejectConfidence
	}

	if override != nil && !override.Expired(now) {
		out.Decision = override.Decision
		out.Reason = override.Reason
		out.Provenance = model.ProvenanceOverridden
		out.ConfidencePct = maxConfidence
	}

	return out, nil
}

// confidence scales with distance from the nearest score threshold of the
// matched condition; a thresholdless catch-all yields the base confidence.
func confidence(c Condition, score int) int {
	thresholds := c.scoreThresholds()
	if len(thresholds) == 0 {
		return baseConfidence
	}
	nearest := -1
	for _, t := range thresholds {
		d := score - t
		if d < 0 {
			d = -d
		}
		if nearest < 0 || d < nearest {
			nearest = d
		}
	}
	conf := baseConfidence + nearest*confidencePerPoint
	if conf > maxConfidence {
		conf = maxConfidence
	}
	return conf
}
