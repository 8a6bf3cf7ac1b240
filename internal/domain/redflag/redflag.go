// Package redflag evaluates interview evidence against a catalog of red-flag
// definitions, producing severity-weighted flag instances.
package redflag

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hireloop/caliber/internal/domain/model"
	"github.com/hireloop/caliber/pkg/logger"
)

// Detection methods understood by the detector. Anything else is skipped with
// a warning; flags are advisory and a single bad rule must not block a decision.
const (
	MethodPhrase    = "phrase"
	MethodThreshold = "threshold"
)

// Signals a threshold definition can test.
const (
	SignalAnswerSeconds = "answer_seconds"
	SignalWordCount     = "word_count"
)

// NoCap marks the absence of a max-score override on a result.
const NoCap = -1

const evidenceSnippetLen = 120

// Definition is one red-flag rule from the admin-managed catalog.
// Read-only at evaluation time.
type Definition struct {
	Code     string         `yaml:"code"`
	Severity model.Severity `yaml:"severity"`
	Method   string         `yaml:"method"`

	// Phrase method: any pattern appearing in evidence text triggers the flag.
	Patterns []string `yaml:"patterns"`

	// Threshold method: Signal Operator Threshold, e.g. answer_seconds lt 5.
	Signal    string  `yaml:"signal"`
	Operator  string  `yaml:"operator"` // "lt" or "gt"
	Threshold float64 `yaml:"threshold"`

	ScoreImpact      float64 `yaml:"score_impact"` // negative values lower the raw score
	CausesAutoReject bool    `yaml:"causes_auto_reject"`
	MaxScoreOverride int     `yaml:"max_score_override"` // < 0 means no cap
}

// UnmarshalYAML defaults MaxScoreOverride to NoCap so a catalog that omits the
// field does not read as a hard cap of zero.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	type plain Definition
	tmp := plain{MaxScoreOverride: NoCap}
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	*d = Definition(tmp)
	return nil
}

// Catalog is a versioned, ordered set of definitions.
type Catalog struct {
	Version     string       `yaml:"version"`
	Definitions []Definition `yaml:"definitions"`
}

// Result aggregates all flag matches for one interview.
type Result struct {
	Flags            []model.RedFlagInstance
	ScoreImpactTotal float64
	AutoReject       bool
	MaxScoreCap      int // NoCap when no matched definition carries an override
	Warnings         []model.Warning
}

// Detector evaluates evidence against a red-flag catalog.
type Detector interface {
	Detect(ctx context.Context, evidence []model.AnswerEvidence) Result
}

// Option applies a configuration option to the CatalogDetector.
type Option func(*CatalogDetector)

// WithLogger sets a custom logger for the detector.
func WithLogger(l logger.Logger) Option {
	return func(d *CatalogDetector) {
		if l != nil {
			d.logger = l
		}
	}
}

// CatalogDetector implements Detector over a fixed catalog version.
// Safe for concurrent use; the catalog is never mutated after construction.
type CatalogDetector struct {
	catalog Catalog
	logger  logger.Logger
}

// NewCatalogDetector creates a detector bound to one catalog version.
func NewCatalogDetector(catalog Catalog, opts ...Option) *CatalogDetector {
	d := &CatalogDetector{catalog: catalog}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Detect tests every definition against the evidence. A definition matches at
// most once regardless of how many answers trigger it (no double penalty).
func (d *CatalogDetector) Detect(ctx context.Context, evidence []model.AnswerEvidence) Result {
	res := Result{MaxScoreCap: NoCap}

	for _, def := range d.catalog.Definitions {
		var matched bool
		var snippet string

		switch def.Method {
		case MethodPhrase:
			matched, snippet = matchPhrase(def, evidence)
		case MethodThreshold:
			matched, snippet = matchThreshold(def, evidence)
		default:
			if d.logger != nil {
				d.logger.Warn(ctx, "skipping red-flag definition with unknown method",
					logger.String("code", def.Code),
					logger.String("method", def.Method),
				)
			}
			res.Warnings = append(res.Warnings, model.Warning{
				Code:   model.WarnUnknownMethod,
				Detail: fmt.Sprintf("definition %s uses unknown method %q", def.Code, def.Method),
			})
			continue
		}
		if !matched {
			continue
		}

		res.Flags = append(res.Flags, model.RedFlagInstance{
			Code:             def.Code,
			Severity:         def.Severity,
			Evidence:         snippet,
			ScoreImpact:      def.ScoreImpact,
			CausesAutoReject: def.CausesAutoReject,
			MaxScoreOverride: def.MaxScoreOverride,
		})
		res.ScoreImpactTotal += def.ScoreImpact
		if def.CausesAutoReject {
			res.AutoReject = true
		}
		if def.MaxScoreOverride >= 0 && (res.MaxScoreCap == NoCap || def.MaxScoreOverride < res.MaxScoreCap) {
			res.MaxScoreCap = def.MaxScoreOverride
		}
	}

	return res
}

// matchPhrase returns the first evidence snippet containing any trigger pattern.
func matchPhrase(def Definition, evidence []model.AnswerEvidence) (bool, string) {
	for _, ev := range evidence {
		text := strings.ToLower(ev.Text)
		for _, p := range def.Patterns {
			if p == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(p)) {
				return true, snippetAround(ev.Text, p)
			}
		}
	}
	return false, ""
}

// matchThreshold tests the configured numeric signal on each answer.
func matchThreshold(def Definition, evidence []model.AnswerEvidence) (bool, string) {
	for _, ev := range evidence {
		var value float64
		switch def.Signal {
		case SignalAnswerSeconds:
			value = ev.AnswerSeconds
		case SignalWordCount:
			value = float64(ev.Words())
		default:
			continue
		}

		var hit bool
		switch def.Operator {
		case "lt":
			hit = value < def.Threshold
		case "gt":
			hit = value > def.Threshold
		}
		if hit {
			return true, fmt.Sprintf("%s %s=%.1f (threshold %.1f)", ev.QuestionID, def.Signal, value, def.Threshold)
		}
	}
	return false, ""
}

// snippetAround trims the matched answer to a short evidence excerpt centered
// on the first occurrence of the pattern.
func snippetAround(text, pattern string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(pattern))
	if idx < 0 {
		idx = 0
	}
	start := idx - evidenceSnippetLen/2
	if start < 0 {
		start = 0
	}
	end := start + evidenceSnippetLen
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}
