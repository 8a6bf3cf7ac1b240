// Package scoring maps answer evidence and a competency rubric into a
// per-competency score set.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hireloop/caliber/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultPenaltyScore = 20 // score assigned when a slot has no usable evidence
	levelStep           = 20 // rubric levels 1-5 scale to 20-100
	maxLevel            = 5
	substantiveWords    = 30 // evidence shorter than this stays at the base level
	detailedWords       = 80
)

// Markers that indicate a concrete, outcome-oriented answer. Presence of any
// marker bumps the specificity level by one.
var defaultOutcomeMarkers = []string{
	"result", "increase", "decrease", "reduced", "improved", "delivered",
	"launched", "saved", "grew", "percent", "%",
}

// CompetencyRubric describes how one competency is scored.
type CompetencyRubric struct {
	Code     string  `yaml:"code"`
	Weight   float64 `yaml:"weight"`
	Required bool    `yaml:"required"`
	// Levels holds the per-level descriptors for scores 1-5. They document the
	// scale for reviewers; the scorer derives the level from evidence signals.
	Levels []string `yaml:"levels"`
	// Keywords strengthen level detection for this competency specifically.
	Keywords []string `yaml:"keywords"`
}

// Rubric is a versioned set of competency rubrics.
type Rubric struct {
	Version      string                      `yaml:"version"`
	Competencies map[string]CompetencyRubric `yaml:"competencies"`
}

// Composite collapses a score set into the raw composite score: the
// rubric-weight-weighted mean of the per-competency scores.
func (r Rubric) Composite(set model.CompetencyScoreSet) float64 {
	var sum, weightSum float64
	for code, cr := range r.Competencies {
		s, ok := set.Scores[code]
		if !ok {
			continue
		}
		w := cr.Weight
		if w <= 0 {
			w = 1
		}
		sum += float64(s.Score) * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

// Scorer computes a competency score set from evidence.
type Scorer interface {
	// Score evaluates the ordered evidence list against the rubric. Every
	// competency the rubric defines gets exactly one score; slots without
	// usable evidence receive the penalty score and a warning.
	Score(ctx context.Context, evidence []model.AnswerEvidence) (model.CompetencyScoreSet, error)
}

// Option applies a configuration option to the RubricScorer.
type Option func(*RubricScorer)

// WithPenaltyScore sets the score assigned to slots with missing evidence.
func WithPenaltyScore(score int) Option {
	return func(s *RubricScorer) {
		if score >= 0 && score <= 100 {
			s.penaltyScore = score
		}
	}
}

// WithOutcomeMarkers replaces the default specificity marker list.
func WithOutcomeMarkers(markers []string) Option {
	return func(s *RubricScorer) {
		if len(markers) > 0 {
			s.markers = markers
		}
	}
}

// RubricScorer implements Scorer for a single resolved rubric version.
// It is a pure function of its inputs; safe for concurrent use.
type RubricScorer struct {
	rubric       Rubric
	penaltyScore int
	markers      []string
}

// NewRubricScorer creates a scorer bound to one rubric version.
// Fails with model.ErrConfiguration when the rubric has no competencies.
func NewRubricScorer(rubric Rubric, opts ...Option) (*RubricScorer, error) {
	if len(rubric.Competencies) == 0 {
		return nil, fmt.Errorf("rubric %q has no competencies: %w", rubric.Version, model.ErrConfiguration)
	}
	s := &RubricScorer{
		rubric:       rubric,
		penaltyScore: defaultPenaltyScore,
		markers:      defaultOutcomeMarkers,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Score evaluates the evidence list against the rubric.
func (s *RubricScorer) Score(ctx context.Context, evidence []model.AnswerEvidence) (model.CompetencyScoreSet, error) {
	if err := ctx.Err(); err != nil {
		return model.CompetencyScoreSet{}, fmt.Errorf("scoring cancelled: %w", err)
	}

	byCompetency := make(map[string][]model.AnswerEvidence)
	for _, ev := range evidence {
		byCompetency[ev.Competency] = append(byCompetency[ev.Competency], ev)
	}

	set := model.CompetencyScoreSet{
		RubricVersion: s.rubric.Version,
		Scores:        make(map[string]model.CompetencyScore, len(s.rubric.Competencies)),
	}

	// Iterate in a stable order so warnings come out deterministically.
	codes := make([]string, 0, len(s.rubric.Competencies))
	for code := range s.rubric.Competencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		cr := s.rubric.Competencies[code]
		evs := usable(byCompetency[code])
		if len(evs) == 0 {
			set.Scores[code] = model.CompetencyScore{Competency: code, Score: s.penaltyScore}
			set.Warnings = append(set.Warnings, model.Warning{
				Code:   model.WarnInsufficientEvidence,
				Detail: fmt.Sprintf("no usable evidence for competency %s", code),
			})
			continue
		}

		var total float64
		refs := make([]string, 0, len(evs))
		for _, ev := range evs {
			total += float64(s.level(ev, cr) * levelStep)
			refs = append(refs, ev.QuestionID)
		}
		score := int(math.Round(total / float64(len(evs))))
		set.Scores[code] = model.CompetencyScore{Competency: code, Score: score, Evidence: refs}
	}

	return set, nil
}

// usable drops evidence with empty answer text.
func usable(evs []model.AnswerEvidence) []model.AnswerEvidence {
	var out []model.AnswerEvidence
	for _, ev := range evs {
		if strings.TrimSpace(ev.Text) != "" {
			out = append(out, ev)
		}
	}
	return out
}

// level derives a rubric level (1-5) from evidence signals: answer length,
// specificity markers, and competency keywords.
func (s *RubricScorer) level(ev model.AnswerEvidence, cr CompetencyRubric) int {
	level := 1
	words := ev.Words()
	if words >= substantiveWords {
		level++
	}
	if words >= detailedWords {
		level++
	}
	text := strings.ToLower(ev.Text)
	if containsAny(text, s.markers) || strings.ContainsAny(text, "0123456789") {
		level++
	}
	if containsAny(text, cr.Keywords) {
		level++
	}
	if level > maxLevel {
		level = maxLevel
	}
	return level
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
