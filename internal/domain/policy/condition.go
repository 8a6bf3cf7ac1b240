// Package policy evaluates an ordered decision-rule matrix against a
// calibrated score and red-flag set.
package policy

import (
	"fmt"

	"github.com/hireloop/caliber/internal/domain/model"
)

// Condition kinds. Rules are data-driven; the condition tree is a small
// tagged-variant interpreter, no dynamic dispatch.
const (
	KindAlways       = "always"
	KindScoreGTE     = "score_gte"
	KindScoreLTE     = "score_lte"
	KindFlagCountGTE = "flag_count_gte"
	KindAutoReject   = "auto_reject"
	KindAllOf        = "all_of"
	KindAnyOf        = "any_of"
)

// Input is the evaluation context a condition tests against.
type Input struct {
	CalibratedScore int
	Flags           []model.RedFlagInstance
	AutoReject      bool
}

// Condition is one node of a rule's condition tree.
type Condition struct {
	Kind string `yaml:"kind"`

	// Value is the score threshold for score_gte / score_lte.
	Value int `yaml:"value,omitempty"`

	// Count and Severity apply to flag_count_gte. Empty severity counts all flags.
	Count    int            `yaml:"count,omitempty"`
	Severity model.Severity `yaml:"severity,omitempty"`

	Children []Condition `yaml:"children,omitempty"`

	// Negate inverts the node's result, e.g. flag_count_gte with count 1 and
	// negate expresses "no flags present".
	Negate bool `yaml:"negate,omitempty"`
}

// Validate rejects unknown kinds and malformed combinators at load time so
// evaluation never encounters them.
func (c Condition) Validate() error {
	switch c.Kind {
	case KindAlways:
		if c.Negate {
			return fmt.Errorf("condition always cannot be negated: %w", model.ErrConfiguration)
		}
		return nil
	case KindAutoReject:
		return nil
	case KindScoreGTE, KindScoreLTE:
		if c.Value < 0 || c.Value > 100 {
			return fmt.Errorf("condition %s: value %d out of range: %w", c.Kind, c.Value, model.ErrConfiguration)
		}
		return nil
	case KindFlagCountGTE:
		if c.Count < 1 {
			return fmt.Errorf("condition %s: count must be >= 1: %w", c.Kind, model.ErrConfiguration)
		}
		return nil
	case KindAllOf, KindAnyOf:
		if len(c.Children) == 0 {
			return fmt.Errorf("condition %s: no children: %w", c.Kind, model.ErrConfiguration)
		}
		for _, child := range c.Children {
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown condition kind %q: %w", c.Kind, model.ErrConfiguration)
	}
}

// Matches interprets the condition against the input.
func (c Condition) Matches(in Input) bool {
	m := c.matches(in)
	if c.Negate {
		return !m
	}
	return m
}

func (c Condition) matches(in Input) bool {
	switch c.Kind {
	case KindAlways:
		return true
	case KindScoreGTE:
		return in.CalibratedScore >= c.Value
	case KindScoreLTE:
		return in.CalibratedScore <= c.Value
	case KindFlagCountGTE:
		return flagCount(in.Flags, c.Severity) >= c.Count
	case KindAutoReject:
		return in.AutoReject
	case KindAllOf:
		for _, child := range c.Children {
			if !child.Matches(in) {
				return false
			}
		}
		return true
	case KindAnyOf:
		for _, child := range c.Children {
			if child.Matches(in) {
				return true
			}
		}
		return false
	default:
		// Unknown kinds are rejected at load; treat defensively as no-match.
		return false
	}
}

func flagCount(flags []model.RedFlagInstance, severity model.Severity) int {
	if severity == "" {
		return len(flags)
	}
	n := 0
	for _, f := range flags {
		if f.Severity == severity {
			n++
		}
	}
	return n
}

// scoreThresholds collects every score threshold in the tree. Used for the
// confidence heuristic: distance from the nearest matched threshold.
func (c Condition) scoreThresholds() []int {
	var out []int
	switch c.Kind {
	case KindScoreGTE, KindScoreLTE:
		out = append(out, c.Value)
	case KindAllOf, KindAnyOf:
		for _, child := range c.Children {
			out = append(out, child.scoreThresholds()...)
		}
	}
	return out
}
