// Package model contains domain models passed between layers.
package model

import "strings"

// CandidateMeta identifies the candidate and the segment their scores are
// calibrated against. Supplied by the intake collaborator.
type CandidateMeta struct {
	CandidateID   string `json:"candidate_id"`
	PositionCode  string `json:"position_code"`
	IndustryCode  string `json:"industry_code"`
	Language      string `json:"language"`
	SourceChannel string `json:"source_channel"`
	CountryCode   string `json:"country_code"`
}

// AnswerEvidence is the raw material for one question slot. Immutable once
// recorded; the scorer and red-flag detector read it, nothing writes it back.
type AnswerEvidence struct {
	QuestionID    string  `json:"question_id"`
	Competency    string  `json:"competency"`
	Text          string  `json:"text"`
	AnswerSeconds float64 `json:"answer_seconds"`
	WordCount     int     `json:"word_count"`
}

// Words returns the recorded word count, deriving it from the text when the
// intake did not supply one.
func (a AnswerEvidence) Words() int {
	if a.WordCount > 0 {
		return a.WordCount
	}
	return len(strings.Fields(a.Text))
}

// EvaluationRequest bundles the inputs for one candidate evaluation.
// RequestID is the idempotency key; replays return the original decision.
type EvaluationRequest struct {
	RequestID string           `json:"request_id,omitempty"`
	Meta      CandidateMeta    `json:"meta"`
	Evidence  []AnswerEvidence `json:"evidence"`
	Override  *Override        `json:"override,omitempty"`
}

// CompetencyScore holds one scored competency with the evidence that produced it.
type CompetencyScore struct {
	Competency string   `json:"competency"`
	Score      int      `json:"score"`    // 0-100
	Evidence   []string `json:"evidence"` // question IDs consumed
}

// CompetencyScoreSet is the scorer output for one completed interview.
// Created once, never mutated; re-runs produce a new set.
type CompetencyScoreSet struct {
	RubricVersion string                     `json:"rubric_version"`
	Scores        map[string]CompetencyScore `json:"scores"`
	Warnings      []Warning                  `json:"warnings,omitempty"`
}

// Warning is a recoverable per-candidate condition surfaced on the decision
// snapshot instead of being raised as an error.
type Warning struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Warning codes attached to score sets and decision snapshots.
const (
	WarnInsufficientEvidence = "insufficient_evidence"
	WarnStaleBaseline        = "stale_baseline"
	WarnUnknownMethod        = "unknown_detection_method"
)
