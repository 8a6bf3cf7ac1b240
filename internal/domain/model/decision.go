package model

import "time"

// Decision is the terminal verdict for a candidate. PENDING only exists while
// a rule matrix is being evaluated and never leaves the policy engine.
type Decision string

const (
	DecisionHire    Decision = "HIRE"
	DecisionHold    Decision = "HOLD"
	DecisionReject  Decision = "REJECT"
	DecisionPending Decision = "PENDING"
)

// Provenance values recorded on a decision snapshot.
const (
	ProvenanceRules      = "rules"
	ProvenanceOverridden = "overridden"
)

// Severity of a red flag.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// RedFlagInstance is one evaluated match of a red-flag definition against a
// specific interview. Created during detection, never mutated.
type RedFlagInstance struct {
	Code             string   `json:"code"`
	Severity         Severity `json:"severity"`
	Evidence         string   `json:"evidence"`
	ScoreImpact      float64  `json:"score_impact"`
	CausesAutoReject bool     `json:"causes_auto_reject"`
	MaxScoreOverride int      `json:"max_score_override"` // < 0 means no cap
}

// Override is an administrator-supplied decision that takes precedence over
// rule evaluation. The rule-computed value is retained for audit.
type Override struct {
	Decision  Decision  `json:"decision"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the override has lapsed at the given instant.
// A zero ExpiresAt never expires.
func (o Override) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

// DecisionSnapshot is the self-contained output of one evaluation. Report and
// notification collaborators consume it verbatim; it must be reproducible from
// the versioned inputs it references.
type DecisionSnapshot struct {
	ID          string        `json:"id"`
	CandidateID string        `json:"candidate_id"`
	Meta        CandidateMeta `json:"meta"`

	CompetencyScores map[string]int `json:"competency_scores"`
	RawScore         float64        `json:"raw_score"`
	ZScore           float64        `json:"z_score"`
	CalibratedScore  int            `json:"calibrated_score"`

	Decision       Decision `json:"decision"`
	RawDecision    Decision `json:"raw_decision"`
	DecisionReason string   `json:"decision_reason"`
	PolicyCode     string   `json:"policy_code"`
	ConfidencePct  int      `json:"confidence_pct"`
	Provenance     string   `json:"provenance"`

	RiskFlags []RedFlagInstance `json:"risk_flags"`
	Warnings  []Warning         `json:"warnings,omitempty"`

	BaselineSegment string    `json:"baseline_segment"`
	BaselineVersion int64     `json:"baseline_version"`
	RubricVersion   string    `json:"rubric_version"`
	WeightVersion   string    `json:"weight_version_used"`
	CreatedAt       time.Time `json:"created_at"`
}
