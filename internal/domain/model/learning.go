package model

import "time"

// WeightSet is a versioned scoring-weight snapshot. Immutable once created;
// the learning loop supersedes it with a new version rather than editing it.
type WeightSet struct {
	Version       string             `json:"version"`
	ParentVersion string             `json:"parent_version,omitempty"`
	Scope         string             `json:"scope"`
	BaseWeight    float64            `json:"base_weight"`
	FlagPenalties map[string]float64 `json:"flag_penalties"`
	MetaPenalties map[string]float64 `json:"meta_penalties"`
	BoostFactors  map[string]float64 `json:"boost_factors"`
	GoodThreshold float64            `json:"good_threshold"`
	BadThreshold  float64            `json:"bad_threshold"`
	Active        bool               `json:"active"`
	Frozen        bool               `json:"frozen"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Clone returns a deep copy suitable for building a successor version.
func (w WeightSet) Clone() WeightSet {
	c := w
	c.FlagPenalties = copyMap(w.FlagPenalties)
	c.MetaPenalties = copyMap(w.MetaPenalties)
	c.BoostFactors = copyMap(w.BoostFactors)
	return c
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// OutcomeRecord is the ground truth supplied by the HR collaborator once a
// hire (or non-hire) has played out.
type OutcomeRecord struct {
	OutcomeID         string    `json:"outcome_id"`
	CandidateID       string    `json:"candidate_id"`
	DecisionID        string    `json:"decision_id"`
	Hired             bool      `json:"hired"`
	Started           bool      `json:"started"`
	Retained30        bool      `json:"retained_30d"`
	Retained90        bool      `json:"retained_90d"`
	PerformanceRating int       `json:"performance_rating"` // 1-5, 0 unknown
	IncidentFlag      bool      `json:"incident_flag"`
	ResolvedAt        time.Time `json:"resolved_at"`
}

// LearningEvent pairs a prediction with its later-known outcome. Append-only.
type LearningEvent struct {
	ID                string        `json:"id"`
	OutcomeID         string        `json:"outcome_id"`
	DecisionID        string        `json:"decision_id"`
	Meta              CandidateMeta `json:"meta"`
	PredictedScore    int           `json:"predicted_score"`
	PredictedDecision Decision      `json:"predicted_decision"`
	ActualScore       int           `json:"actual_score"`
	Error             float64       `json:"error"` // actual - predicted
	FalsePositive     bool          `json:"false_positive"`
	FalseNegative     bool          `json:"false_negative"`
	FlagCodes         []string      `json:"flag_codes,omitempty"`
	WeightVersion     string        `json:"weight_version"`
	MapperVersion     string        `json:"mapper_version"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Pattern types accumulated by the learning loop.
const (
	PatternUnderweightedFlag = "underweighted_flag"
	PatternOverweightedBoost = "overweighted_boost"
)

// LearningPattern aggregates recurring prediction-error signals. The
// occurrence counter is the only mutable field and is bumped through an atomic
// increment-or-insert in the repository.
type LearningPattern struct {
	PatternType     string    `json:"pattern_type"`
	Signal          string    `json:"signal"`
	Industry        string    `json:"industry"`
	OccurrenceCount int64     `json:"occurrence_count"`
	ErrorSum        float64   `json:"error_sum"`
	LastOccurredAt  time.Time `json:"last_occurred_at"`
}

// FairnessSnapshot is one periodic per-group aggregate comparing predictions
// against outcomes. Append-only by report date.
type FairnessSnapshot struct {
	ReportDate    string  `json:"report_date"` // YYYY-MM-DD
	GroupType     string  `json:"group_type"`
	GroupValue    string  `json:"group_value"`
	SampleCount   int64   `json:"sample_count"`
	AvgPredicted  float64 `json:"avg_predicted"`
	AvgActual     float64 `json:"avg_actual"`
	HirePrecision float64 `json:"hire_precision"`
	Divergence    float64 `json:"divergence"`
	HasAlert      bool    `json:"has_alert"`
}
