// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hireloop/caliber/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Evaluate runs the synchronous scoring pipeline. The bool reports a
	// replayed request ID served from the stored snapshot.
	Evaluate(ctx context.Context, req model.EvaluationRequest) (model.DecisionSnapshot, bool, error)

	// SubmitOutcome enqueues an outcome for async learning.
	// Returns (accepted, duplicate); accepted=false means backpressure.
	SubmitOutcome(ctx context.Context, rec model.OutcomeRecord) (bool, bool)

	// GetDecision returns a stored decision snapshot by ID.
	GetDecision(ctx context.Context, id string) (model.DecisionSnapshot, bool, error)

	// RunWeightUpdate triggers one batch weight update immediately.
	RunWeightUpdate(ctx context.Context) (model.WeightSet, bool, error)

	// FairnessReport returns stored snapshots; empty date selects the latest.
	FairnessReport(ctx context.Context, reportDate string) ([]model.FairnessSnapshot, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	evaluateHandler  *EvaluateHandler
	outcomesHandler  *OutcomesHandler
	decisionsHandler *DecisionsHandler
	learningHandler  *LearningHandler
	fairnessHandler  *FairnessHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		evaluateHandler:  NewEvaluateHandler(deps),
		outcomesHandler:  NewOutcomesHandler(deps),
		decisionsHandler: NewDecisionsHandler(deps),
		learningHandler:  NewLearningHandler(deps),
		fairnessHandler:  NewFairnessHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/evaluate", MetricsMiddleware(s.evaluateHandler.HandlePostEvaluate, "evaluate"))
	mux.HandleFunc("/outcomes", MetricsMiddleware(s.outcomesHandler.HandlePostOutcome, "outcomes"))
	mux.HandleFunc("/decisions/", MetricsMiddleware(s.decisionsHandler.HandleGetDecision, "decisions"))
	mux.HandleFunc("/learning/run", MetricsMiddleware(s.learningHandler.HandleRunLearning, "learning_run"))
	mux.HandleFunc("/fairness", MetricsMiddleware(s.fairnessHandler.HandleGetFairness, "fairness"))
}

// evaluateRequest mirrors the wire schema for POST /evaluate.
type evaluateRequest struct {
	RequestID string                 `json:"request_id"`
	Meta      model.CandidateMeta    `json:"meta"`
	Evidence  []model.AnswerEvidence `json:"evidence"`
	Override  *model.Override        `json:"override"`
}

func (e evaluateRequest) validate() error {
	switch {
	case strings.TrimSpace(e.Meta.CandidateID) == "":
		return errors.New("missing meta.candidate_id")
	case len(e.Evidence) == 0:
		return errors.New("missing evidence")
	}
	if e.Override != nil {
		switch e.Override.Decision {
		case model.DecisionHire, model.DecisionHold, model.DecisionReject:
		default:
			return errors.New("invalid override.decision")
		}
		if strings.TrimSpace(e.Override.Reason) == "" {
			return errors.New("missing override.reason")
		}
	}
	return nil
}

// outcomeRequest mirrors the wire schema for POST /outcomes.
type outcomeRequest struct {
	OutcomeID         string `json:"outcome_id"`
	CandidateID       string `json:"candidate_id"`
	DecisionID        string `json:"decision_id"`
	Hired             bool   `json:"hired"`
	Started           bool   `json:"started"`
	Retained30        bool   `json:"retained_30d"`
	Retained90        bool   `json:"retained_90d"`
	PerformanceRating int    `json:"performance_rating"`
	IncidentFlag      bool   `json:"incident_flag"`
	ResolvedAt        string `json:"resolved_at"`
}

func (o outcomeRequest) validate() error {
	switch {
	case strings.TrimSpace(o.OutcomeID) == "":
		return errors.New("missing outcome_id")
	case strings.TrimSpace(o.CandidateID) == "" && strings.TrimSpace(o.DecisionID) == "":
		return errors.New("missing candidate_id or decision_id")
	}
	if o.PerformanceRating < 0 || o.PerformanceRating > 5 {
		return errors.New("performance_rating must be 0-5")
	}
	if o.ResolvedAt != "" {
		if _, err := time.Parse(time.RFC3339, o.ResolvedAt); err != nil {
			return errors.New("invalid resolved_at; must be RFC3339")
		}
	}
	return nil
}

func (o outcomeRequest) record() model.OutcomeRecord {
	resolved := time.Now().UTC()
	if o.ResolvedAt != "" {
		if t, err := time.Parse(time.RFC3339, o.ResolvedAt); err == nil {
			resolved = t
		}
	}
	return model.OutcomeRecord{
		OutcomeID:         o.OutcomeID,
		CandidateID:       o.CandidateID,
		DecisionID:        o.DecisionID,
		Hired:             o.Hired,
		Started:           o.Started,
		Retained30:        o.Retained30,
		Retained90:        o.Retained90,
		PerformanceRating: o.PerformanceRating,
		IncidentFlag:      o.IncidentFlag,
		ResolvedAt:        resolved,
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
