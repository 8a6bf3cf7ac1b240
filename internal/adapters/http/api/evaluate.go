// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hireloop/caliber/internal/domain/model"
)

// EvaluateDependencies defines the interface for evaluation processing.
type EvaluateDependencies interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest) (model.DecisionSnapshot, bool, error)
}

// EvaluateHandler handles evaluation requests.
type EvaluateHandler struct {
	deps EvaluateDependencies
}

// NewEvaluateHandler creates a new evaluate handler.
func NewEvaluateHandler(deps EvaluateDependencies) *EvaluateHandler {
	return &EvaluateHandler{deps: deps}
}

// evaluateResponse wraps the snapshot with the replay marker.
type evaluateResponse struct {
	Duplicate bool                   `json:"duplicate"`
	Decision  model.DecisionSnapshot `json:"decision"`
}

// HandlePostEvaluate handles POST /evaluate requests.
func (h *EvaluateHandler) HandlePostEvaluate(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_evaluate"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	snap, duplicate, err := h.deps.Evaluate(r.Context(), model.EvaluationRequest{
		RequestID: req.RequestID,
		Meta:      req.Meta,
		Evidence:  req.Evidence,
		Override:  req.Override,
	})
	if err != nil {
		if errors.Is(err, model.ErrConfiguration) {
			writeError(w, http.StatusInternalServerError, "configuration_error", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, evaluateResponse{Duplicate: duplicate, Decision: snap})
}
