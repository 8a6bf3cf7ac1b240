// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/hireloop/caliber/internal/domain/model"
)

// DecisionDependencies defines the interface for decision lookups.
type DecisionDependencies interface {
	GetDecision(ctx context.Context, id string) (model.DecisionSnapshot, bool, error)
}

// DecisionsHandler handles decision lookups.
type DecisionsHandler struct {
	deps DecisionDependencies
}

// NewDecisionsHandler creates a new decisions handler.
func NewDecisionsHandler(deps DecisionDependencies) *DecisionsHandler {
	return &DecisionsHandler{deps: deps}
}

// HandleGetDecision handles GET /decisions/{id} requests.
func (h *DecisionsHandler) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /decisions/
	id := strings.TrimPrefix(r.URL.Path, "/decisions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	snap, ok, err := h.deps.GetDecision(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
