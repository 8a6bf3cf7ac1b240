// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/hireloop/caliber/internal/domain/model"
)

// LearningDependencies defines the interface for manual learning runs.
type LearningDependencies interface {
	RunWeightUpdate(ctx context.Context) (model.WeightSet, bool, error)
}

// LearningHandler triggers batch weight updates on demand.
type LearningHandler struct {
	deps LearningDependencies
}

// NewLearningHandler creates a new learning handler.
func NewLearningHandler(deps LearningDependencies) *LearningHandler {
	return &LearningHandler{deps: deps}
}

// learningResponse reports the result of a manual weight update run.
type learningResponse struct {
	Published bool   `json:"published"`
	Version   string `json:"version,omitempty"`
	Parent    string `json:"parent_version,omitempty"`
}

// HandleRunLearning handles POST /learning/run requests.
func (h *LearningHandler) HandleRunLearning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ws, published, err := h.deps.RunWeightUpdate(r.Context())
	if err != nil {
		if errors.Is(err, model.ErrVersionConflict) {
			writeError(w, http.StatusConflict, "version_conflict", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	resp := learningResponse{Published: published}
	if published {
		resp.Version = ws.Version
		resp.Parent = ws.ParentVersion
	}
	writeJSON(w, http.StatusOK, resp)
}
