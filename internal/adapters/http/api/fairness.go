// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hireloop/caliber/internal/domain/model"
)

// FairnessDependencies defines the interface for fairness report lookups.
type FairnessDependencies interface {
	FairnessReport(ctx context.Context, reportDate string) ([]model.FairnessSnapshot, error)
}

// FairnessHandler serves stored fairness reports.
type FairnessHandler struct {
	deps FairnessDependencies
}

// NewFairnessHandler creates a new fairness handler.
func NewFairnessHandler(deps FairnessDependencies) *FairnessHandler {
	return &FairnessHandler{deps: deps}
}

// fairnessResponse wraps the snapshot list for one report date.
type fairnessResponse struct {
	ReportDate string                   `json:"report_date,omitempty"`
	Groups     []model.FairnessSnapshot `json:"groups"`
}

// HandleGetFairness handles GET /fairness?date=YYYY-MM-DD requests.
// Omitting date returns the most recent report.
func (h *FairnessHandler) HandleGetFairness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid date; must be YYYY-MM-DD"))
			return
		}
	}
	snaps, err := h.deps.FairnessReport(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	resp := fairnessResponse{ReportDate: date, Groups: snaps}
	if len(snaps) > 0 {
		resp.ReportDate = snaps[0].ReportDate
	}
	writeJSON(w, http.StatusOK, resp)
}
