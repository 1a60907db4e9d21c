package handlers

import (
	"net/http"

	"github.com/mnemos-ai/mnemos/internal/agents"
)

type ConsolidateHandler struct {
	scheduler *agents.Scheduler
}

func NewConsolidateHandler(scheduler *agents.Scheduler) *ConsolidateHandler {
	return &ConsolidateHandler{scheduler: scheduler}
}

type consolidateRequest struct {
	Agent  string `json:"agent,omitempty"`
	DryRun bool   `json:"dry_run"`
}

// Run triggers one consolidation pass, either the full fixed-order tick or
// a single named agent.
func (h *ConsolidateHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Agent != "" {
		report, err := h.scheduler.RunAgent(r.Context(), req.Agent, req.DryRun)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []*agents.Report{report})
		return
	}

	reports, err := h.scheduler.Tick(r.Context(), req.DryRun)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

type postSaveRequest struct {
	MemoryID string `json:"memory_id"`
	DryRun   bool   `json:"dry_run"`
}

func (h *ConsolidateHandler) PostSaveCheck(w http.ResponseWriter, r *http.Request) {
	var req postSaveRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.scheduler.PostSaveCheck(req.MemoryID, req.DryRun)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
