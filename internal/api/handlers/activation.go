package handlers

import (
	"net/http"

	"github.com/mnemos-ai/mnemos/internal/service"
)

type ActivationHandler struct {
	svc *service.ActivationService
}

func NewActivationHandler(svc *service.ActivationService) *ActivationHandler {
	return &ActivationHandler{svc: svc}
}

type activateRequest struct {
	Message          string   `json:"message"`
	SessionID        string   `json:"session_id,omitempty"`
	MaxMemories      int      `json:"max_memories,omitempty"`
	Threshold        *float64 `json:"threshold,omitempty"`
	EnableSpreading  *bool    `json:"enable_spreading,omitempty"`
	AlreadyActivated []string `json:"already_activated,omitempty"`
}

func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.MaxMemories < 0 || req.MaxMemories > 100 {
		writeError(w, http.StatusBadRequest, "max_memories must be in [1,100]")
		return
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		writeError(w, http.StatusBadRequest, "threshold must be in [0,1]")
		return
	}

	actx := h.svc.NewContext(req.Message, req.SessionID)
	if req.MaxMemories > 0 {
		actx.MaxMemories = req.MaxMemories
	}
	if req.Threshold != nil {
		actx.ActivationThreshold = *req.Threshold
	}
	if req.EnableSpreading != nil {
		actx.EnableSpreading = *req.EnableSpreading
	}
	for _, id := range req.AlreadyActivated {
		actx.AlreadyActivated[id] = true
	}

	writeJSON(w, http.StatusOK, h.svc.Activate(r.Context(), actx))
}

func (h *ActivationHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	h.svc.RebuildIndex()
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}
