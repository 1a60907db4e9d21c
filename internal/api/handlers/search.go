package handlers

import (
	"net/http"

	"github.com/mnemos-ai/mnemos/internal/service"
)

type SearchHandler struct {
	svc *service.UnifiedSearch
}

func NewSearchHandler(svc *service.UnifiedSearch) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Unified runs the combined short-term plus vault search.
func (h *SearchHandler) Unified(w http.ResponseWriter, r *http.Request) {
	var req service.UnifiedRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Search(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
