package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mnemos-ai/mnemos/internal/service"
)

type MemoryHandler struct {
	svc *service.MemoryService
}

func NewMemoryHandler(svc *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

func (h *MemoryHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req service.SaveRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Save(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req service.SearchRequest
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

type touchRequest struct {
	BoostStrength bool `json:"boost_strength"`
}

func (h *MemoryHandler) Touch(w http.ResponseWriter, r *http.Request) {
	var req touchRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Touch(chi.URLParam(r, "id"), req.BoostStrength)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type openRequest struct {
	MemoryIDs        []string `json:"memory_ids"`
	IncludeRelations bool     `json:"include_relations"`
	IncludeScores    bool     `json:"include_scores"`
}

func (h *MemoryHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Open(req.MemoryIDs, req.IncludeRelations, req.IncludeScores)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MemoryHandler) GC(w http.ResponseWriter, r *http.Request) {
	var req service.GCRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.GC(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MemoryHandler) Promote(w http.ResponseWriter, r *http.Request) {
	var req service.PromoteRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Promote(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MemoryHandler) Cluster(w http.ResponseWriter, r *http.Request) {
	var req service.ClusterRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Cluster(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MemoryHandler) CreateRelation(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRelationRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.CreateRelation(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *MemoryHandler) ReadGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.ReadGraphRequest{
		Status:        q.Get("status"),
		IncludeScores: q.Get("include_scores") == "true",
	}
	req.Page, _ = strconv.Atoi(q.Get("page"))
	req.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	req.Limit, _ = strconv.Atoi(q.Get("limit"))

	resp, err := h.svc.ReadGraph(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MemoryHandler) StorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.StorageStats()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *MemoryHandler) Compact(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Compact()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
