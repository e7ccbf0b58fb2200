package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/engram-labs/engram/internal/cluster"
	"github.com/engram-labs/engram/internal/memory"
	"github.com/engram-labs/engram/internal/models"
)

type RecordHandler struct {
	svc       *memory.Service
	scheduler *cluster.Scheduler
}

func NewRecordHandler(svc *memory.Service, scheduler *cluster.Scheduler) *RecordHandler {
	return &RecordHandler{svc: svc, scheduler: scheduler}
}

// trigger queues a background re-cluster for a scope after a write; a nil
// scheduler disables background clustering.
func (h *RecordHandler) trigger(scopeID string) {
	if h.scheduler != nil {
		h.scheduler.Trigger(scopeID)
	}
}

// Store handles POST /records
func (h *RecordHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req models.StoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Scope == "" {
		writeError(w, http.StatusBadRequest, "scope is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if !req.ContentType.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid contentType")
		return
	}

	resp, err := h.svc.Store(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Deduplicated || resp.Skipped {
		status = http.StatusOK
	}
	if !resp.Skipped && !resp.Deduplicated {
		h.trigger(req.Scope)
	}
	writeJSON(w, status, resp)
}

// List handles GET /records/{scope}
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")

	var types []models.ContentType
	if t := r.URL.Query().Get("type"); t != "" {
		for _, part := range strings.Split(t, ",") {
			types = append(types, models.ContentType(part))
		}
	}

	records, err := h.svc.List(r.Context(), scope, types...)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []*models.MemoryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// Get handles GET /records/{scope}/{hash}
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	hash := chi.URLParam(r, "hash")

	rec, err := h.svc.Get(r.Context(), scope, hash)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Update handles PATCH /records/{scope}/{hash}
func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	hash := chi.URLParam(r, "hash")

	var req models.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	newHash, err := h.svc.Update(r.Context(), scope, hash, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.trigger(scope)
	writeJSON(w, http.StatusOK, map[string]string{"hash": newHash})
}

// Delete handles DELETE /records/{scope}/{hash}
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	hash := chi.URLParam(r, "hash")

	if err := h.svc.Delete(r.Context(), scope, hash); err != nil {
		writeServiceError(w, err)
		return
	}

	h.trigger(scope)
	w.WriteHeader(http.StatusNoContent)
}
