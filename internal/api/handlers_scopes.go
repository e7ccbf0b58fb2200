package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/engram-labs/engram/internal/memory"
	"github.com/engram-labs/engram/internal/models"
)

type ScopeHandler struct {
	svc *memory.Service
}

func NewScopeHandler(svc *memory.Service) *ScopeHandler {
	return &ScopeHandler{svc: svc}
}

// List handles GET /scopes
func (h *ScopeHandler) List(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.svc.ListScopes(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if scopes == nil {
		scopes = []models.Scope{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scopes": scopes})
}

// Delete handles DELETE /scopes/{scope}: removes the scope and, through
// cascade, all of its records and clusters.
func (h *ScopeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")

	if err := h.svc.DeleteScope(r.Context(), scope); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
