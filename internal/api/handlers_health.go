package api

import (
	"net/http"

	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
)

type HealthHandler struct {
	db       *store.DB
	provider embedding.Provider
}

func NewHealthHandler(db *store.DB, provider embedding.Provider) *HealthHandler {
	return &HealthHandler{db: db, provider: provider}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status: "ok",
	}

	if err := h.provider.HealthCheck(r.Context()); err != nil {
		resp.Provider = models.ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Provider = models.ServiceCheck{Status: "ok"}
	}

	count, err := h.db.RecordCount()
	if err != nil {
		resp.DB = models.ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.DB = models.ServiceCheck{Status: "ok"}
		resp.RecordCount = count
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
