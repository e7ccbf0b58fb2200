package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/engram-labs/engram/internal/cluster"
	"github.com/engram-labs/engram/internal/models"
)

type ClusterHandler struct {
	engine *cluster.Engine
}

func NewClusterHandler(engine *cluster.Engine) *ClusterHandler {
	return &ClusterHandler{engine: engine}
}

// Rebuild handles POST /clusters/{scope}: a synchronous clustering run. An
// empty body uses the default K range.
func (h *ClusterHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")

	var req models.ClusterRequest
	if err := decodeJSON(r, &req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	clusters, err := h.engine.Cluster(r.Context(), scope, cluster.Options{
		MinK:                 req.MinK,
		MaxK:                 req.MaxK,
		MaxIterations:        req.MaxIterations,
		ConvergenceThreshold: req.ConvergenceThreshold,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ClusterResponse{
		Clusters: clusters,
		K:        len(clusters),
	})
}

// List handles GET /clusters/{scope}: the persisted cluster set from the
// most recent completed run.
func (h *ClusterHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")

	clusters, err := h.engine.List(r.Context(), scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if clusters == nil {
		clusters = []models.Cluster{}
	}

	writeJSON(w, http.StatusOK, models.ClusterResponse{
		Clusters: clusters,
		K:        len(clusters),
	})
}
