package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/search"
)

type SearchHandler struct {
	engine *search.Engine
}

func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

func searchOptions(req *models.SearchRequest) search.Options {
	return search.Options{
		ContentTypes:   req.ContentTypes,
		Threshold:      req.Threshold,
		Limit:          req.Limit,
		IncludeContent: req.IncludeContent,
	}
}

// Search handles POST /search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Scope == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "scope and query are required")
		return
	}

	start := time.Now()
	strategy := "vector"
	results, err := h.engine.Search(r.Context(), req.Scope, req.Query, searchOptions(&req))

	// An unreachable provider can degrade to keyword search when the
	// caller opted in.
	if err != nil && req.Fallback == "keyword" && errors.Is(err, models.ErrEmbedding) {
		strategy = "keyword"
		includeContent := req.IncludeContent == nil || *req.IncludeContent
		results, err = h.engine.KeywordFallback(r.Context(), req.Scope, req.Query, req.Limit, includeContent)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	writeJSON(w, http.StatusOK, models.SearchResponse{
		Results: results,
		Meta: models.SearchMeta{
			Candidates:   len(results),
			SearchTimeMs: int(time.Since(start).Milliseconds()),
			Strategy:     strategy,
		},
	})
}

// Similar handles POST /search/similar: ranked search with a diversity
// filter that drops near-duplicate results.
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Scope == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "scope and query are required")
		return
	}

	start := time.Now()
	results, err := h.engine.FindSimilar(r.Context(), req.Scope, req.Query, searchOptions(&req), req.Diversity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	writeJSON(w, http.StatusOK, models.SearchResponse{
		Results: results,
		Meta: models.SearchMeta{
			Candidates:   len(results),
			SearchTimeMs: int(time.Since(start).Milliseconds()),
			Strategy:     "vector-diverse",
		},
	})
}

// Batch handles POST /search/batch: independent queries, one result set per
// query in request order.
func (h *SearchHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Scope == "" {
		writeError(w, http.StatusBadRequest, "scope is required")
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "queries array is required")
		return
	}

	results, err := h.engine.BatchSearch(r.Context(), req.Scope, req.Queries, searchOptions(&req.SearchRequest))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.BatchSearchResponse{Results: results})
}
