// Package search ranks stored vectors against a query embedding. One linear
// pass per query, partial top-k selection, never a full corpus sort.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vector"
)

const (
	// DefaultLimit is the result cap applied when a query doesn't set one.
	DefaultLimit = 10
	// DefaultDiversity is the near-duplicate cutoff for the
	// diversity-filtered variant.
	DefaultDiversity = 0.92
)

// Engine executes similarity searches over a scope's records.
type Engine struct {
	records  *store.RecordStore
	keywords *store.KeywordStore
	embedder embedding.Embedder

	defaultThreshold float64
	budget           time.Duration
	logger           *slog.Logger
}

func NewEngine(
	records *store.RecordStore,
	keywords *store.KeywordStore,
	embedder embedding.Embedder,
	defaultThreshold float64,
	budget time.Duration,
	logger *slog.Logger,
) *Engine {
	if defaultThreshold == 0 {
		defaultThreshold = models.DefaultThreshold
	}
	if budget <= 0 {
		budget = 50 * time.Millisecond
	}
	return &Engine{
		records:          records,
		keywords:         keywords,
		embedder:         embedder,
		defaultThreshold: defaultThreshold,
		budget:           budget,
		logger:           logger,
	}
}

// Options tunes a single search call. Zero values fall back to engine
// defaults; IncludeContent defaults to true.
type Options struct {
	ContentTypes   []models.ContentType
	Threshold      *float64
	Limit          int
	IncludeContent *bool
}

func (e *Engine) normalize(opts Options) (threshold float64, limit int, includeContent bool, err error) {
	if opts.Limit < 0 {
		return 0, 0, false, fmt.Errorf("%w: limit must not be negative, got %d", models.ErrValidation, opts.Limit)
	}
	for _, t := range opts.ContentTypes {
		if !t.IsValid() {
			return 0, 0, false, fmt.Errorf("%w: unknown content type %q", models.ErrValidation, t)
		}
	}

	threshold = e.defaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	limit = opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	includeContent = true
	if opts.IncludeContent != nil {
		includeContent = *opts.IncludeContent
	}
	return threshold, limit, includeContent, nil
}

// Search embeds the query once, scans every candidate vector in scope in a
// single pass, keeps candidates at or above the threshold, and returns the
// top limit results in descending similarity (ties: newer record wins).
// Exceeding the latency budget logs a warning, never an error.
func (e *Engine) Search(ctx context.Context, scopeID, query string, opts Options) ([]models.SearchResult, error) {
	threshold, limit, includeContent, err := e.normalize(opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := e.records.ListByScope(ctx, scopeID, opts.ContentTypes...)
	if err != nil {
		return nil, err
	}

	top := newTopK(limit)
	for _, rec := range candidates {
		sim := vector.CosineSimilarity(queryVec, vector.BytesToFloat32(rec.Embedding))
		// A record's own threshold is a floor on top of the query's.
		if sim < threshold || sim < rec.Threshold {
			continue
		}
		top.add(e.toResult(rec, sim, includeContent))
	}

	e.warnOverBudget(scopeID, query, len(candidates), time.Since(start))
	return top.sorted(), nil
}

// FindSimilar is the diversity-filtered variant: the best match is always
// kept, and each further candidate (walked best-first) joins only if its
// similarity to every already-selected result stays below the diversity
// threshold. Used to avoid returning near-duplicate context.
func (e *Engine) FindSimilar(ctx context.Context, scopeID, query string, opts Options, diversity float64) ([]models.SearchResult, error) {
	threshold, limit, includeContent, err := e.normalize(opts)
	if err != nil {
		return nil, err
	}
	if diversity <= 0 {
		diversity = DefaultDiversity
	}

	start := time.Now()

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := e.records.ListByScope(ctx, scopeID, opts.ContentTypes...)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec *models.MemoryRecord
		vec []float32
		sim float64
	}
	retained := make([]scored, 0, len(candidates))
	for _, rec := range candidates {
		vec := vector.BytesToFloat32(rec.Embedding)
		sim := vector.CosineSimilarity(queryVec, vec)
		if sim < threshold || sim < rec.Threshold {
			continue
		}
		retained = append(retained, scored{rec: rec, vec: vec, sim: sim})
	}
	sort.Slice(retained, func(i, j int) bool {
		if retained[i].sim != retained[j].sim {
			return retained[i].sim > retained[j].sim
		}
		return retained[i].rec.CreatedAt > retained[j].rec.CreatedAt
	})

	var selected []scored
	for _, cand := range retained {
		if len(selected) >= limit {
			break
		}
		tooClose := false
		for _, sel := range selected {
			if vector.CosineSimilarity(cand.vec, sel.vec) >= diversity {
				tooClose = true
				break
			}
		}
		// The single best match is always admitted.
		if len(selected) == 0 || !tooClose {
			selected = append(selected, cand)
		}
	}

	results := make([]models.SearchResult, len(selected))
	for i, s := range selected {
		results[i] = e.toResult(s.rec, s.sim, includeContent)
	}

	e.warnOverBudget(scopeID, query, len(candidates), time.Since(start))
	return results, nil
}

// BatchSearch runs a sequence of independent single-query searches. No
// ordering guarantee or shared state exists across the queries.
func (e *Engine) BatchSearch(ctx context.Context, scopeID string, queries []string, opts Options) ([][]models.SearchResult, error) {
	results := make([][]models.SearchResult, 0, len(queries))
	for _, q := range queries {
		r, err := e.Search(ctx, scopeID, q, opts)
		if err != nil {
			return nil, fmt.Errorf("batch query %q: %w", q, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// KeywordFallback is the non-semantic degraded path for consumers whose
// embedding provider is unreachable. FTS5 ranks are not similarity scores;
// they are normalized to (0, 1] for shape compatibility only.
func (e *Engine) KeywordFallback(ctx context.Context, scopeID, query string, limit int, includeContent bool) ([]models.SearchResult, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative, got %d", models.ErrValidation, limit)
	}
	if limit == 0 {
		limit = DefaultLimit
	}

	matches, err := e.keywords.Search(ctx, scopeID, query, limit)
	if err != nil {
		return nil, err
	}

	maxRank := 0.0
	for _, m := range matches {
		if m.Rank > maxRank {
			maxRank = m.Rank
		}
	}

	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		rec, err := e.records.GetByHash(ctx, scopeID, m.ContentHash)
		if err != nil || rec == nil {
			continue
		}
		score := 0.0
		if maxRank > 0 {
			score = m.Rank / maxRank
		}
		results = append(results, e.toResult(rec, score, includeContent))
	}
	return results, nil
}

func (e *Engine) toResult(rec *models.MemoryRecord, sim float64, includeContent bool) models.SearchResult {
	r := models.SearchResult{
		ContentHash: rec.ContentHash,
		ScopeID:     rec.ScopeID,
		ContentType: rec.ContentType,
		Metadata:    rec.Metadata,
		Similarity:  sim,
		CreatedAt:   rec.CreatedAt,
	}
	if includeContent {
		r.Content = rec.Content
	}
	return r
}

func (e *Engine) warnOverBudget(scopeID, query string, candidates int, elapsed time.Duration) {
	if elapsed > e.budget {
		e.logger.Warn("search exceeded latency budget",
			"scope", scopeID,
			"query_len", len(query),
			"candidates", candidates,
			"elapsed_ms", elapsed.Milliseconds(),
			"budget_ms", e.budget.Milliseconds(),
		)
	}
}
