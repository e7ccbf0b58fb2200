package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vector"
)

const (
	DefaultMinK                 = 2
	DefaultMaxK                 = 8
	DefaultMaxIterations        = 100
	DefaultConvergenceThreshold = 0.001
)

// Engine groups a scope's memories into thematic clusters and persists the
// result. Clustering is derived state: it can be rebuilt at any time from
// the records, and readers keep seeing the previous set until a new one
// replaces it in a single transaction.
type Engine struct {
	records  *store.RecordStore
	clusters *store.ClusterStore
	logger   *slog.Logger
}

func NewEngine(records *store.RecordStore, clusters *store.ClusterStore, logger *slog.Logger) *Engine {
	return &Engine{
		records:  records,
		clusters: clusters,
		logger:   logger,
	}
}

// Options bounds one clustering pass. Zero values fall back to defaults.
type Options struct {
	MinK                 int
	MaxK                 int
	MaxIterations        int
	ConvergenceThreshold float64
}

func (o *Options) normalize() error {
	if o.MinK == 0 {
		o.MinK = DefaultMinK
	}
	if o.MaxK == 0 {
		o.MaxK = DefaultMaxK
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.ConvergenceThreshold == 0 {
		o.ConvergenceThreshold = DefaultConvergenceThreshold
	}
	if o.MinK < 2 {
		return fmt.Errorf("%w: min_k must be at least 2, got %d", models.ErrValidation, o.MinK)
	}
	if o.MaxK < o.MinK {
		return fmt.Errorf("%w: max_k %d is below min_k %d", models.ErrValidation, o.MaxK, o.MinK)
	}
	if o.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be positive, got %d", models.ErrValidation, o.MaxIterations)
	}
	if o.ConvergenceThreshold < 0 {
		return fmt.Errorf("%w: convergence_threshold must not be negative", models.ErrValidation)
	}
	return nil
}

// Cluster rebuilds the cluster set for a scope. Scopes with fewer than two
// records get an empty set. K is chosen automatically over [MinK, MaxK]
// (clamped to the record count) using the elbow of the inertia curve.
func (e *Engine) Cluster(ctx context.Context, scopeID string, opts Options) ([]models.Cluster, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	records, err := e.records.ListByScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}

	points := make([][]float32, 0, len(records))
	members := make([]*models.MemoryRecord, 0, len(records))
	for _, rec := range records {
		vec := vector.BytesToFloat32(rec.Embedding)
		if vec == nil || len(vec) != rec.Dimension {
			e.logger.Warn("skipping record with undecodable embedding",
				"scope", scopeID, "hash", rec.ContentHash)
			continue
		}
		points = append(points, vec)
		members = append(members, rec)
	}

	if len(points) < 2 {
		if err := e.clusters.ReplaceForScope(ctx, scopeID, nil); err != nil {
			return nil, err
		}
		return []models.Cluster{}, nil
	}

	maxK := opts.MaxK
	if maxK > len(points) {
		maxK = len(points)
	}
	minK := opts.MinK
	if minK > maxK {
		minK = maxK
	}

	start := time.Now()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	runs := make([]kmeansRun, 0, maxK-minK+1)
	for k := minK; k <= maxK; k++ {
		runs = append(runs, runKMeans(points, k, opts.MaxIterations, opts.ConvergenceThreshold, rng))
	}

	best := runs[selectElbow(singleClusterInertia(points), runs)]
	clusters := e.materialize(scopeID, best, members, points)

	if err := e.clusters.ReplaceForScope(ctx, scopeID, clusters); err != nil {
		return nil, err
	}

	e.logger.Info("rebuilt clusters",
		"scope", scopeID,
		"records", len(points),
		"k", best.k,
		"clusters", len(clusters),
		"iterations", best.iterations,
		"elapsed_ms", time.Since(start).Milliseconds())

	return clusters, nil
}

// List returns the persisted cluster set for a scope.
func (e *Engine) List(ctx context.Context, scopeID string) ([]models.Cluster, error) {
	return e.clusters.ListByScope(ctx, scopeID)
}

// materialize turns a K-means run into persistable clusters. Slots that
// ended up empty are dropped. Member hashes are ordered by similarity to
// the centroid, and each cluster is named after its dominant content type
// with an ordinal suffix.
func (e *Engine) materialize(scopeID string, run kmeansRun, members []*models.MemoryRecord, points [][]float32) []models.Cluster {
	type slot struct {
		indices []int
	}
	slots := make([]slot, run.k)
	for i, c := range run.assignments {
		slots[c].indices = append(slots[c].indices, i)
	}

	now := time.Now().Unix()
	nameCounts := map[string]int{}
	clusters := make([]models.Cluster, 0, run.k)

	for ci, s := range slots {
		if len(s.indices) == 0 {
			continue
		}
		centroid := run.centroids[ci]

		typeCounts := map[models.ContentType]int{}
		relevance := 0.0
		for _, idx := range s.indices {
			typeCounts[members[idx].ContentType]++
			relevance += vector.CosineSimilarity(points[idx], centroid)
		}
		relevance /= float64(len(s.indices))

		dominant := dominantType(typeCounts)
		nameCounts[dominant]++
		name := fmt.Sprintf("%s-%d", dominant, nameCounts[dominant])

		sorted := append([]int(nil), s.indices...)
		sort.Slice(sorted, func(a, b int) bool {
			return vector.CosineSimilarity(points[sorted[a]], centroid) >
				vector.CosineSimilarity(points[sorted[b]], centroid)
		})
		hashes := make([]string, len(sorted))
		for i, idx := range sorted {
			hashes[i] = members[idx].ContentHash
		}

		clusters = append(clusters, models.Cluster{
			ID:           uuid.NewString(),
			ScopeID:      scopeID,
			Name:         name,
			Centroid:     centroid,
			Dimension:    len(centroid),
			MemberHashes: hashes,
			Relevance:    relevance,
			Size:         len(hashes),
			UpdatedAt:    now,
		})
	}

	return clusters
}

func dominantType(counts map[models.ContentType]int) string {
	best := ""
	bestCount := -1
	for ct, n := range counts {
		// Deterministic winner on ties.
		if n > bestCount || (n == bestCount && string(ct) < best) {
			best = string(ct)
			bestCount = n
		}
	}
	return best
}
