package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vector"
)

type mockEmbedder struct {
	provider *embedding.MockProvider
}

func (m mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.provider.GenerateEmbedding(ctx, text)
}

func (m mockEmbedder) Dimension() int { return m.provider.Dimension() }

type fixture struct {
	engine   *Engine
	records  *store.RecordStore
	provider *embedding.MockProvider
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	records := store.NewRecordStore(db)
	scopes := store.NewScopeStore(db)
	keywords := store.NewKeywordStore(db)
	if err := scopes.Ensure(context.Background(), "ws-1"); err != nil {
		t.Fatalf("ensure scope: %v", err)
	}

	// Weighted anchor terms give topically related fixtures a strong shared
	// direction, the way a real embedding model would.
	provider := embedding.NewMockProvider(64).
		WithTermWeight("database", 6).
		WithTermWeight("performance", 4).
		WithTermWeight("deploy", 6)

	engine := NewEngine(
		records, keywords, mockEmbedder{provider: provider},
		models.DefaultThreshold, 50*time.Millisecond,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return &fixture{engine: engine, records: records, provider: provider}
}

func (f *fixture) seed(t *testing.T, content string, ct models.ContentType, threshold float64, createdAt int64) string {
	t.Helper()
	ctx := context.Background()
	vec, err := f.provider.GenerateEmbedding(ctx, content)
	if err != nil {
		t.Fatalf("embed fixture: %v", err)
	}
	hash := embedding.ContentHash(content)
	rec := &models.MemoryRecord{
		ScopeID:     "ws-1",
		ContentHash: hash,
		Content:     content,
		ContentType: ct,
		Embedding:   vector.Float32ToBytes(vec),
		Dimension:   len(vec),
		Metadata:    models.Metadata{Version: models.MetadataVersion},
		Threshold:   threshold,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if _, err := f.records.InsertIfAbsent(ctx, rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return hash
}

func TestSearchRanking(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)

	relevant := map[string]bool{}
	for _, content := range []string{
		"database performance degraded after the index rebuild",
		"tuning database performance with connection pooling",
		"database performance benchmarks for the read path",
	} {
		relevant[f.seed(t, content, models.ContentTypeContext, 0, time.Now().Unix())] = true
	}
	for _, content := range []string{
		"team prefers squash merges",
		"the new onboarding doc lives in the wiki",
		"rotate the staging certificates quarterly",
		"the standup moved to 9:30",
		"error budget policy for the payments team",
		"use feature flags for risky rollouts",
		"keyboard shortcuts for the internal dashboard",
	} {
		f.seed(t, content, models.ContentTypeContext, 0, time.Now().Unix())
	}

	threshold := 0.5
	results, err := f.engine.Search(ctx, "ws-1", "database performance", Options{
		Threshold: &threshold,
		Limit:     3,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if !relevant[r.ContentHash] {
			t.Fatalf("result %d is not one of the relevant records: %q", i, r.Content)
		}
		if r.Similarity < threshold {
			t.Fatalf("result %d below threshold: %f", i, r.Similarity)
		}
		if i > 0 && results[i-1].Similarity < r.Similarity {
			t.Fatalf("results not in descending order at %d", i)
		}
	}
}

func TestSearchThresholdAboveMaxYieldsEmpty(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)
	f.seed(t, "database performance trivia", models.ContentTypeContext, 0, time.Now().Unix())

	threshold := 1.1
	results, err := f.engine.Search(ctx, "ws-1", "database performance trivia", Options{Threshold: &threshold})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("threshold above 1 must match nothing, got %d results", len(results))
	}
}

func TestSearchValidation(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)

	t.Run("negative limit", func(t *testing.T) {
		_, err := f.engine.Search(ctx, "ws-1", "anything", Options{Limit: -1})
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("unknown content type", func(t *testing.T) {
		_, err := f.engine.Search(ctx, "ws-1", "anything", Options{
			ContentTypes: []models.ContentType{"poetry"},
		})
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestSearchContentTypeFilter(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)

	f.seed(t, "database performance decision: move to read replicas", models.ContentTypeDecision, 0, time.Now().Unix())
	f.seed(t, "database performance task: add missing index", models.ContentTypeTask, 0, time.Now().Unix())

	results, err := f.engine.Search(ctx, "ws-1", "database performance", Options{
		ContentTypes: []models.ContentType{models.ContentTypeDecision},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ContentType != models.ContentTypeDecision {
		t.Fatalf("unexpected content type %q", results[0].ContentType)
	}
}

func TestSearchPerRecordThreshold(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)

	// Identical content direction, but one record demands near-exact matches.
	f.seed(t, "database performance baseline numbers", models.ContentTypeContext, 0, time.Now().Unix())
	strictHash := f.seed(t, "database performance baseline numbers, strict", models.ContentTypeContext, 0.999, time.Now().Unix())

	results, err := f.engine.Search(ctx, "ws-1", "database performance", Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.ContentHash == strictHash {
			t.Fatal("record with a high own threshold must be filtered out")
		}
	}
	if len(results) != 1 {
		t.Fatalf("expected only the permissive record, got %d", len(results))
	}
}

func TestSearchTieBreakNewerWins(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)

	// Same embedding bytes under two hashes forces an exact similarity tie.
	vec, err := f.provider.GenerateEmbedding(ctx, "database performance playbook")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i, hash := range []string{"tie-old", "tie-new"} {
		rec := &models.MemoryRecord{
			ScopeID:     "ws-1",
			ContentHash: hash,
			Content:     "database performance playbook",
			ContentType: models.ContentTypeContext,
			Embedding:   vector.Float32ToBytes(vec),
			Dimension:   len(vec),
			Metadata:    models.Metadata{Version: models.MetadataVersion},
			CreatedAt:   int64(1000 + i),
			UpdatedAt:   int64(1000 + i),
		}
		if _, err := f.records.InsertIfAbsent(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	results, err := f.engine.Search(ctx, "ws-1", "database performance playbook", Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ContentHash != "tie-new" {
		t.Fatalf("expected newer record first on a tie, got %s", results[0].ContentHash)
	}
}

func TestSearchExcludeContent(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)
	f.seed(t, "database performance with content hidden", models.ContentTypeContext, 0, time.Now().Unix())

	include := false
	results, err := f.engine.Search(ctx, "ws-1", "database performance", Options{IncludeContent: &include})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected a result")
	}
	if results[0].Content != "" {
		t.Fatalf("content should be omitted, got %q", results[0].Content)
	}
	if results[0].ContentHash == "" {
		t.Fatal("hash must still be present")
	}
}

func TestFindSimilarDropsNearDuplicates(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)

	f.seed(t, "deploy with blue green rollout and a canary stage", models.ContentTypeDecision, 0, 3000)
	f.seed(t, "deploy with blue green rollout and a tiny canary stage", models.ContentTypeDecision, 0, 2000)
	distinct := f.seed(t, "deploy docs live in the runbook folder", models.ContentTypeDecision, 0, 1000)

	results, err := f.engine.FindSimilar(ctx, "ws-1", "deploy", Options{}, 0.92)
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected near-duplicate to be dropped, got %d results", len(results))
	}
	found := false
	for _, r := range results {
		if r.ContentHash == distinct {
			found = true
		}
	}
	if !found {
		t.Fatal("distinct record should survive the diversity filter")
	}
}

func TestBatchSearch(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)

	f.seed(t, "database performance tuning notes", models.ContentTypeContext, 0, time.Now().Unix())
	f.seed(t, "deploy checklist for the api service", models.ContentTypeContext, 0, time.Now().Unix())

	results, err := f.engine.BatchSearch(ctx, "ws-1", []string{"database performance", "deploy"}, Options{})
	if err != nil {
		t.Fatalf("batch search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected one result set per query, got %d", len(results))
	}
	if len(results[0]) == 0 || results[0][0].Content != "database performance tuning notes" {
		t.Fatalf("first query matched wrong records: %+v", results[0])
	}
	if len(results[1]) == 0 || results[1][0].Content != "deploy checklist for the api service" {
		t.Fatalf("second query matched wrong records: %+v", results[1])
	}
}

func TestKeywordFallback(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t)

	f.seed(t, "grafana dashboards for latency percentiles", models.ContentTypeContext, 0, time.Now().Unix())
	f.seed(t, "latency regression after the cache change", models.ContentTypeContext, 0, time.Now().Unix())
	f.seed(t, "unrelated note about lunch options", models.ContentTypeContext, 0, time.Now().Unix())

	results, err := f.engine.KeywordFallback(ctx, "ws-1", "latency", 10, true)
	if err != nil {
		t.Fatalf("keyword fallback: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	for _, r := range results {
		if r.Similarity <= 0 || r.Similarity > 1 {
			t.Fatalf("normalized rank out of range: %f", r.Similarity)
		}
	}

	t.Run("negative limit", func(t *testing.T) {
		_, err := f.engine.KeywordFallback(ctx, "ws-1", "latency", -1, true)
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}
