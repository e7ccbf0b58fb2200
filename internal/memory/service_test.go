package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
)

type mockEmbedder struct {
	provider *embedding.MockProvider
}

func (m mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.provider.GenerateEmbedding(ctx, text)
}

func (m mockEmbedder) Dimension() int { return m.provider.Dimension() }

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	records := store.NewRecordStore(db)
	scopes := store.NewScopeStore(db)
	emb := mockEmbedder{provider: embedding.NewMockProvider(64)}
	dedup := NewDeduplicator(records, 0.85)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewService(records, scopes, emb, dedup, logger)
}

func TestStoreIdempotence(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	req := &models.StoreRequest{
		Scope:       "ws-1",
		Content:     "cache invalidation happens on write, not on read",
		ContentType: models.ContentTypeDecision,
	}

	first, err := svc.Store(ctx, req)
	if err != nil {
		t.Fatalf("first store: %v", err)
	}
	if first.Deduplicated {
		t.Fatal("first store must not be deduplicated")
	}
	if first.Hash == "" {
		t.Fatal("expected a content hash")
	}

	second, err := svc.Store(ctx, req)
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if !second.Deduplicated {
		t.Fatal("identical content must dedup")
	}
	if second.Hash != first.Hash {
		t.Fatalf("hashes diverged: %s vs %s", first.Hash, second.Hash)
	}

	// Leading and trailing whitespace does not change identity.
	trimmed, err := svc.Store(ctx, &models.StoreRequest{
		Scope:       "ws-1",
		Content:     "  cache invalidation happens on write, not on read \n",
		ContentType: models.ContentTypeDecision,
	})
	if err != nil {
		t.Fatalf("trimmed store: %v", err)
	}
	if trimmed.Hash != first.Hash || !trimmed.Deduplicated {
		t.Fatalf("trimmed content should converge on the same hash: %+v", trimmed)
	}

	records, err := svc.List(ctx, "ws-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}
}

func TestStoreConcurrentConvergence(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	const workers = 8
	var wg sync.WaitGroup
	hashes := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.Store(ctx, &models.StoreRequest{
				Scope:       "ws-race",
				Content:     "only one row should come out of this",
				ContentType: models.ContentTypeContext,
			})
			if err != nil {
				errs[i] = err
				return
			}
			hashes[i] = resp.Hash
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	for i := 1; i < workers; i++ {
		if hashes[i] != hashes[0] {
			t.Fatalf("hash mismatch: %s vs %s", hashes[i], hashes[0])
		}
	}

	records, err := svc.List(ctx, "ws-race")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after concurrent stores, got %d", len(records))
	}
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	t.Run("missing scope", func(t *testing.T) {
		_, err := svc.Store(ctx, &models.StoreRequest{
			Content:     "something",
			ContentType: models.ContentTypeTask,
		})
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("unknown content type", func(t *testing.T) {
		_, err := svc.Store(ctx, &models.StoreRequest{
			Scope:       "ws-1",
			Content:     "something",
			ContentType: "poetry",
		})
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("fully private content is skipped", func(t *testing.T) {
		resp, err := svc.Store(ctx, &models.StoreRequest{
			Scope:       "ws-1",
			Content:     "<private>the api key is hunter2</private>",
			ContentType: models.ContentTypeContext,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !resp.Skipped {
			t.Fatal("expected private content to be skipped")
		}
	})
}

func TestNearDuplicateSignal(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	first, err := svc.Store(ctx, &models.StoreRequest{
		Scope:       "ws-1",
		Content:     "retry failed requests with exponential backoff and jitter",
		ContentType: models.ContentTypeDecision,
	})
	if err != nil {
		t.Fatalf("first store: %v", err)
	}

	// Near-identical phrasing: flagged, never blocked.
	second, err := svc.Store(ctx, &models.StoreRequest{
		Scope:       "ws-1",
		Content:     "retry failed requests with exponential backoff and some jitter",
		ContentType: models.ContentTypeDecision,
	})
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if second.Deduplicated {
		t.Fatal("near-duplicate must still be stored")
	}
	if second.NearDuplicateHash != first.Hash {
		t.Fatalf("expected near-dup flag pointing at %s, got %q", first.Hash, second.NearDuplicateHash)
	}
	if second.NearDupSimilarity < 0.85 {
		t.Fatalf("expected similarity at or above the floor, got %f", second.NearDupSimilarity)
	}

	records, err := svc.List(ctx, "ws-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected both rows, got %d", len(records))
	}
}

func TestUpdateSupersedes(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	resp, err := svc.Store(ctx, &models.StoreRequest{
		Scope:       "ws-1",
		Content:     "deploy on fridays is fine",
		ContentType: models.ContentTypeDecision,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	newHash, err := svc.Update(ctx, "ws-1", resp.Hash, &models.UpdateRequest{
		Content: "deploy on fridays is not fine",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if newHash == resp.Hash {
		t.Fatal("update must produce a new hash")
	}

	old, err := svc.Get(ctx, "ws-1", resp.Hash)
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if old != nil {
		t.Fatal("old hash must be superseded")
	}

	got, err := svc.Get(ctx, "ws-1", newHash)
	if err != nil {
		t.Fatalf("get new: %v", err)
	}
	if got == nil || got.Content != "deploy on fridays is not fine" {
		t.Fatalf("unexpected updated record: %+v", got)
	}

	t.Run("updating a missing hash fails", func(t *testing.T) {
		_, err := svc.Update(ctx, "ws-1", "gone", &models.UpdateRequest{Content: "x"})
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeleteScopeRemovesRecords(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := svc.Store(ctx, &models.StoreRequest{
			Scope:       "ws-del",
			Content:     content,
			ContentType: models.ContentTypeContext,
		}); err != nil {
			t.Fatalf("store %s: %v", content, err)
		}
	}

	if err := svc.DeleteScope(ctx, "ws-del"); err != nil {
		t.Fatalf("delete scope: %v", err)
	}

	records, err := svc.List(ctx, "ws-del")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records after scope delete, got %d", len(records))
	}
}
