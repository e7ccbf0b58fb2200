package embedding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vector"
)

func TestContentHash(t *testing.T) {
	a := ContentHash("remember this")
	b := ContentHash("  remember this \n")
	if a != b {
		t.Fatal("surrounding whitespace must not change identity")
	}
	if a == ContentHash("remember that") {
		t.Fatal("different content must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha-256, got %d chars", len(a))
	}
}

func TestMockProviderDeterminism(t *testing.T) {
	ctx := context.Background()
	m := NewMockProvider(128)

	a, err := m.GenerateEmbedding(ctx, "stable text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := m.GenerateEmbedding(ctx, "stable text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(a) != 128 {
		t.Fatalf("expected 128 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text must produce identical embeddings")
		}
	}

	sim := vector.CosineSimilarity(a, b)
	if sim < 0.9999 {
		t.Fatalf("self similarity should be ~1, got %f", sim)
	}
}

func TestMockProviderSharedVocabulary(t *testing.T) {
	ctx := context.Background()
	m := NewMockProvider(128)

	a, _ := m.GenerateEmbedding(ctx, "the deploy pipeline failed on the build step")
	b, _ := m.GenerateEmbedding(ctx, "the deploy pipeline failed on the test step")
	c, _ := m.GenerateEmbedding(ctx, "lunch menu rotates weekly")

	related := vector.CosineSimilarity(a, b)
	unrelated := vector.CosineSimilarity(a, c)
	if related <= unrelated {
		t.Fatalf("shared vocabulary should score higher: related %f, unrelated %f", related, unrelated)
	}
	if related < 0.5 {
		t.Fatalf("mostly identical texts should be clearly similar, got %f", related)
	}
}

func TestRegistry(t *testing.T) {
	mock := NewMockProvider(8)
	reg, err := NewRegistry("mock", map[string]Provider{"mock": mock})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	t.Run("get known provider", func(t *testing.T) {
		p, err := reg.Get("mock")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Dimension() != 8 {
			t.Fatalf("wrong provider returned")
		}
	})

	t.Run("unknown provider is a configuration error", func(t *testing.T) {
		_, err := reg.Get("openai")
		if !errors.Is(err, models.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("unknown default is rejected", func(t *testing.T) {
		_, err := NewRegistry("gone", map[string]Provider{"mock": mock})
		if !errors.Is(err, models.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
	})
}

type countingProvider struct {
	*MockProvider
	calls int
}

func (c *countingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.MockProvider.GenerateEmbedding(ctx, text)
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	counting := &countingProvider{MockProvider: NewMockProvider(32)}
	embedder, err := NewCachedEmbedder(counting, store.NewEmbeddingCacheStore(db), "mock-model", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new cached embedder: %v", err)
	}

	first, err := embedder.Embed(ctx, "cache me once")
	if err != nil {
		t.Fatalf("first embed: %v", err)
	}
	if counting.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", counting.calls)
	}

	// The durable cache serves repeats even when the hot cache has not
	// admitted the entry yet.
	second, err := embedder.Embed(ctx, "cache me once")
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}
	if counting.calls != 1 {
		t.Fatalf("repeat must not hit the provider, got %d calls", counting.calls)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached embedding diverged")
		}
	}

	// A different model invalidates the durable entry.
	other, err := NewCachedEmbedder(counting, store.NewEmbeddingCacheStore(db), "other-model", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new cached embedder: %v", err)
	}
	if _, err := other.Embed(ctx, "cache me once"); err != nil {
		t.Fatalf("embed with other model: %v", err)
	}
	if counting.calls != 2 {
		t.Fatalf("model change must re-embed, got %d calls", counting.calls)
	}
}
