package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/ristretto"

	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vector"
)

// CachedEmbedder wraps a Provider with two cache levels keyed by content
// hash: an in-process ristretto cache for hot queries and the SQLite
// embedding_cache table for durability across restarts.
type CachedEmbedder struct {
	provider Provider
	hot      *ristretto.Cache
	durable  *store.EmbeddingCacheStore
	model    string
	logger   *slog.Logger
}

func NewCachedEmbedder(provider Provider, durable *store.EmbeddingCacheStore, model string, logger *slog.Logger) (*CachedEmbedder, error) {
	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     32 << 20, // 32 MiB of vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init embedding cache: %w", models.ErrConfiguration, err)
	}
	return &CachedEmbedder{
		provider: provider,
		hot:      hot,
		durable:  durable,
		model:    model,
		logger:   logger,
	}, nil
}

// Embed returns the embedding for text, consulting the hot cache, then the
// durable cache, then the provider. Cache write failures are logged and
// swallowed; provider failures propagate.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)

	if v, ok := e.hot.Get(hash); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	entry, err := e.durable.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if entry != nil && entry.Dimension == e.provider.Dimension() && entry.Model == e.model {
		vec := vector.BytesToFloat32(entry.Embedding)
		e.hot.Set(hash, vec, int64(len(vec)*4))
		return vec, nil
	}

	vec, err := e.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != e.provider.Dimension() {
		return nil, fmt.Errorf("%w: provider returned dimension %d, expected %d",
			models.ErrEmbedding, len(vec), e.provider.Dimension())
	}

	if err := e.durable.Put(ctx, &models.EmbeddingCacheEntry{
		ContentHash: hash,
		Embedding:   vector.Float32ToBytes(vec),
		Dimension:   len(vec),
		Model:       e.model,
	}); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}
	e.hot.Set(hash, vec, int64(len(vec)*4))

	return vec, nil
}

// Dimension returns the underlying provider's output width.
func (e *CachedEmbedder) Dimension() int {
	return e.provider.Dimension()
}
