// Package embedding turns text into fixed-dimension vectors. Providers are
// resolved once at construction through a Registry; callers never dispatch on
// provider type names.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/engram-labs/engram/internal/models"
)

// Provider is the external embedding collaborator contract.
type Provider interface {
	// GenerateEmbedding returns a vector of exactly Dimension() elements.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	// CalculateSimilarity returns the cosine similarity of two vectors,
	// in [-1, 1].
	CalculateSimilarity(a, b []float32) float64
	// Dimension is the fixed output width of this provider's model.
	Dimension() int
	// HealthCheck reports whether the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// Embedder is the narrow surface the search and memory services depend on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Registry maps provider identifiers to instances. It is built once at
// startup; lookups of unknown ids are configuration errors, not runtime
// fallbacks.
type Registry struct {
	providers map[string]Provider
	defaultID string
}

func NewRegistry(defaultID string, providers map[string]Provider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: registry requires at least one provider", models.ErrConfiguration)
	}
	if _, ok := providers[defaultID]; !ok {
		return nil, fmt.Errorf("%w: default provider %q not registered", models.ErrConfiguration, defaultID)
	}
	reg := &Registry{providers: make(map[string]Provider, len(providers)), defaultID: defaultID}
	for id, p := range providers {
		reg.providers[id] = p
	}
	return reg, nil
}

// Get resolves a provider by id.
func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown embedding provider %q (registered: %s)",
			models.ErrConfiguration, id, strings.Join(r.IDs(), ", "))
	}
	return p, nil
}

// Default returns the provider configured as default.
func (r *Registry) Default() Provider {
	return r.providers[r.defaultID]
}

// IDs lists registered provider identifiers, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ContentHash computes the SHA-256 hash of trimmed text content. This is the
// stable identity of a memory record.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return fmt.Sprintf("%x", h)
}
