package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/engram-labs/engram/internal/vector"
)

// MockProvider generates deterministic embeddings without any external
// process: each token hashes to a pseudo-random unit direction and the text
// embedding is the normalized sum, so texts sharing vocabulary are measurably
// similar. Used in tests and offline development.
type MockProvider struct {
	dim     int
	weights map[string]float64
}

func NewMockProvider(dim int) *MockProvider {
	return &MockProvider{dim: dim, weights: make(map[string]float64)}
}

// WithTermWeight boosts a token's contribution, pulling texts that mention it
// toward a shared direction. Useful for building topically clustered fixtures.
func (m *MockProvider) WithTermWeight(term string, weight float64) *MockProvider {
	m.weights[strings.ToLower(term)] = weight
	return m
}

// GenerateEmbedding returns a deterministic unit vector for text.
func (m *MockProvider) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	sum := make([]float64, m.dim)

	for _, tok := range tokenize(text) {
		w := 1.0
		if boost, ok := m.weights[tok]; ok {
			w = boost
		}
		tv := m.tokenVector(tok)
		for i := range sum {
			sum[i] += w * tv[i]
		}
	}

	// A small whole-text component keeps distinct texts from collapsing onto
	// the same point when their token sets are identical.
	full := m.tokenVector(strings.ToLower(strings.TrimSpace(text)))
	for i := range sum {
		sum[i] += 0.1 * full[i]
	}

	out := make([]float32, m.dim)
	var norm float64
	for _, v := range sum {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out, nil
	}
	for i, v := range sum {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// tokenVector maps a token to a deterministic pseudo-random unit direction
// via an FNV-seeded linear congruential generator.
func (m *MockProvider) tokenVector(tok string) []float64 {
	h := fnv.New64a()
	h.Write([]byte(tok))
	seed := h.Sum64()

	v := make([]float64, m.dim)
	var norm float64
	for i := 0; i < m.dim; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float64(int64(seed)) / float64(math.MaxInt64)
		norm += v[i] * v[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func (m *MockProvider) CalculateSimilarity(a, b []float32) float64 {
	return vector.CosineSimilarity(a, b)
}

func (m *MockProvider) Dimension() int {
	return m.dim
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return nil
}
