package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/vector"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
)

// OllamaProvider generates text embeddings via the Ollama API, with a
// per-request timeout and bounded exponential-backoff retries.
type OllamaProvider struct {
	baseURL     string
	model       string
	dim         int
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

func NewOllamaProvider(baseURL, model string, dim int) *OllamaProvider {
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		dim:     dim,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// GenerateEmbedding returns the embedding vector for text. Provider failures
// surface as ErrEmbedding once the retry budget is exhausted; a response of
// the wrong width is an immediate ErrEmbedding.
func (p *OllamaProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.baseDelay * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: embed cancelled: %w", models.ErrEmbedding, ctx.Err())
			}
		}

		vec, err := p.embed(ctx, text)
		if err == nil {
			if len(vec) != p.dim {
				return nil, fmt.Errorf("%w: model %s returned dimension %d, expected %d",
					models.ErrEmbedding, p.model, len(vec), p.dim)
			}
			return vec, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: ollama embed after %d attempts: %w", models.ErrEmbedding, p.maxAttempts, lastErr)
}

func (p *OllamaProvider) embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(embedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, string(body))
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}

	return result.Embeddings[0], nil
}

// CalculateSimilarity returns the cosine similarity of two vectors.
func (p *OllamaProvider) CalculateSimilarity(a, b []float32) float64 {
	return vector.CosineSimilarity(a, b)
}

// Dimension returns the configured model output width.
func (p *OllamaProvider) Dimension() int {
	return p.dim
}

// HealthCheck verifies Ollama is reachable.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama health check: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check: status %d", resp.StatusCode)
	}
	return nil
}

// retryable reports whether an embed failure is worth another attempt:
// rate limits, server errors, and connection issues.
func retryable(err error) bool {
	msg := err.Error()
	for _, s := range []string{"429", "status 5", "connection refused", "timeout", "deadline exceeded", "EOF", "reset by peer"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
