// Package memory is the content-addressed persistence facade: idempotent
// store, hash lookup, replace-style update, and scope lifecycle.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/privacy"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/vector"
)

// Service owns all MemoryRecord operations.
type Service struct {
	records  *store.RecordStore
	scopes   *store.ScopeStore
	embedder embedding.Embedder
	dedup    *Deduplicator
	logger   *slog.Logger
}

func NewService(
	records *store.RecordStore,
	scopes *store.ScopeStore,
	embedder embedding.Embedder,
	dedup *Deduplicator,
	logger *slog.Logger,
) *Service {
	return &Service{
		records:  records,
		scopes:   scopes,
		embedder: embedder,
		dedup:    dedup,
		logger:   logger,
	}
}

// Store persists novel content and returns its content hash. Storing
// byte-identical content twice is a no-op returning the existing hash: no
// re-embedding, no duplicate row. This is the system's only strong
// idempotence guarantee. Embedding failure persists nothing.
func (s *Service) Store(ctx context.Context, req *models.StoreRequest) (*models.StoreResponse, error) {
	if req.Scope == "" {
		return nil, fmt.Errorf("%w: scope is required", models.ErrValidation)
	}
	if !req.ContentType.IsValid() {
		return nil, fmt.Errorf("%w: unknown content type %q", models.ErrValidation, req.ContentType)
	}

	if privacy.OnlyRedacted(req.Content) {
		return &models.StoreResponse{Skipped: true, SkipReason: "content_private"}, nil
	}
	content := privacy.Scrub(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is empty", models.ErrValidation)
	}

	if err := s.scopes.Ensure(ctx, req.Scope); err != nil {
		return nil, err
	}

	hash := embedding.ContentHash(content)

	// Hash check first: identical content must not hit the provider again.
	existing, err := s.records.GetByHash(ctx, req.Scope, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &models.StoreResponse{Hash: hash, Deduplicated: true}, nil
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	resp := &models.StoreResponse{Hash: hash}
	if s.dedup != nil {
		nearHash, nearSim, err := s.dedup.FindNearDuplicate(ctx, req.Scope, vec)
		if err != nil {
			s.logger.Warn("near-duplicate check failed", "scope", req.Scope, "error", err)
		} else if nearHash != "" && nearHash != hash {
			resp.NearDuplicateHash = nearHash
			resp.NearDupSimilarity = nearSim
		}
	}

	threshold := req.Threshold
	if threshold == 0 {
		threshold = models.DefaultThreshold
	}
	meta := req.Metadata
	if meta.Version == 0 {
		meta.Version = models.MetadataVersion
	}

	now := time.Now().Unix()
	rec := &models.MemoryRecord{
		ScopeID:     req.Scope,
		ContentHash: hash,
		Content:     content,
		ContentType: req.ContentType,
		Embedding:   vector.Float32ToBytes(vec),
		Dimension:   len(vec),
		Metadata:    meta,
		Threshold:   threshold,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	inserted, err := s.records.InsertIfAbsent(ctx, rec)
	if err != nil {
		return nil, err
	}
	// A concurrent store of the same content may have won the race; both
	// callers converge on the same hash either way.
	resp.Deduplicated = !inserted
	return resp, nil
}

// Get fetches a record by scope and content hash, or nil when absent.
func (s *Service) Get(ctx context.Context, scopeID, hash string) (*models.MemoryRecord, error) {
	return s.records.GetByHash(ctx, scopeID, hash)
}

// Update replaces a record's content under a recomputed hash and embedding.
// Logically a delete+insert: the old hash is superseded, never mutated.
// Returns the new hash.
func (s *Service) Update(ctx context.Context, scopeID, oldHash string, req *models.UpdateRequest) (string, error) {
	old, err := s.records.GetByHash(ctx, scopeID, oldHash)
	if err != nil {
		return "", err
	}
	if old == nil {
		return "", fmt.Errorf("%w: record %s in scope %s", models.ErrNotFound, oldHash, scopeID)
	}

	content := privacy.Scrub(req.Content)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: content is empty", models.ErrValidation)
	}

	newHash := embedding.ContentHash(content)

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed updated content: %w", err)
	}

	meta := old.Metadata
	if req.Metadata != nil {
		meta = *req.Metadata
		if meta.Version == 0 {
			meta.Version = models.MetadataVersion
		}
	}

	now := time.Now().Unix()
	rec := &models.MemoryRecord{
		ScopeID:     scopeID,
		ContentHash: newHash,
		Content:     content,
		ContentType: old.ContentType,
		Embedding:   vector.Float32ToBytes(vec),
		Dimension:   len(vec),
		Metadata:    meta,
		Threshold:   old.Threshold,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.records.Replace(ctx, scopeID, oldHash, rec); err != nil {
		return "", err
	}
	return newHash, nil
}

// Delete removes a record by hash.
func (s *Service) Delete(ctx context.Context, scopeID, hash string) error {
	return s.records.Delete(ctx, scopeID, hash)
}

// List returns a scope's records, optionally filtered by content type.
func (s *Service) List(ctx context.Context, scopeID string, types ...models.ContentType) ([]*models.MemoryRecord, error) {
	for _, t := range types {
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: unknown content type %q", models.ErrValidation, t)
		}
	}
	return s.records.ListByScope(ctx, scopeID, types...)
}

// ListScopes returns all registered scopes.
func (s *Service) ListScopes(ctx context.Context) ([]models.Scope, error) {
	return s.scopes.List(ctx)
}

// DeleteScope removes a scope and everything owned by it. Records and
// derived clusters cascade. This is the orphan cleanup path.
func (s *Service) DeleteScope(ctx context.Context, scopeID string) error {
	return s.scopes.Delete(ctx, scopeID)
}
