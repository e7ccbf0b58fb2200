package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/engram-labs/engram/internal/models"
)

// ScopeStore handles project scope registration and cleanup.
type ScopeStore struct {
	db *DB
}

func NewScopeStore(db *DB) *ScopeStore {
	return &ScopeStore{db: db}
}

// Ensure registers a scope if it doesn't exist, or updates last_accessed_at
// if it does.
func (s *ScopeStore) Ensure(ctx context.Context, scopeID string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scopes (id, name, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_accessed_at = ?
	`, scopeID, scopeID, now, now, now)
	if err != nil {
		return fmt.Errorf("%w: ensure scope: %w", models.ErrStorage, err)
	}
	return nil
}

// Get fetches a scope, or nil when unknown.
func (s *ScopeStore) Get(ctx context.Context, scopeID string) (*models.Scope, error) {
	var sc models.Scope
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, last_accessed_at FROM scopes WHERE id = ?
	`, scopeID).Scan(&sc.ID, &sc.Name, &sc.CreatedAt, &sc.LastAccessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get scope: %w", models.ErrStorage, err)
	}
	return &sc, nil
}

// List returns all registered scopes ordered by last access.
func (s *ScopeStore) List(ctx context.Context) ([]models.Scope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, last_accessed_at
		FROM scopes ORDER BY last_accessed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list scopes: %w", models.ErrStorage, err)
	}
	defer rows.Close()

	var scopes []models.Scope
	for rows.Next() {
		var sc models.Scope
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.CreatedAt, &sc.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("%w: scan scope: %w", models.ErrStorage, err)
		}
		scopes = append(scopes, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate scopes: %w", models.ErrStorage, err)
	}
	return scopes, nil
}

// Delete removes a scope. Records and clusters cascade via foreign keys, so
// this doubles as the orphan cleanup path.
func (s *ScopeStore) Delete(ctx context.Context, scopeID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scopes WHERE id = ?", scopeID)
	if err != nil {
		return fmt.Errorf("%w: delete scope: %w", models.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: scope %s", models.ErrNotFound, scopeID)
	}
	return nil
}
