package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/vector"
)

// ClusterStore persists derived cluster state. Clusters are always replaced
// wholesale: a run's output swaps the scope's previous set in one
// transaction, so concurrent readers see either the old or the new set,
// never a mix.
type ClusterStore struct {
	db *DB
}

func NewClusterStore(db *DB) *ClusterStore {
	return &ClusterStore{db: db}
}

// ReplaceForScope removes the scope's previous clusters and stores the new
// set atomically.
func (s *ClusterStore) ReplaceForScope(ctx context.Context, scopeID string, clusters []models.Cluster) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin cluster replace: %w", models.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM clusters WHERE scope_id = ?", scopeID); err != nil {
		return fmt.Errorf("%w: clear clusters: %w", models.ErrStorage, err)
	}

	for _, c := range clusters {
		membersJSON, err := json.Marshal(c.MemberHashes)
		if err != nil {
			return fmt.Errorf("%w: marshal cluster members: %w", models.ErrStorage, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clusters (
				id, scope_id, name, centroid, dimension,
				member_hashes, relevance, size, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			c.ID, c.ScopeID, c.Name, vector.Float32ToBytes(c.Centroid), c.Dimension,
			string(membersJSON), c.Relevance, c.Size, c.UpdatedAt,
		); err != nil {
			return fmt.Errorf("%w: insert cluster: %w", models.ErrStorage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit cluster replace: %w", models.ErrStorage, err)
	}
	return nil
}

// ListByScope returns the scope's current cluster set, largest first.
func (s *ClusterStore) ListByScope(ctx context.Context, scopeID string) ([]models.Cluster, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope_id, name, centroid, dimension,
		       member_hashes, relevance, size, updated_at
		FROM clusters WHERE scope_id = ?
		ORDER BY size DESC, name ASC
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("%w: list clusters: %w", models.ErrStorage, err)
	}
	defer rows.Close()

	var clusters []models.Cluster
	for rows.Next() {
		var c models.Cluster
		var centroid []byte
		var membersJSON string
		if err := rows.Scan(
			&c.ID, &c.ScopeID, &c.Name, &centroid, &c.Dimension,
			&membersJSON, &c.Relevance, &c.Size, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan cluster: %w", models.ErrStorage, err)
		}
		c.Centroid = vector.BytesToFloat32(centroid)
		if err := json.Unmarshal([]byte(membersJSON), &c.MemberHashes); err != nil {
			return nil, fmt.Errorf("%w: unmarshal cluster members: %w", models.ErrStorage, err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate clusters: %w", models.ErrStorage, err)
	}
	return clusters, nil
}
