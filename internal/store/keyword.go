package store

import (
	"context"
	"fmt"

	"github.com/engram-labs/engram/internal/models"
)

// KeywordResult holds an FTS5 match.
type KeywordResult struct {
	ContentHash string
	Rank        float64
}

// KeywordStore handles full-text search via SQLite FTS5. It backs the
// non-semantic fallback used when the embedding provider is unreachable;
// semantic search never consults it.
type KeywordStore struct {
	db *DB
}

func NewKeywordStore(db *DB) *KeywordStore {
	return &KeywordStore{db: db}
}

// Search performs BM25 full-text search within a scope. Results are ranked
// best-first; bm25() returns negative values where more negative = better,
// so the rank is negated into a positive higher-is-better score.
func (s *KeywordStore) Search(ctx context.Context, scopeID, query string, limit int) ([]KeywordResult, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.content_hash, -rank AS score
		FROM records_fts
		JOIN records r ON r.rowid = records_fts.rowid
		WHERE records_fts MATCH ?
		  AND r.scope_id = ?
		ORDER BY rank
		LIMIT ?
	`, query, scopeID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword search: %w", models.ErrStorage, err)
	}
	defer rows.Close()

	var results []KeywordResult
	for rows.Next() {
		var r KeywordResult
		if err := rows.Scan(&r.ContentHash, &r.Rank); err != nil {
			return nil, fmt.Errorf("%w: scan keyword result: %w", models.ErrStorage, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate keyword results: %w", models.ErrStorage, err)
	}
	return results, nil
}
