package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/engram-labs/engram/internal/models"
)

// recordColumns is the canonical column list for all SELECT queries.
// Order must match scanOne/scanMany.
const recordColumns = `scope_id, content_hash, content, content_type,
	embedding, dimension, metadata, threshold, created_at, updated_at`

// RecordStore handles MemoryRecord persistence on SQLite. Records are
// content-addressed: the (scope_id, content_hash) primary key makes inserts
// of identical content converge on one row.
type RecordStore struct {
	db *DB
}

func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// InsertIfAbsent stores a record unless its hash already exists in the scope.
// Returns true when a new row was written. Two concurrent inserts of the same
// content both succeed; exactly one row lands.
func (s *RecordStore) InsertIfAbsent(ctx context.Context, rec *models.MemoryRecord) (bool, error) {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return false, fmt.Errorf("%w: marshal metadata: %w", models.ErrStorage, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (
			scope_id, content_hash, content, content_type,
			embedding, dimension, metadata, threshold, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope_id, content_hash) DO NOTHING
	`,
		rec.ScopeID, rec.ContentHash, rec.Content, string(rec.ContentType),
		rec.Embedding, rec.Dimension, string(metaJSON), rec.Threshold,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("%w: insert record: %w", models.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetByHash fetches a single record, or nil if the hash is unknown in the scope.
func (s *RecordStore) GetByHash(ctx context.Context, scopeID, hash string) (*models.MemoryRecord, error) {
	rec, err := scanOne(s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM records WHERE scope_id = ? AND content_hash = ?`, recordColumns),
		scopeID, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get record: %w", models.ErrStorage, err)
	}
	return rec, nil
}

// Delete removes a record by hash. Unknown hashes are reported as ErrNotFound.
func (s *RecordStore) Delete(ctx context.Context, scopeID, hash string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE scope_id = ? AND content_hash = ?", scopeID, hash)
	if err != nil {
		return fmt.Errorf("%w: delete record: %w", models.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: record %s in scope %s", models.ErrNotFound, hash, scopeID)
	}
	return nil
}

// Replace swaps an old record for a new one in a single transaction. Used by
// update, which is logically a delete+insert under a new content hash.
func (s *RecordStore) Replace(ctx context.Context, scopeID, oldHash string, rec *models.MemoryRecord) error {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %w", models.ErrStorage, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin replace: %w", models.ErrStorage, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM records WHERE scope_id = ? AND content_hash = ?", scopeID, oldHash)
	if err != nil {
		return fmt.Errorf("%w: delete old record: %w", models.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: record %s in scope %s", models.ErrNotFound, oldHash, scopeID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO records (
			scope_id, content_hash, content, content_type,
			embedding, dimension, metadata, threshold, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope_id, content_hash) DO UPDATE SET
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`,
		rec.ScopeID, rec.ContentHash, rec.Content, string(rec.ContentType),
		rec.Embedding, rec.Dimension, string(metaJSON), rec.Threshold,
		rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return fmt.Errorf("%w: insert new record: %w", models.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit replace: %w", models.ErrStorage, err)
	}
	return nil
}

// ListByScope returns all records in a scope, optionally filtered by content
// type. The result carries embeddings; this is the candidate set for the
// brute-force similarity scan.
func (s *RecordStore) ListByScope(ctx context.Context, scopeID string, types ...models.ContentType) ([]*models.MemoryRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM records WHERE scope_id = ?`, recordColumns)
	args := []any{scopeID}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += fmt.Sprintf(" AND content_type IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %w", models.ErrStorage, err)
	}
	defer rows.Close()
	return scanMany(rows)
}

// CountByScope returns the number of records in a scope.
func (s *RecordStore) CountByScope(ctx context.Context, scopeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE scope_id = ?", scopeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count records: %w", models.ErrStorage, err)
	}
	return count, nil
}

// Touch bumps a record's updated_at without changing its identity.
func (s *RecordStore) Touch(ctx context.Context, scopeID, hash string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE records SET updated_at = ? WHERE scope_id = ? AND content_hash = ?",
		time.Now().Unix(), scopeID, hash)
	if err != nil {
		return fmt.Errorf("%w: touch record: %w", models.ErrStorage, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.MemoryRecord, error) {
	var rec models.MemoryRecord
	var contentType string
	var metaJSON sql.NullString

	if err := row.Scan(
		&rec.ScopeID, &rec.ContentHash, &rec.Content, &contentType,
		&rec.Embedding, &rec.Dimension, &metaJSON, &rec.Threshold,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.ContentType = models.ContentType(contentType)
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}

func scanOne(row *sql.Row) (*models.MemoryRecord, error) {
	return scanRecord(row)
}

func scanMany(rows *sql.Rows) ([]*models.MemoryRecord, error) {
	var result []*models.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan record: %w", models.ErrStorage, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %w", models.ErrStorage, err)
	}
	return result, nil
}
