package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/engram-labs/engram/internal/models"
)

// DB wraps the SQLite connection with initialization logic.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at the given path, runs schema
// initialization, and configures WAL mode for concurrent reads. Pass
// ":memory:" for an ephemeral database in tests.
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create db directory: %w", models.ErrStorage, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", models.ErrStorage, err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %w", models.ErrStorage, err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS scopes (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  last_accessed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
  scope_id TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  content TEXT NOT NULL,
  content_type TEXT NOT NULL,
  embedding BLOB NOT NULL,
  dimension INTEGER NOT NULL,
  metadata TEXT,
  threshold REAL NOT NULL DEFAULT 0.3,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (scope_id, content_hash),
  FOREIGN KEY (scope_id) REFERENCES scopes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_records_scope ON records(scope_id);
CREATE INDEX IF NOT EXISTS idx_records_scope_type ON records(scope_id, content_type);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);

CREATE TABLE IF NOT EXISTS clusters (
  id TEXT PRIMARY KEY,
  scope_id TEXT NOT NULL,
  name TEXT NOT NULL,
  centroid BLOB NOT NULL,
  dimension INTEGER NOT NULL,
  member_hashes TEXT NOT NULL,
  relevance REAL NOT NULL DEFAULT 0.0,
  size INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  FOREIGN KEY (scope_id) REFERENCES scopes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_clusters_scope ON clusters(scope_id);

CREATE TABLE IF NOT EXISTS embedding_cache (
  content_hash TEXT PRIMARY KEY,
  embedding BLOB NOT NULL,
  dimension INTEGER NOT NULL,
  model TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	// FTS5 virtual table and triggers are created separately since
	// IF NOT EXISTS isn't always supported for virtual tables in older SQLite.
	fts := `
CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
  content, content_type,
  content='records', content_rowid='rowid'
);
`
	if _, err := db.Exec(fts); err != nil {
		return fmt.Errorf("create fts table: %w", err)
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS records_ai AFTER INSERT ON records BEGIN
  INSERT INTO records_fts(rowid, content, content_type)
  VALUES (NEW.rowid, NEW.content, NEW.content_type);
END;`,
		`CREATE TRIGGER IF NOT EXISTS records_ad AFTER DELETE ON records BEGIN
  INSERT INTO records_fts(records_fts, rowid, content, content_type)
  VALUES ('delete', OLD.rowid, OLD.content, OLD.content_type);
END;`,
		`CREATE TRIGGER IF NOT EXISTS records_au AFTER UPDATE ON records BEGIN
  INSERT INTO records_fts(records_fts, rowid, content, content_type)
  VALUES ('delete', OLD.rowid, OLD.content, OLD.content_type);
  INSERT INTO records_fts(rowid, content, content_type)
  VALUES (NEW.rowid, NEW.content, NEW.content_type);
END;`,
	}

	for _, t := range triggers {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("create trigger: %w", err)
		}
	}

	return nil
}

// RecordCount returns the total number of records in the database.
func (db *DB) RecordCount() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM records").Scan(&count)
	return count, err
}
