package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is recorded in the metadata table by Migrate.
const SchemaVersion = 1

// ErrScanNotFound is returned when a scan id has no row.
var ErrScanNotFound = errors.New("scan not found")

// Store is the SQLite data access layer for scans, analysis caches and
// metadata.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for best-effort paths.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes and records the schema version.
// Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := s.SetMeta("schema_version", strconv.Itoa(SchemaVersion)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

-- Scan history

CREATE TABLE IF NOT EXISTS scans (
  id              TEXT PRIMARY KEY,
  project_path    TEXT NOT NULL,
  project_name    TEXT NOT NULL,
  status          TEXT NOT NULL,
  created_at      TIMESTAMP NOT NULL,
  completed_at    TIMESTAMP,
  health_score    INTEGER NOT NULL,
  total_files     INTEGER NOT NULL DEFAULT 0,
  total_functions INTEGER NOT NULL DEFAULT 0,
  total_classes   INTEGER NOT NULL DEFAULT 0,
  warning_count   INTEGER NOT NULL DEFAULT 0,
  error_count     INTEGER NOT NULL DEFAULT 0,
  tree_hash       TEXT,
  document        TEXT NOT NULL
);

-- Behavioral analysis cache

CREATE TABLE IF NOT EXISTS analysis_caches (
  project_path    TEXT PRIMARY KEY,
  version         INTEGER NOT NULL,
  updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_entries (
  project_path    TEXT NOT NULL REFERENCES analysis_caches(project_path) ON DELETE CASCADE,
  function_id     TEXT NOT NULL,
  content_hash    TEXT NOT NULL,
  summary         TEXT NOT NULL,
  flags           TEXT NOT NULL,
  model           TEXT,
  analyzed_at     TIMESTAMP NOT NULL,
  PRIMARY KEY (project_path, function_id)
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_scans_project ON scans(project_path, created_at);
CREATE INDEX IF NOT EXISTS idx_scans_tree_hash ON scans(tree_hash);
`

// SetMeta upserts a metadata value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// Meta returns a metadata value and whether it exists.
func (s *Store) Meta(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("meta %s: %w", key, err)
	}
	return v, true, nil
}
