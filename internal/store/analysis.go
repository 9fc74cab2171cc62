package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jward/codegraph/internal/cache"
	"github.com/jward/codegraph/internal/model"
)

var _ cache.Persister = (*Store)(nil)

// LoadAnalysisCache reads the cache for project. It returns (nil, nil) when
// no cache exists, when the stored version differs from cache.Version, or
// when an entry cannot be decoded.
func (s *Store) LoadAnalysisCache(project string) (*cache.Cache, error) {
	var (
		version   int
		updatedAt time.Time
	)
	err := s.db.QueryRow(
		"SELECT version, updated_at FROM analysis_caches WHERE project_path = ?", project,
	).Scan(&version, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis cache: %w", err)
	}
	if version != cache.Version {
		s.logger.Info("cache.version_mismatch", "project", project, "stored", version, "want", cache.Version)
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT function_id, content_hash, summary, flags, model, analyzed_at
		 FROM analysis_entries WHERE project_path = ?`, project,
	)
	if err != nil {
		return nil, fmt.Errorf("load analysis entries: %w", err)
	}
	defer rows.Close()

	entries := map[string]cache.Entry{}
	for rows.Next() {
		var (
			id, flags string
			modelName sql.NullString
			e         cache.Entry
		)
		if err := rows.Scan(&id, &e.ContentHash, &e.Result.Summary, &flags, &modelName, &e.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("scan analysis entry: %w", err)
		}
		if err := json.Unmarshal([]byte(flags), &e.Result.Flags); err != nil {
			s.logger.Warn("cache.corrupt", "project", project, "function", id, "err", err)
			return nil, nil
		}
		e.Model = modelName.String
		entries[id] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load analysis entries: %w", err)
	}
	return cache.Restore(project, updatedAt, entries), nil
}

// SaveAnalysisCache replaces the stored cache for c.ProjectPath in one
// transaction.
func (s *Store) SaveAnalysisCache(c *cache.Cache) error {
	entries, updatedAt := c.Snapshot()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save analysis cache: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO analysis_caches (project_path, version, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(project_path) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`,
		c.ProjectPath, c.Version, updatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("save analysis cache: header: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM analysis_entries WHERE project_path = ?", c.ProjectPath); err != nil {
		return fmt.Errorf("save analysis cache: clear: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO analysis_entries (project_path, function_id, content_hash, summary, flags, model, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("save analysis cache: prepare: %w", err)
	}
	defer stmt.Close()

	for id, e := range entries {
		if _, err := stmt.Exec(c.ProjectPath, id, e.ContentHash, e.Result.Summary,
			marshalFlags(e.Result.Flags), nullString(e.Model), e.AnalyzedAt.UTC()); err != nil {
			return fmt.Errorf("save analysis cache: entry %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// DeleteAnalysisCache drops the cache of project.
func (s *Store) DeleteAnalysisCache(project string) error {
	if _, err := s.db.Exec("DELETE FROM analysis_caches WHERE project_path = ?", project); err != nil {
		return fmt.Errorf("delete analysis cache: %w", err)
	}
	return nil
}

func marshalFlags(f model.BehaviorFlags) string {
	b, _ := json.Marshal(f)
	return string(b)
}
