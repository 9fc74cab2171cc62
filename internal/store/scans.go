package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jward/codegraph/internal/model"
)

// ScanSummary is the row-level view of a stored scan, without the document.
type ScanSummary struct {
	ID             string           `json:"id"`
	ProjectPath    string           `json:"projectPath"`
	ProjectName    string           `json:"projectName"`
	Status         model.ScanStatus `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    time.Time        `json:"completedAt"`
	HealthScore    int              `json:"healthScore"`
	TotalFiles     int              `json:"totalFiles"`
	TotalFunctions int              `json:"totalFunctions"`
	TotalClasses   int              `json:"totalClasses"`
	WarningCount   int              `json:"warningCount"`
	ErrorCount     int              `json:"errorCount"`
	TreeHash       string           `json:"treeHash,omitempty"`
}

const summaryColumns = `id, project_path, project_name, status, created_at, completed_at,
	health_score, total_files, total_functions, total_classes, warning_count, error_count, tree_hash`

// SaveScan stores r, replacing any scan with the same id. The health score
// is derived from the warning counts.
func (s *Store) SaveScan(r *model.ScanResult) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("save scan: encode: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO scans (`+summaryColumns+`, document)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectPath, r.ProjectName, string(r.Status),
		r.CreatedAt.UTC(), r.CompletedAt.UTC(),
		model.HealthScore(r.Stats.WarningsByLevel),
		r.Stats.TotalFiles, r.Stats.TotalFunctions, r.Stats.TotalClasses,
		len(r.Warnings), len(r.Errors), nullString(r.TreeHash), string(doc),
	)
	if err != nil {
		return fmt.Errorf("save scan %s: %w", r.ID, err)
	}
	return nil
}

// GetScan returns the full scan document for id.
func (s *Store) GetScan(id string) (*model.ScanResult, error) {
	var doc string
	err := s.db.QueryRow("SELECT document FROM scans WHERE id = ?", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get scan %s: %w", id, ErrScanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", id, err)
	}
	r := &model.ScanResult{}
	if err := json.Unmarshal([]byte(doc), r); err != nil {
		return nil, fmt.Errorf("get scan %s: decode: %w", id, err)
	}
	return r, nil
}

// ListScans returns summaries newest first. An empty project lists all
// projects.
func (s *Store) ListScans(project string) ([]*ScanSummary, error) {
	q := "SELECT " + summaryColumns + " FROM scans"
	var args []any
	if project != "" {
		q += " WHERE project_path = ?"
		args = append(args, project)
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()
	var out []*ScanSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list scans: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// LatestScan returns the newest summary for project, or nil when there is
// none.
func (s *Store) LatestScan(project string) (*ScanSummary, error) {
	row := s.db.QueryRow(
		"SELECT "+summaryColumns+" FROM scans WHERE project_path = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		project,
	)
	sum, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest scan: %w", err)
	}
	return sum, nil
}

// DeleteScans removes the scans with the given ids and returns how many
// rows went away.
func (s *Store) DeleteScans(ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.Exec("DELETE FROM scans WHERE id IN ("+placeholderList(len(ids))+")", stringsToArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("delete scans: %w", err)
	}
	return res.RowsAffected()
}

// DeleteScan removes one scan. ErrScanNotFound when it does not exist.
func (s *Store) DeleteScan(id string) error {
	n, err := s.DeleteScans(id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("delete scan %s: %w", id, ErrScanNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(r rowScanner) (*ScanSummary, error) {
	sum := &ScanSummary{}
	var (
		status    string
		completed sql.NullTime
		treeHash  sql.NullString
	)
	err := r.Scan(&sum.ID, &sum.ProjectPath, &sum.ProjectName, &status, &sum.CreatedAt, &completed,
		&sum.HealthScore, &sum.TotalFiles, &sum.TotalFunctions, &sum.TotalClasses,
		&sum.WarningCount, &sum.ErrorCount, &treeHash)
	if err != nil {
		return nil, err
	}
	sum.Status = model.ScanStatus(status)
	sum.CompletedAt = completed.Time
	sum.TreeHash = treeHash.String
	return sum, nil
}
