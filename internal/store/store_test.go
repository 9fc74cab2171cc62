package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codegraph/internal/cache"
	"github.com/jward/codegraph/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func testScan(id, project string, created time.Time) *model.ScanResult {
	nodes := model.NodeMap{}
	nodes.Add(model.NewFileNode(&model.FileNode{ID: model.FileID("a.ts"), Path: "a.ts", Name: "a.ts"}))
	nodes.Add(model.NewFunctionNode(&model.FunctionNode{
		ID: model.FunctionID("a.ts", "run", 1), Name: "run", FilePath: "a.ts",
		StartLine: 1, EndLine: 3, References: []string{},
		Source: "function run() {}",
	}))
	stats := model.NewScanStats()
	stats.TotalFiles = 1
	stats.TotalFunctions = 1
	stats.TotalNodes = 2
	stats.WarningsByLevel[model.LevelError] = 1
	stats.WarningsByLevel[model.LevelWarning] = 2
	return &model.ScanResult{
		ID:          id,
		ProjectPath: project,
		ProjectName: filepath.Base(project),
		Status:      model.ScanStatusComplete,
		CreatedAt:   created,
		CompletedAt: created.Add(time.Second),
		Stats:       stats,
		Nodes:       nodes,
		Warnings: []model.Warning{
			{ID: "w1", Category: "unresolved-import", Level: model.LevelError, DetectedAt: created},
		},
		TreeHash: "tree-" + id,
	}
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"metadata", "scans", "analysis_caches", "analysis_entries"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}

	v, ok, err := s.Meta("schema_version")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMeta(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, ok, err := s.Meta("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMeta("k", "one"))
	require.NoError(t, s.SetMeta("k", "two"))
	v, ok, err := s.Meta("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)
}

// =============================================================================
// Scans
// =============================================================================

func TestSaveScan_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveScan(testScan("s1", "/proj", created)))

	got, err := s.GetScan("s1")
	require.NoError(t, err)
	assert.Equal(t, "/proj", got.ProjectPath)
	assert.Equal(t, model.ScanStatusComplete, got.Status)
	assert.Equal(t, 2, len(got.Nodes))
	fn := got.Nodes.Function(model.FunctionID("a.ts", "run", 1))
	require.NotNil(t, fn)
	assert.Empty(t, fn.Source, "source is not persisted")
	assert.Equal(t, 1, got.Stats.WarningsByLevel[model.LevelError])
	require.Len(t, got.Warnings, 1)
	assert.True(t, created.Equal(got.Warnings[0].DetectedAt))

	summaries, err := s.ListScans("/proj")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 84, summaries[0].HealthScore)
	assert.Equal(t, 1, summaries[0].WarningCount)
	assert.Equal(t, "tree-s1", summaries[0].TreeHash)
	assert.True(t, created.Equal(summaries[0].CreatedAt))
}

func TestListScans_NewestFirstAndFiltered(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveScan(testScan("old", "/proj", base)))
	require.NoError(t, s.SaveScan(testScan("new", "/proj", base.Add(time.Hour))))
	require.NoError(t, s.SaveScan(testScan("other", "/elsewhere", base.Add(2*time.Hour))))

	summaries, err := s.ListScans("/proj")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "new", summaries[0].ID)
	assert.Equal(t, "old", summaries[1].ID)

	all, err := s.ListScans("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	latest, err := s.LatestScan("/proj")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "new", latest.ID)

	none, err := s.LatestScan("/nothing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDeleteScan(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.SaveScan(testScan("s1", "/proj", time.Now())))
	require.NoError(t, s.DeleteScan("s1"))

	_, err := s.GetScan("s1")
	assert.True(t, errors.Is(err, ErrScanNotFound))

	err = s.DeleteScan("s1")
	assert.True(t, errors.Is(err, ErrScanNotFound))
}

// =============================================================================
// Analysis cache
// =============================================================================

func TestAnalysisCache_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := cache.New("/proj", cache.WithClock(func() time.Time { return at }))
	result := model.BehaviorResult{Summary: "Writes the report to disk"}
	result.Flags.WritesFiles = true
	result.Flags.HasSideEffects = true
	c.Set("function:a.ts:save:1", "h1", result, "gpt-4o-mini")
	c.Set("function:a.ts:pure:9", "h2", model.BehaviorResult{Summary: "Adds numbers"}, "gpt-4o-mini")

	require.NoError(t, s.SaveAnalysisCache(c))

	loaded, err := s.LoadAnalysisCache("/proj")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 2, loaded.Len())

	got, ok := loaded.Get("function:a.ts:save:1", "h1")
	require.True(t, ok)
	assert.Equal(t, result, got)

	e, ok := loaded.Entry("function:a.ts:save:1")
	require.True(t, ok)
	assert.True(t, at.Equal(e.AnalyzedAt))
	assert.Equal(t, "gpt-4o-mini", e.Model)

	// Saving after a prune drops the removed rows.
	loaded.Prune([]string{"function:a.ts:pure:9"})
	require.NoError(t, s.SaveAnalysisCache(loaded))
	again, err := s.LoadAnalysisCache("/proj")
	require.NoError(t, err)
	assert.Equal(t, []string{"function:a.ts:pure:9"}, again.IDs())
}

func TestAnalysisCache_AbsentAndVersionMismatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	c, err := s.LoadAnalysisCache("/proj")
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, s.SaveAnalysisCache(cache.New("/proj")))
	_, err = s.db.Exec("UPDATE analysis_caches SET version = ? WHERE project_path = ?", cache.Version+1, "/proj")
	require.NoError(t, err)

	c, err = s.LoadAnalysisCache("/proj")
	require.NoError(t, err)
	assert.Nil(t, c, "a different version is treated as absent")
}

func TestAnalysisCache_CorruptEntryTreatedAbsent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	c := cache.New("/proj")
	c.Set("id", "h", model.BehaviorResult{Summary: "x"}, "m")
	require.NoError(t, s.SaveAnalysisCache(c))
	_, err := s.db.Exec("UPDATE analysis_entries SET flags = 'not json'")
	require.NoError(t, err)

	loaded, err := s.LoadAnalysisCache("/proj")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDeleteAnalysisCache_Cascades(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	c := cache.New("/proj")
	c.Set("id", "h", model.BehaviorResult{Summary: "x"}, "m")
	require.NoError(t, s.SaveAnalysisCache(c))
	require.NoError(t, s.DeleteAnalysisCache("/proj"))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM analysis_entries").Scan(&n))
	assert.Equal(t, 0, n)
}
