package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codegraph/internal/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleResult(summary string) model.BehaviorResult {
	r := model.BehaviorResult{Summary: summary}
	r.Flags.MakesNetworkCalls = true
	r.Flags.HasSideEffects = true
	return r
}

func TestGetSet_RoundTrip(t *testing.T) {
	t.Parallel()

	c := New("/proj")
	src := "function a() { return fetch(url); }"
	hash := ContentHash(src)

	c.Set("function:a.ts:a:1", hash, sampleResult("Fetches url"), "gpt-4o-mini")

	got, ok := c.Get("function:a.ts:a:1", hash)
	require.True(t, ok)
	assert.Equal(t, sampleResult("Fetches url"), got)

	// One changed character is a different hash and a miss.
	changed := ContentHash("function a() { return fetch(uri); }")
	assert.NotEqual(t, hash, changed)
	_, ok = c.Get("function:a.ts:a:1", changed)
	assert.False(t, ok)

	_, ok = c.Get("function:a.ts:other:1", hash)
	assert.False(t, ok)
}

func TestSet_UpdatesTimestamps(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := start
	c := New("/proj", WithClock(func() time.Time { return now }))
	assert.Equal(t, start, c.UpdatedAt)

	now = start.Add(time.Hour)
	c.Set("id", "h", sampleResult("x"), "m")
	e, ok := c.Entry("id")
	require.True(t, ok)
	assert.Equal(t, now, e.AnalyzedAt)
	assert.Equal(t, "m", e.Model)
	assert.Equal(t, now, c.UpdatedAt)
}

func TestPrune_RemovesExactlyInvalid(t *testing.T) {
	t.Parallel()

	c := New("/proj", WithClock(fixedClock(time.Unix(100, 0))))
	for _, id := range []string{"a", "b", "c", "d"} {
		c.Set(id, "hash-"+id, sampleResult(id), "m")
	}
	before, _ := c.Snapshot()

	removed := c.Prune([]string{"a", "c", "zzz"})
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"a", "c"}, c.IDs())

	after, _ := c.Snapshot()
	assert.Equal(t, before["a"], after["a"])
	assert.Equal(t, before["c"], after["c"])

	assert.Equal(t, 0, c.Prune([]string{"a", "c"}))
}

func TestContentHash_Deterministic(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash("x"), ContentHash("x"))
	assert.Len(t, ContentHash("x"), 32)
	assert.NotEqual(t, ContentHash("x"), ContentHash("y"))
}

func TestFileHash_MatchesContentHash(t *testing.T) {
	t.Parallel()

	src := strings.Repeat("export const x = 1;\n", 500)
	path := filepath.Join(t.TempDir(), "a.ts")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	got, err := FileHash(path)
	require.NoError(t, err)
	assert.Equal(t, ContentHash(src), got)

	_, err = FileHash(filepath.Join(t.TempDir(), "missing.ts"))
	assert.Error(t, err)
}

type fakePersister struct {
	cache *Cache
	err   error
}

func (f *fakePersister) LoadAnalysisCache(string) (*Cache, error) { return f.cache, f.err }
func (f *fakePersister) SaveAnalysisCache(c *Cache) error         { f.cache = c; return nil }

func TestOpen(t *testing.T) {
	t.Parallel()

	stored := Restore("/proj", time.Unix(5, 0), map[string]Entry{"a": {ContentHash: "h"}})
	c := Open(&fakePersister{cache: stored}, "/proj", nil)
	assert.Same(t, stored, c)

	// Absent and failing loads both start fresh.
	c = Open(&fakePersister{}, "/proj", nil)
	assert.Equal(t, 0, c.Len())
	c = Open(&fakePersister{err: errors.New("boom")}, "/proj", nil)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Version, c.Version)

	c = Open(nil, "/proj", nil)
	assert.Equal(t, "/proj", c.ProjectPath)
}
