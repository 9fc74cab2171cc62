package codegraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codegraph/internal/cache"
	"github.com/jward/codegraph/internal/model"
	"github.com/jward/codegraph/internal/store"
)

// fakeAnalyzer records calls and fails for function names listed in fail.
type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeAnalyzer) Model() string { return "fake-model" }

func (f *fakeAnalyzer) Analyze(ctx context.Context, fn FunctionInput) (BehaviorResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, fn.ID)
	f.mu.Unlock()

	if f.fail[fn.Name] {
		return BehaviorResult{}, errors.New("connection refused")
	}
	res := BehaviorResult{Summary: "Summarizes " + fn.Name}
	if strings.Contains(fn.Source, "fetch(") {
		res.Flags.MakesNetworkCalls = true
		res.Flags.HasSideEffects = true
	}
	return res, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memoryPersister keeps the last saved cache.
type memoryPersister struct {
	saved *cache.Cache
	saves int
}

func (m *memoryPersister) LoadAnalysisCache(string) (*cache.Cache, error) { return m.saved, nil }
func (m *memoryPersister) SaveAnalysisCache(c *cache.Cache) error {
	m.saved = c
	m.saves++
	return nil
}

var analyzeProject = map[string]string{
	"src/api.ts": `export async function load(id) {
  return fetch("/users/" + id);
}

export function format(user) {
  return user.name;
}
`,
	"src/store.ts": `export class Store {
  get(key) {
    return this.items[key];
  }
}
`,
}

// =============================================================================
// Analyze
// =============================================================================

func TestAnalyze_AttachesResults(t *testing.T) {
	t.Parallel()

	root := writeProject(t, analyzeProject)
	fa := &fakeAnalyzer{}
	p := &memoryPersister{}
	e := newTestEngine(WithAnalyzer(fa), WithCacheStore(p))
	result := scan(t, e, root, ScanOptions{SkipWarnings: true})

	var events []AnalyzeEvent
	report, err := e.Analyze(context.Background(), result, AnalyzeOptions{
		OnResult: func(ev AnalyzeEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)
	assert.Equal(t, &AnalyzeReport{Functions: 3, Analyzed: 3}, report)
	assert.Len(t, events, 3)
	assert.Equal(t, 3, fa.callCount())

	load := result.Nodes.Function(model.FunctionID("src/api.ts", "load", 1))
	require.NotNil(t, load.Behavior)
	assert.Equal(t, "Summarizes load", load.Behavior.Summary)
	assert.True(t, load.Behavior.Flags.MakesNetworkCalls)
	assert.Equal(t, 3, result.Stats.AnalyzedFunctions)
	assert.Equal(t, 0, result.Stats.PendingFunctions)

	require.Equal(t, 1, p.saves)
	assert.Equal(t, 3, p.saved.Len())
	entry, ok := p.saved.Entry(load.ID)
	require.True(t, ok)
	assert.Equal(t, "fake-model", entry.Model)
	assert.Equal(t, load.ContentHash, entry.ContentHash)
}

func TestAnalyze_ReusesCacheUntilSourceChanges(t *testing.T) {
	t.Parallel()

	root := writeProject(t, analyzeProject)
	fa := &fakeAnalyzer{}
	p := &memoryPersister{}
	e := newTestEngine(WithAnalyzer(fa), WithCacheStore(p))

	first := scan(t, e, root, ScanOptions{SkipWarnings: true})
	_, err := e.Analyze(context.Background(), first, AnalyzeOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, fa.callCount())

	second := scan(t, e, root, ScanOptions{SkipWarnings: true})
	report, err := e.Analyze(context.Background(), second, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.CacheHits)
	assert.Equal(t, 0, report.Analyzed)
	assert.Equal(t, 3, fa.callCount())
	assert.Equal(t, 3, second.Stats.AnalyzedFunctions)

	writeFile(t, root, "src/api.ts", strings.Replace(analyzeProject["src/api.ts"], "user.name", "user.fullName", 1))
	third := scan(t, e, root, ScanOptions{SkipWarnings: true})
	report, err = e.Analyze(context.Background(), third, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.CacheHits)
	assert.Equal(t, 1, report.Analyzed)
	assert.Equal(t, 4, fa.callCount())

	report, err = e.Analyze(context.Background(), third, AnalyzeOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 0, report.CacheHits)
	assert.Equal(t, 3, report.Analyzed)
	assert.Equal(t, 7, fa.callCount())
}

func TestAnalyze_PrunesRemovedFunctions(t *testing.T) {
	t.Parallel()

	root := writeProject(t, analyzeProject)
	p := &memoryPersister{saved: cache.New("")}
	e := newTestEngine(WithAnalyzer(&fakeAnalyzer{}), WithCacheStore(p))
	result := scan(t, e, root, ScanOptions{SkipWarnings: true})

	p.saved.Set("function:src/gone.ts:old:1", "abc", model.BehaviorResult{Summary: "gone"}, "m")
	report, err := e.Analyze(context.Background(), result, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pruned)
	_, ok := p.saved.Entry("function:src/gone.ts:old:1")
	assert.False(t, ok)
	assert.Equal(t, 3, p.saved.Len())
}

func TestAnalyze_FailuresStayPending(t *testing.T) {
	t.Parallel()

	root := writeProject(t, analyzeProject)
	fa := &fakeAnalyzer{fail: map[string]bool{"format": true}}
	p := &memoryPersister{}
	e := newTestEngine(WithAnalyzer(fa), WithCacheStore(p))
	result := scan(t, e, root, ScanOptions{SkipWarnings: true})

	var failed []string
	report, err := e.Analyze(context.Background(), result, AnalyzeOptions{
		OnResult: func(ev AnalyzeEvent) {
			if ev.Err != nil {
				failed = append(failed, ev.FunctionID)
			}
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 analyses failed")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Analyzed)

	formatID := model.FunctionID("src/api.ts", "format", 5)
	assert.Equal(t, []string{formatID}, failed)
	assert.Nil(t, result.Nodes.Function(formatID).Behavior)
	assert.Equal(t, 1, result.Stats.PendingFunctions)

	_, cached := p.saved.Entry(formatID)
	assert.False(t, cached, "failures are not cached")
	assert.Equal(t, 2, p.saved.Len())
}

func TestAnalyze_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	root := writeProject(t, manyFiles(12))
	fa := &fakeAnalyzer{delay: 20 * time.Millisecond}
	e := newTestEngine(WithAnalyzer(fa), WithAnalyzeConcurrency(2))
	result := scan(t, e, root, ScanOptions{SkipWarnings: true})

	report, err := e.Analyze(context.Background(), result, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 24, report.Analyzed)
	assert.LessOrEqual(t, fa.maxSeen.Load(), int32(2))
	assert.Equal(t, int32(2), fa.maxSeen.Load())
}

func TestAnalyze_NoAnalyzer(t *testing.T) {
	t.Parallel()

	_, err := newTestEngine().Analyze(context.Background(), &ScanResult{Nodes: model.NodeMap{}}, AnalyzeOptions{})
	assert.ErrorIs(t, err, ErrNoAnalyzer)
}

func TestAnalyze_SourceUnavailable(t *testing.T) {
	t.Parallel()

	result := &ScanResult{Nodes: model.NodeMap{}}
	result.Nodes.Add(model.NewFunctionNode(&model.FunctionNode{
		ID: "function:src/a.ts:a:1", Name: "a", FilePath: "src/a.ts", StartLine: 1, EndLine: 1, ContentHash: "h",
	}))
	fa := &fakeAnalyzer{}
	report, err := newTestEngine(WithAnalyzer(fa)).Analyze(context.Background(), result, AnalyzeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source unavailable")
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, fa.callCount())
}

func TestAnalyze_PersistsThroughStore(t *testing.T) {
	t.Parallel()

	st, err := store.NewStore(filepath.Join(t.TempDir(), "codegraph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate())

	root := writeProject(t, analyzeProject)
	fa := &fakeAnalyzer{}
	e := newTestEngine(WithAnalyzer(fa), WithCacheStore(st))

	first := scan(t, e, root, ScanOptions{SkipWarnings: true})
	_, err = e.Analyze(context.Background(), first, AnalyzeOptions{})
	require.NoError(t, err)

	loaded, err := st.LoadAnalysisCache(first.ProjectPath)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 3, loaded.Len())

	second := scan(t, newTestEngine(), root, ScanOptions{SkipWarnings: true})
	report, err := newTestEngine(WithAnalyzer(fa), WithCacheStore(st)).Analyze(context.Background(), second, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.CacheHits)
	assert.Equal(t, 3, fa.callCount())
}

func writeFile(t *testing.T, root, rel, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(src), 0o644))
}
