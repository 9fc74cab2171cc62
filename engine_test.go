package codegraph

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codegraph/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, src := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	return root
}

func newTestEngine(opts ...Option) *Engine {
	base := []Option{WithGit(false), WithClock(func() time.Time { return fixedNow })}
	return New(append(base, opts...)...)
}

func scan(t *testing.T, e *Engine, root string, opts ScanOptions) *ScanResult {
	t.Helper()
	result, err := e.Scan(context.Background(), root, opts)
	require.NoError(t, err)
	return result
}

func warningTitles(ws []Warning) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Category+": "+w.Title)
	}
	return out
}

// sampleProject has one of each built-in warning except cycles and long
// functions.
var sampleProject = map[string]string{
	"tsconfig.json": `{
  // comments are allowed
  "compilerOptions": {
    "baseUrl": ".",
    "paths": { "@/*": ["src/*"] },
  }
}`,
	"src/index.ts": `import { greet } from './greet';
import { loadUser } from '@/users';
import Missing from './missing';

greet(loadUser(1));
`,
	"src/greet.ts": `export function greet(name) {
  return format(name);
}

function format(value) {
  return "Hello " + value;
}

function unusedHelper() {
  return 42;
}

export function neverImported() {
  return 1;
}
`,
	"src/users/index.ts": `export function loadUser(id) {
  return { id };
}
`,
	"src/App.vue": `<template><div /></template>
<script setup lang="ts">
import { greet } from './greet'
</script>
`,
	"src/greet.test.ts":              "export function testOnly() {}\n",
	"node_modules/lib/index.js":      "export function vendored() {}\n",
	"src/types.d.ts":                 "export declare function declared(): void;\n",
	"dist/index.js":                  "export function built() {}\n",
	"src/components/Button.svelte":   "<script>\nimport { loadUser } from '@/users'\n</script>\n",
	"src/components/Unrelated.astro": "---\nimport Layout from '../layouts/Base.astro'\n---\n",
}

// =============================================================================
// Scan
// =============================================================================

func TestScan_SampleProject(t *testing.T) {
	t.Parallel()

	root := writeProject(t, sampleProject)
	result := scan(t, newTestEngine(), root, ScanOptions{})

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, abs, result.ProjectPath)
	assert.Equal(t, filepath.Base(abs), result.ProjectName)
	assert.Equal(t, model.ScanStatusComplete, result.Status)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, fixedNow, result.CreatedAt)
	assert.Empty(t, result.Errors)

	var files []string
	for _, f := range result.Nodes.Files() {
		files = append(files, f.Path)
	}
	assert.Equal(t, []string{"src/greet.ts", "src/index.ts", "src/users/index.ts"}, files)

	assert.Equal(t, 3, result.Stats.TotalFiles)
	assert.Equal(t, 5, result.Stats.TotalFunctions)
	assert.Equal(t, 0, result.Stats.TotalClasses)
	assert.Equal(t, 8, result.Stats.TotalNodes)
	assert.Equal(t, 5, result.Stats.PendingFunctions)
	assert.Equal(t, 0, result.Stats.AnalyzedFunctions)

	assert.Equal(t, []string{
		"unresolved-import: Unresolved import '../layouts/Base.astro'",
		"unresolved-import: Unresolved import './missing'",
		"orphaned-function: Orphaned function unusedHelper",
		"unused-export: Unused export neverImported",
	}, warningTitles(result.Warnings))
	assert.Equal(t, map[model.Level]int{
		model.LevelError:   2,
		model.LevelWarning: 1,
		model.LevelInfo:    1,
	}, result.Stats.WarningsByLevel)
	for _, w := range result.Warnings {
		assert.Equal(t, fixedNow, w.DetectedAt)
		assert.NotEmpty(t, w.ID)
	}
}

func TestScan_SkipWarnings(t *testing.T) {
	t.Parallel()

	root := writeProject(t, sampleProject)
	result := scan(t, newTestEngine(), root, ScanOptions{SkipWarnings: true})
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 0, result.Stats.WarningsByLevel[model.LevelError])
	assert.Equal(t, 8, result.Stats.TotalNodes)
}

func TestScan_DisabledCategoriesAndLimits(t *testing.T) {
	t.Parallel()

	root := writeProject(t, sampleProject)
	result := scan(t, newTestEngine(), root, ScanOptions{WarningOptions: WarningOptions{
		DisabledCategories: []string{"unresolved-import", " unused-export "},
		MaxFunctionLines:   2,
	}})
	assert.Equal(t, []string{
		"orphaned-function: Orphaned function unusedHelper",
		"long-function: Long function format",
		"long-function: Long function greet",
		"long-function: Long function neverImported",
		"long-function: Long function unusedHelper",
		"long-function: Long function loadUser",
	}, warningTitles(result.Warnings))
}

func TestScan_ExplicitPathAliases(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{
		"src/main.ts":     "import { tool } from '~/lib/tool';\ntool();\n",
		"src/lib/tool.ts": "export function tool() {\n  return 1;\n}\n",
	})
	e := newTestEngine()

	result := scan(t, e, root, ScanOptions{})
	assert.Equal(t, []string{
		"unused-export: Unused export tool",
	}, warningTitles(result.Warnings), "a bare-looking specifier without an alias is a package")

	result = scan(t, e, root, ScanOptions{WarningOptions: WarningOptions{
		PathAliases: map[string][]string{"~/*": {"src/*"}},
	}})
	assert.Empty(t, result.Warnings)
}

func TestScan_ExplicitPathAliasesOverrideNestedConfig(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{
		"packages/web/tsconfig.json": `{"compilerOptions": {"baseUrl": ".", "paths": {"@/*": ["src/*"]}}}`,
		"packages/web/src/main.ts":   "import { tool } from '@/tool';\ntool();\n",
		"shared/tool.ts":             "export function tool() {\n  return 1;\n}\n",
	})
	e := newTestEngine()

	result := scan(t, e, root, ScanOptions{})
	assert.Contains(t, warningTitles(result.Warnings), "unused-export: Unused export tool")

	result = scan(t, e, root, ScanOptions{WarningOptions: WarningOptions{
		PathAliases: map[string][]string{"@/*": {"shared/*"}},
	}})
	assert.Empty(t, result.Warnings)
}

func TestScan_ContextualKeywordCalleesAreUsed(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{
		"src/index.ts": "function get(key: string) {\n  return key;\n}\nfunction from(v: number) {\n  return v;\n}\nconsole.log(get('a'), from(1));\n",
	})

	result := scan(t, newTestEngine(), root, ScanOptions{})
	assert.Empty(t, result.Warnings)
}

func TestScan_CircularImports(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{
		"src/a.ts": "import { b } from './b';\nexport function a() {\n  return b();\n}\n",
		"src/b.ts": "import { a } from './a';\nexport function b() {\n  return a();\n}\n",
	})
	result := scan(t, newTestEngine(), root, ScanOptions{})

	cycles := NewQuery(result).Warnings(WarningFilter{Category: "circular-import"})
	require.Len(t, cycles, 1)
	assert.Equal(t, model.LevelWarning, cycles[0].Level)
	assert.Equal(t, "Circular import between 2 files", cycles[0].Title)
	assert.Contains(t, cycles[0].Description, "src/a.ts -> src/b.ts -> src/a.ts")
}

func TestScan_SyntaxErrorsAreRecoverable(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{
		"src/ok.ts":     "export function ok() {\n  return 1;\n}\n",
		"src/broken.ts": "function half() {\n  return 1;\n}\nconst = ;\n",
	})
	result := scan(t, newTestEngine(), root, ScanOptions{SkipWarnings: true})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "src/broken.ts", result.Errors[0].FilePath)
	assert.True(t, result.Errors[0].Recoverable)
	assert.Equal(t, model.ScanStatusComplete, result.Status)
	assert.NotNil(t, result.Nodes.File("src/broken.ts"))
	assert.NotNil(t, result.Nodes.Function(model.FunctionID("src/broken.ts", "half", 1)))
}

func TestScan_EmptyProject(t *testing.T) {
	t.Parallel()

	result := scan(t, newTestEngine(), t.TempDir(), ScanOptions{})
	assert.Equal(t, model.ScanStatusComplete, result.Status)
	assert.Empty(t, result.Nodes)
	assert.NotNil(t, result.Warnings)
	assert.NotNil(t, result.Errors)
	assert.Equal(t, 100, NewQuery(result).HealthScore())
}

func TestScan_NotADirectory(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{"a.ts": "export const a = 1;\n"})
	_, err := newTestEngine().Scan(context.Background(), filepath.Join(root, "a.ts"), ScanOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")

	_, err = newTestEngine().Scan(context.Background(), filepath.Join(root, "missing"), ScanOptions{})
	require.Error(t, err)
}

func TestScan_Cancelled(t *testing.T) {
	t.Parallel()

	root := writeProject(t, sampleProject)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, parallel := range []bool{true, false} {
		_, err := newTestEngine(WithParallel(parallel)).Scan(ctx, root, ScanOptions{})
		assert.ErrorIs(t, err, context.Canceled)
	}
}

// =============================================================================
// Parallel parsing
// =============================================================================

func manyFiles(n int) map[string]string {
	files := map[string]string{}
	for i := range n {
		name := string(rune('a'+i%26)) + string(rune('a'+i/26))
		files["src/"+name+".ts"] = "export function " + name + "() {\n  return helper" + name + "();\n}\n" +
			"function helper" + name + "() {\n  return 1;\n}\n"
	}
	return files
}

func TestScan_ProgressIsSequential(t *testing.T) {
	t.Parallel()

	root := writeProject(t, manyFiles(40))
	var events []Progress
	scan(t, newTestEngine(WithWorkers(4)), root, ScanOptions{
		OnProgress: func(p Progress) { events = append(events, p) },
	})

	require.Len(t, events, 40)
	var paths []string
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Current)
		assert.Equal(t, 40, ev.Total)
		paths = append(paths, ev.FilePath)
	}
	assert.True(t, sort.StringsAreSorted(paths))
}

func TestScan_ParallelMatchesSerial(t *testing.T) {
	t.Parallel()

	files := manyFiles(30)
	for k, v := range sampleProject {
		files[k] = v
	}
	root := writeProject(t, files)

	serial := scan(t, newTestEngine(WithParallel(false)), root, ScanOptions{})
	parallel := scan(t, newTestEngine(WithWorkers(8)), root, ScanOptions{})

	assert.Equal(t, serial.Nodes, parallel.Nodes)
	assert.Equal(t, serial.Warnings, parallel.Warnings)
	assert.Equal(t, serial.Stats, parallel.Stats)
	assert.Equal(t, serial.TreeHash, parallel.TreeHash)
	assert.NotEqual(t, serial.ID, parallel.ID)
}

func TestScan_WarningIDsStableAcrossRuns(t *testing.T) {
	t.Parallel()

	root := writeProject(t, sampleProject)
	e := newTestEngine()
	first := scan(t, e, root, ScanOptions{})
	second := scan(t, e, root, ScanOptions{})
	assert.Equal(t, first.Warnings, second.Warnings)
}

// =============================================================================
// Rules
// =============================================================================

func TestScan_ProjectRules(t *testing.T) {
	t.Parallel()

	root := writeProject(t, sampleProject)
	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "no_greetings.risor"), []byte(`
for _, fn := range functions() {
    if fn["name"] == "greet" {
        emit({"level": "warning", "title": "Greeting found", "affected": fn["id"], "file": fn["file"]})
    }
}
`), 0o644))

	result := scan(t, newTestEngine(WithRulesDir(rulesDir)), root, ScanOptions{})
	found := NewQuery(result).Warnings(WarningFilter{Category: "no-greetings"})
	require.Len(t, found, 1)
	assert.Equal(t, "Greeting found", found[0].Title)
	assert.Equal(t, "src/greet.ts", found[0].FilePath)
	assert.Equal(t, []string{model.FunctionID("src/greet.ts", "greet", 1)}, found[0].AffectedNodes)
	assert.Equal(t, 2, result.Stats.WarningsByLevel[model.LevelWarning])
}

func TestScan_RuleOptions(t *testing.T) {
	t.Parallel()

	root := writeProject(t, sampleProject)
	result := scan(t, newTestEngine(WithRuleOptions(map[string]any{"max_file_functions": 3})), root, ScanOptions{})

	crowded := NewQuery(result).Warnings(WarningFilter{Category: "crowded-file"})
	require.Len(t, crowded, 1)
	assert.Equal(t, "src/greet.ts", crowded[0].FilePath)

	result = scan(t, newTestEngine(WithRulesFS(nil), WithRuleOptions(map[string]any{"max_file_functions": 3})),
		root, ScanOptions{})
	assert.Empty(t, NewQuery(result).Warnings(WarningFilter{Category: "crowded-file"}))
}

// =============================================================================
// Fingerprint
// =============================================================================

func TestFingerprint_MatchesTreeHash(t *testing.T) {
	t.Parallel()

	root := writeProject(t, sampleProject)
	e := newTestEngine()
	result := scan(t, e, root, ScanOptions{})
	require.NotEmpty(t, result.TreeHash)

	fp, err := e.Fingerprint(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, result.TreeHash, fp)

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "greet.ts"), []byte("export const x = 1;\n"), 0o644))
	changed, err := e.Fingerprint(context.Background(), root)
	require.NoError(t, err)
	assert.NotEqual(t, fp, changed)

	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# ignored\n"), 0o644))
	same, err := e.Fingerprint(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, changed, same)
}

func TestBuildImportTable(t *testing.T) {
	t.Parallel()

	nodes := model.NodeMap{}
	nodes.Add(model.NewFileNode(&model.FileNode{
		ID: model.FileID("src/app.ts"), Path: "src/app.ts",
		Imports: []model.ImportInfo{
			{Source: "./mod", Items: []model.ImportItem{{Name: "def", IsDefault: true}, {Name: "a"}, {Name: "b", Alias: "c"}}},
			{Source: "./mod", Items: []model.ImportItem{{Name: "ns", IsNamespace: true}}},
			{Source: "./types", IsTypeOnly: true, Items: []model.ImportItem{{Name: "T"}}},
			{Source: "react", Items: []model.ImportItem{{Name: "useState"}}},
			{Source: "./side"},
		},
	}))

	table := buildImportTable(nodes, nil)
	entries := table.Entries("src/app.ts")
	require.Len(t, entries, 3)

	assert.Equal(t, "react", entries[0].Resolved)
	assert.False(t, entries[0].Local)

	assert.Equal(t, "src/mod", entries[1].Resolved)
	assert.True(t, entries[1].Local)
	assert.Equal(t, []string{"*", "a", "b", "default"}, entries[1].NameList())

	assert.Equal(t, "src/side", entries[2].Resolved)
	assert.Empty(t, entries[2].NameList())
}
