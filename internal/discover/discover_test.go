package discover

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("export {}\n"), 0o644))
	}
}

func relPaths(files []File) []string {
	var out []string
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	return out
}

func TestDiscover_FiltersAndSorts(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTree(t, root,
		"src/b.ts",
		"src/a.tsx",
		"src/util/index.js",
		"src/a.test.ts",
		"src/a.spec.js",
		"src/types.d.ts",
		"src/readme.md",
		"node_modules/lib/index.js",
		"dist/bundle.js",
		"coverage/lcov.js",
		".git/hooks/x.js",
		".next/server.js",
		"src/__tests__/helper.ts",
		"app.mjs",
	)

	files, err := Discover(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.mjs", "src/a.tsx", "src/b.ts", "src/util/index.js"}, relPaths(files))
	assert.Equal(t, filepath.Join(root, "src", "b.ts"), files[2].Path)
}

func TestDiscover_DeterministicAcrossRuns(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTree(t, root, "z.ts", "m/a.ts", "a.ts", "m/z.js")

	first, err := Discover(root, Options{})
	require.NoError(t, err)
	second, err := Discover(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDiscoverMarkup(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTree(t, root, "src/App.vue", "src/Card.svelte", "src/page.astro", "src/main.ts", "node_modules/x/Y.vue")

	files, err := DiscoverMarkup(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/App.vue", "src/Card.svelte", "src/page.astro"}, relPaths(files))
}

func TestDiscoverConfigs(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTree(t, root, "tsconfig.json", "packages/web/tsconfig.app.json", "packages/api/jsconfig.json", "package.json", "node_modules/x/tsconfig.json")

	files, err := DiscoverConfigs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"packages/api/jsconfig.json", "packages/web/tsconfig.app.json", "tsconfig.json"}, relPaths(files))
}

func TestIsIgnoredDir(t *testing.T) {
	t.Parallel()
	assert.True(t, IsIgnoredDir("node_modules"))
	assert.True(t, IsIgnoredDir(".git"))
	assert.True(t, IsIgnoredDir("coverage"))
	assert.False(t, IsIgnoredDir("src"))
	assert.False(t, IsIgnoredDir("."))
}

// =============================================================================
// Walk and git listing
// =============================================================================

// lockedFS fails to list one directory.
type lockedFS struct {
	fstest.MapFS
	locked string
}

func (l lockedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == l.locked {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrPermission}
	}
	return l.MapFS.ReadDir(name)
}

func TestWalkFS_SkipsUnreadableDirectory(t *testing.T) {
	t.Parallel()

	fsys := lockedFS{
		MapFS: fstest.MapFS{
			"src/a.ts":         {Data: []byte("export {}")},
			"src/private/b.ts": {Data: []byte("export {}")},
			"lib/c.ts":         {Data: []byte("export {}")},
		},
		locked: "src/private",
	}

	rels, err := walkFS(fsys, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lib/c.ts", "src/a.ts"}, rels)
}

func TestWalkFS_UnreadableRootFails(t *testing.T) {
	t.Parallel()

	fsys := lockedFS{MapFS: fstest.MapFS{"a.ts": {}}, locked: "."}
	_, err := walkFS(fsys, slog.New(slog.DiscardHandler))
	assert.True(t, errors.Is(err, fs.ErrPermission))
}

func TestSplitNUL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"src/héllo.ts", "src/a b.ts"}, splitNUL("src/héllo.ts\x00src/a b.ts\x00"))
	assert.Nil(t, splitNUL(""))
}

func TestDiscover_GitKeepsNonASCIIPaths(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	require.NoError(t, exec.Command("git", "-C", root, "init", "-q").Run())
	writeTree(t, root, "src/héllo.ts", "src/plain.ts")

	files, err := Discover(root, Options{UseGit: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/héllo.ts", "src/plain.ts"}, relPaths(files))
}
