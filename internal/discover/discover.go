// Package discover enumerates the files a scan reads: parseable source files,
// single-file components for the line scanner, and path-alias config files.
package discover

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// File is a discovered file.
type File struct {
	Path    string // absolute
	RelPath string // slash-separated, relative to the root
}

// skipDirs are excluded wherever they appear in the tree. Hidden directories
// are excluded as well.
var skipDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"out":          true,
	"coverage":     true,
	"vendor":       true,
	"__tests__":    true,
	"__mocks__":    true,
}

var sourceExts = map[string]bool{
	".ts":  true,
	".tsx": true,
	".mts": true,
	".cts": true,
	".js":  true,
	".jsx": true,
	".mjs": true,
	".cjs": true,
}

var markupExts = map[string]bool{
	".vue":    true,
	".svelte": true,
	".astro":  true,
}

// IsIgnoredDir reports whether a directory with this base name is skipped.
func IsIgnoredDir(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".") || skipDirs[name]
}

// IsSourceFile reports whether path is a parseable, non-test, non-declaration
// source file.
func IsSourceFile(path string) bool {
	base := filepath.Base(path)
	if !sourceExts[strings.ToLower(filepath.Ext(base))] {
		return false
	}
	return !isTestFile(base) && !isDeclarationFile(base)
}

// IsMarkupFile reports whether path is a single-file component handled by
// the line scanner.
func IsMarkupFile(path string) bool {
	base := filepath.Base(path)
	return markupExts[strings.ToLower(filepath.Ext(base))] && !isTestFile(base)
}

// IsConfigFile reports whether path is a tsconfig/jsconfig variant.
func IsConfigFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if filepath.Ext(base) != ".json" {
		return false
	}
	return strings.HasPrefix(base, "tsconfig") || strings.HasPrefix(base, "jsconfig")
}

func isTestFile(base string) bool {
	lower := strings.ToLower(base)
	return strings.Contains(lower, ".test.") || strings.Contains(lower, ".spec.")
}

func isDeclarationFile(base string) bool {
	lower := strings.ToLower(base)
	return strings.HasSuffix(lower, ".d.ts") ||
		strings.HasSuffix(lower, ".d.mts") ||
		strings.HasSuffix(lower, ".d.cts")
}

// Options controls discovery.
type Options struct {
	// UseGit lists files with git ls-files when root is inside a work tree,
	// so .gitignore is respected. Falls back to a filesystem walk.
	UseGit bool

	// Logger receives unreadable-directory events. Nil discards them.
	Logger *slog.Logger
}

// Discover returns source files under root, sorted by relative path.
func Discover(root string, opts Options) ([]File, error) {
	return list(root, opts, IsSourceFile)
}

// DiscoverMarkup returns single-file components under root.
func DiscoverMarkup(root string, opts Options) ([]File, error) {
	return list(root, opts, IsMarkupFile)
}

// DiscoverConfigs returns tsconfig/jsconfig files under root.
func DiscoverConfigs(root string) ([]File, error) {
	return list(root, Options{}, IsConfigFile)
}

func list(root string, opts Options, keep func(string) bool) ([]File, error) {
	var (
		rels []string
		err  error
	)
	if opts.UseGit {
		rels, err = gitListFiles(root)
	}
	if !opts.UseGit || err != nil {
		logger := opts.Logger
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		rels, err = walkListFiles(root, logger)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(rels))
	var files []File
	for _, rel := range rels {
		rel = filepath.ToSlash(rel)
		if seen[rel] || !keep(rel) || inIgnoredDir(rel) {
			continue
		}
		seen[rel] = true
		files = append(files, File{
			Path:    filepath.Join(root, filepath.FromSlash(rel)),
			RelPath: rel,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// inIgnoredDir reports whether any directory component of rel is ignored.
func inIgnoredDir(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if IsIgnoredDir(dir) {
			return true
		}
	}
	return false
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root. Output is NUL-separated so paths with non-ASCII
// bytes come back unquoted.
func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "-z", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}
	return splitNUL(stdout.String()), nil
}

func splitNUL(out string) []string {
	var rels []string
	for _, rel := range strings.Split(out, "\x00") {
		if rel != "" {
			rels = append(rels, rel)
		}
	}
	return rels
}

// walkListFiles discovers files by walking the filesystem, skipping ignored
// directories.
func walkListFiles(root string, logger *slog.Logger) ([]string, error) {
	return walkFS(os.DirFS(root), logger)
}

// walkFS lists regular files in fsys. A subdirectory that cannot be read is
// logged and skipped; only a failure at the root aborts the walk.
func walkFS(fsys fs.FS, logger *slog.Logger) ([]string, error) {
	var rels []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == "." {
				return err
			}
			logger.Warn("discover.unreadable", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != "." && IsIgnoredDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		rels = append(rels, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return rels, nil
}
