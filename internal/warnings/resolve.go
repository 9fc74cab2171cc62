package warnings

import (
	"fmt"
	"path"
	"strings"

	"github.com/jward/codegraph/internal/alias"
	"github.com/jward/codegraph/internal/model"
)

// probeExts are tried, in order, after an extensionless module path and
// after "<dir>/index".
var probeExts = []string{
	".ts", ".tsx", ".mts", ".cts", ".d.ts",
	".js", ".jsx", ".mjs", ".cjs",
	".vue", ".svelte", ".astro", ".json",
}

// TypeScript lets "./x.js" name the source file "./x.ts".
var compiledExts = map[string][]string{
	".js":  {".ts", ".tsx"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

// moduleIndex maps resolved module paths to project files.
type moduleIndex struct {
	known  map[string]bool
	exists func(string) bool
	memo   map[string]string
}

func newModuleIndex(files []string, exists func(string) bool) *moduleIndex {
	ix := &moduleIndex{known: make(map[string]bool, len(files)), exists: exists, memo: map[string]string{}}
	for _, f := range files {
		ix.known[f] = true
	}
	return ix
}

func (ix *moduleIndex) has(p string) bool {
	return ix.known[p] || (ix.exists != nil && ix.exists(p))
}

// Resolve returns the file a local module path refers to.
func (ix *moduleIndex) Resolve(mod string) (string, bool) {
	if f, ok := ix.memo[mod]; ok {
		return f, f != ""
	}
	f := ix.probe(mod)
	ix.memo[mod] = f
	return f, f != ""
}

func (ix *moduleIndex) probe(mod string) string {
	if mod == "" || mod == ".." || strings.HasPrefix(mod, "../") {
		return ""
	}
	if path.Ext(mod) != "" && ix.has(mod) {
		return mod
	}
	ext := path.Ext(mod)
	for _, alt := range compiledExts[ext] {
		if p := strings.TrimSuffix(mod, ext) + alt; ix.has(p) {
			return p
		}
	}
	for _, e := range probeExts {
		if ix.has(mod + e) {
			return mod + e
		}
	}
	for _, e := range probeExts {
		if p := mod + "/index" + e; ix.has(p) {
			return p
		}
	}
	return ""
}

// IsProjectFile reports whether f is one of the scanned files.
func (ix *moduleIndex) IsProjectFile(f string) bool { return ix.known[f] }

// localTargets returns the scanned files each importer reaches through
// local imports.
func localTargets(in Input, ix *moduleIndex) map[string][]string {
	out := map[string][]string{}
	for _, importer := range in.Imports.Importers() {
		for _, e := range in.Imports.Entries(importer) {
			if !e.Local {
				continue
			}
			if f, ok := ix.Resolve(e.Resolved); ok && ix.IsProjectFile(f) {
				out[importer] = append(out[importer], f)
			}
		}
	}
	return out
}

func unresolvedImports(in Input, ix *moduleIndex) []model.Warning {
	var out []model.Warning
	for _, importer := range in.Imports.Importers() {
		for _, e := range in.Imports.Entries(importer) {
			if !e.Local {
				continue
			}
			if _, ok := ix.Resolve(e.Resolved); ok {
				continue
			}
			out = append(out, model.Warning{
				Category:      CategoryUnresolvedImport,
				Level:         model.LevelError,
				Title:         fmt.Sprintf("Unresolved import '%s'", e.Specifier),
				Description:   fmt.Sprintf("%s imports '%s', which does not match any file in the project.", importer, e.Specifier),
				AffectedNodes: []string{model.FileID(importer)},
				FilePath:      importer,
				Suggestion:    unresolvedSuggestion(in.Aliases, importer, e.Specifier),
			})
		}
	}
	return out
}

func unresolvedSuggestion(aliases *alias.Aliases, importer, spec string) string {
	if m, ok := aliases.MatchFrom(importer, spec); ok {
		return fmt.Sprintf("The path alias maps it to '%s'. Check the paths mapping in tsconfig.json.", m)
	}
	return "Check the path for typos or create the missing module."
}
