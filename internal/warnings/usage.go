package warnings

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/jward/codegraph/internal/alias"
	"github.com/jward/codegraph/internal/model"
)

type fileName struct{ file, name string }

// importedNames returns, per scanned file, the exported names some other
// file imports from it. Names imported from a barrel are followed through
// its re-exports. "*" means every export of the file is in use.
func importedNames(in Input, ix *moduleIndex) map[string]map[string]bool {
	used := map[string]map[string]bool{}
	var queue []fileName
	mark := func(file, name string) {
		names, ok := used[file]
		if !ok {
			names = map[string]bool{}
			used[file] = names
		}
		if names[name] {
			return
		}
		names[name] = true
		queue = append(queue, fileName{file, name})
	}

	for _, importer := range in.Imports.Importers() {
		for _, e := range in.Imports.Entries(importer) {
			if !e.Local {
				continue
			}
			f, ok := ix.Resolve(e.Resolved)
			if !ok {
				continue
			}
			for _, n := range e.NameList() {
				mark(f, n)
			}
		}
	}

	reexports := map[string][]model.ExportInfo{}
	for _, f := range in.Nodes.Files() {
		for _, ex := range f.Exports {
			if ex.IsReexport {
				reexports[f.Path] = append(reexports[f.Path], ex)
			}
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ex := range reexports[cur.file] {
			resolved, local := alias.Specifier(in.Aliases, cur.file, ex.Source)
			if !local {
				continue
			}
			target, ok := ix.Resolve(resolved)
			if !ok {
				continue
			}
			switch {
			case ex.Name == "*" && ex.Alias == "":
				// export * never forwards the default export.
				if cur.name != "default" {
					mark(target, cur.name)
				}
			case ex.Name == "*":
				if cur.name == ex.Alias || cur.name == "*" {
					mark(target, "*")
				}
			case cur.name == ex.ExportedName() || cur.name == "*":
				mark(target, ex.Name)
			}
		}
	}
	return used
}

// unusedFunctions reports standalone functions that nothing reaches. A
// function is reached when another scope of its file names it, or when an
// importer takes one of the names it is exported under.
func unusedFunctions(in Input, ix *moduleIndex) []model.Warning {
	used := importedNames(in, ix)

	var fns []*model.FunctionNode
	byFile := map[string]map[string][]uint32{}
	for _, fn := range in.Nodes.Functions() {
		if fn.IsMethod() {
			continue
		}
		idx := uint32(len(fns))
		fns = append(fns, fn)
		names, ok := byFile[fn.FilePath]
		if !ok {
			names = map[string][]uint32{}
			byFile[fn.FilePath] = names
		}
		names[fn.Name] = append(names[fn.Name], idx)
	}

	reached := roaring.New()
	refer := func(file, name string, from *model.FunctionNode) {
		for _, idx := range byFile[file][name] {
			if fns[idx] != from {
				reached.Add(idx)
			}
		}
	}

	for _, f := range in.Nodes.Files() {
		for _, r := range f.TopLevelReferences {
			refer(f.Path, r, nil)
		}
		imported := used[f.Path]
		for _, ex := range f.Exports {
			if ex.IsReexport {
				continue
			}
			if imported["*"] || imported[ex.ExportedName()] {
				refer(f.Path, ex.Name, nil)
			}
		}
	}
	for _, c := range in.Nodes.Classes() {
		for _, r := range c.References {
			refer(c.FilePath, r, nil)
		}
	}
	for _, fn := range in.Nodes.Functions() {
		for _, r := range fn.References {
			refer(fn.FilePath, r, fn)
		}
	}

	var out []model.Warning
	for i, fn := range fns {
		if reached.Contains(uint32(i)) {
			continue
		}
		if fn.IsExported {
			out = append(out, model.Warning{
				Category:      CategoryUnusedExport,
				Level:         model.LevelInfo,
				Title:         "Unused export " + fn.Name,
				Description:   fmt.Sprintf("%s is exported from %s but no file imports it.", fn.Name, fn.FilePath),
				AffectedNodes: []string{fn.ID},
				FilePath:      fn.FilePath,
				Suggestion:    "Remove the export, or the function, if it is not part of a public API.",
			})
			continue
		}
		out = append(out, model.Warning{
			Category:      CategoryOrphanedFunction,
			Level:         model.LevelWarning,
			Title:         "Orphaned function " + fn.Name,
			Description:   fmt.Sprintf("%s is neither exported nor referenced anywhere in %s.", fn.Name, fn.FilePath),
			AffectedNodes: []string{fn.ID},
			FilePath:      fn.FilePath,
			Suggestion:    "Delete it if it is dead code.",
		})
	}
	return out
}
