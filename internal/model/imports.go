package model

import "sort"

// ImportEntry collects the names one file imports from one resolved module.
type ImportEntry struct {
	// Resolved is the project-relative module path, without extension, for
	// local modules and the bare specifier for packages.
	Resolved string
	// Specifier is the source text as first written by the importer.
	Specifier string
	Local     bool
	Names     map[string]struct{}
}

// NameList returns the imported names sorted.
func (e *ImportEntry) NameList() []string {
	out := make([]string, 0, len(e.Names))
	for n := range e.Names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ImportTable maps importing file path to resolved module to entry. Adding
// to an existing entry extends its name set.
type ImportTable map[string]map[string]*ImportEntry

// Add records names imported by importer from resolved.
func (t ImportTable) Add(importer, resolved, specifier string, local bool, names ...string) *ImportEntry {
	byModule, ok := t[importer]
	if !ok {
		byModule = map[string]*ImportEntry{}
		t[importer] = byModule
	}
	e, ok := byModule[resolved]
	if !ok {
		e = &ImportEntry{Resolved: resolved, Specifier: specifier, Local: local, Names: map[string]struct{}{}}
		byModule[resolved] = e
	}
	for _, n := range names {
		e.Names[n] = struct{}{}
	}
	return e
}

// Importers returns importing file paths sorted.
func (t ImportTable) Importers() []string {
	out := make([]string, 0, len(t))
	for f := range t {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Entries returns the entries of importer sorted by resolved module.
func (t ImportTable) Entries(importer string) []*ImportEntry {
	byModule := t[importer]
	out := make([]*ImportEntry, 0, len(byModule))
	for _, e := range byModule {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resolved < out[j].Resolved })
	return out
}
