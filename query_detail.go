package codegraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/codegraph/internal/model"
)

// FileDetail is everything the scan knows about one file.
type FileDetail struct {
	File      *FileNode       `json:"file"`
	Imports   []ImportInfo    `json:"imports"`
	Exports   []ExportInfo    `json:"exports"`
	Functions []*FunctionNode `json:"functions"`
	Classes   []*ClassNode    `json:"classes"`
	Warnings  []Warning       `json:"warnings"`
}

// FileDetail returns the detail of the file at the project-relative path,
// or nil when the scan has no such file.
func (q *QueryBuilder) FileDetail(path string) *FileDetail {
	f := q.result.Nodes.File(strings.TrimPrefix(path, "./"))
	if f == nil {
		return nil
	}
	d := &FileDetail{
		File:      f,
		Imports:   nonNil(f.Imports),
		Exports:   nonNil(f.Exports),
		Functions: []*FunctionNode{},
		Classes:   []*ClassNode{},
		Warnings:  []Warning{},
	}
	for _, id := range f.FunctionIDs {
		if fn := q.result.Nodes.Function(id); fn != nil {
			d.Functions = append(d.Functions, fn)
		}
	}
	for _, id := range f.ClassIDs {
		if n, ok := q.result.Nodes[id]; ok && n.Type == model.NodeTypeClass {
			d.Classes = append(d.Classes, n.Class)
		}
	}
	for _, w := range q.result.Warnings {
		if w.FilePath == f.Path {
			d.Warnings = append(d.Warnings, w)
		}
	}
	sort.SliceStable(d.Functions, func(i, j int) bool { return d.Functions[i].StartLine < d.Functions[j].StartLine })
	sort.SliceStable(d.Classes, func(i, j int) bool { return d.Classes[i].StartLine < d.Classes[j].StartLine })
	return d
}

// Node returns the node with id, or nil.
func (q *QueryBuilder) Node(id string) *Node {
	return q.result.Nodes[id]
}

// --- Level summaries ---

// LevelReport is the natural-language summary of one severity.
type LevelReport struct {
	Level   Level  `json:"level"`
	Count   int    `json:"count"`
	Summary string `json:"summary"`
}

var levelNouns = map[Level][2]string{
	model.LevelError:   {"error", "errors"},
	model.LevelWarning: {"warning", "warnings"},
	model.LevelInfo:    {"info notice", "info notices"},
}

// LevelSummary describes the warnings of one level in a sentence, for
// example "3 warnings across 2 files: orphaned-function (2), circular-import (1)."
func (q *QueryBuilder) LevelSummary(level Level) string {
	nouns, ok := levelNouns[level]
	if !ok {
		return fmt.Sprintf("Unknown level %q.", level)
	}
	byCategory := map[string]int{}
	files := map[string]bool{}
	count := 0
	for _, w := range q.result.Warnings {
		if w.Level != level {
			continue
		}
		count++
		byCategory[w.Category]++
		if w.FilePath != "" {
			files[w.FilePath] = true
		}
	}
	if count == 0 {
		return fmt.Sprintf("No %s.", nouns[1])
	}

	var b strings.Builder
	b.WriteString(plural(count, nouns[0], nouns[1]))
	if len(files) > 0 {
		fmt.Fprintf(&b, " across %s", plural(len(files), "file", "files"))
	}
	b.WriteString(": ")

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if byCategory[categories[i]] != byCategory[categories[j]] {
			return byCategory[categories[i]] > byCategory[categories[j]]
		}
		return categories[i] < categories[j]
	})
	for i, c := range categories {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d)", c, byCategory[c])
	}
	b.WriteString(".")
	return b.String()
}

// Summaries returns a LevelReport for every level, most severe first.
func (q *QueryBuilder) Summaries() []LevelReport {
	out := make([]LevelReport, 0, len(model.Levels))
	for _, level := range model.Levels {
		n := 0
		for _, w := range q.result.Warnings {
			if w.Level == level {
				n++
			}
		}
		out = append(out, LevelReport{Level: level, Count: n, Summary: q.LevelSummary(level)})
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
