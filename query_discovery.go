package codegraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/codegraph/internal/model"
)

// --- Common Types ---

// Pagination controls offset+limit paging on list results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// PagedResult wraps a page of results with the total count before paging.
type PagedResult[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
}

func paginate[T any](items []T, page Pagination) *PagedResult[T] {
	page = page.normalize()
	total := len(items)
	start := min(page.Offset, total)
	end := min(start+page.Limit, total)
	out := make([]T, end-start)
	copy(out, items[start:end])
	return &PagedResult[T]{Items: out, TotalCount: total}
}

// SortField specifies how to order nodes.
type SortField string

const (
	SortByName  SortField = "name"
	SortByFile  SortField = "file"
	SortByLines SortField = "lines"
)

// SortOrder specifies ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort controls result ordering. The zero value orders by file.
type Sort struct {
	Field SortField
	Order SortOrder
}

// NodeFilter selects nodes. Empty fields match everything.
type NodeFilter struct {
	Type NodeType
	// FilePath matches exactly or as a directory prefix.
	FilePath string
	// NameContains is a case-insensitive substring of the node name.
	NameContains string
	// Flag names a behavior flag such as "writesDatabase". Only analyzed
	// functions with the flag set match.
	Flag string
}

func (f NodeFilter) validate() error {
	switch f.Type {
	case "", model.NodeTypeFile, model.NodeTypeFunction, model.NodeTypeClass:
	default:
		return fmt.Errorf("codegraph: unknown node type %q", f.Type)
	}
	if f.Flag != "" {
		if _, ok := (model.BehaviorFlags{}).Get(f.Flag); !ok {
			return fmt.Errorf("codegraph: unknown behavior flag %q", f.Flag)
		}
	}
	return nil
}

func (f NodeFilter) match(n *Node) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.FilePath != "" && !pathMatches(n.FilePath(), f.FilePath) {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(n.Name()), strings.ToLower(f.NameContains)) {
		return false
	}
	if f.Flag != "" {
		if n.Type != model.NodeTypeFunction || n.Function.Behavior == nil {
			return false
		}
		set, _ := n.Function.Behavior.Flags.Get(f.Flag)
		return set
	}
	return true
}

// Nodes returns the matching nodes ordered by file path, then id.
func (q *QueryBuilder) Nodes(filter NodeFilter) ([]*Node, error) {
	return q.collect(filter, Sort{})
}

// NodesPage returns one sorted page of the matching nodes.
func (q *QueryBuilder) NodesPage(filter NodeFilter, s Sort, page Pagination) (*PagedResult[*Node], error) {
	all, err := q.collect(filter, s)
	if err != nil {
		return nil, err
	}
	return paginate(all, page), nil
}

func (q *QueryBuilder) collect(filter NodeFilter, s Sort) ([]*Node, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	out := []*Node{}
	for _, n := range q.result.Nodes {
		if filter.match(n) {
			out = append(out, n)
		}
	}
	sortNodes(out, s)
	return out, nil
}

func sortNodes(nodes []*Node, s Sort) {
	less := func(a, b *Node) int {
		switch s.Field {
		case SortByName:
			return strings.Compare(a.Name(), b.Name())
		case SortByLines:
			return nodeLines(a) - nodeLines(b)
		default:
			return strings.Compare(a.FilePath(), b.FilePath())
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		c := less(nodes[i], nodes[j])
		if s.Order == Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return nodes[i].ID() < nodes[j].ID()
	})
}

func nodeLines(n *Node) int {
	switch n.Type {
	case model.NodeTypeFile:
		return n.File.LineCount
	case model.NodeTypeFunction:
		return n.Function.LineCount()
	case model.NodeTypeClass:
		return n.Class.EndLine - n.Class.StartLine + 1
	}
	return 0
}

// --- Digest Endpoints ---

// LanguageStats is the per-language breakdown of a ProjectSummary.
type LanguageStats struct {
	Language      string `json:"language"`
	FileCount     int    `json:"fileCount"`
	FunctionCount int    `json:"functionCount"`
	ClassCount    int    `json:"classCount"`
}

// FileWarnings counts the warnings attached to one file.
type FileWarnings struct {
	FilePath string `json:"filePath"`
	Count    int    `json:"count"`
}

// ProjectSummary is a high-level overview of a scan.
type ProjectSummary struct {
	ProjectName string          `json:"projectName"`
	Stats       ScanStats       `json:"stats"`
	HealthScore int             `json:"healthScore"`
	Languages   []LanguageStats `json:"languages"`
	Levels      []LevelReport   `json:"levels"`
	TopFiles    []FileWarnings  `json:"topFiles"`
}

// ProjectSummary returns an overview of the scan with the topN files
// carrying the most warnings.
func (q *QueryBuilder) ProjectSummary(topN int) *ProjectSummary {
	summary := &ProjectSummary{
		ProjectName: q.result.ProjectName,
		Stats:       q.result.Stats,
		HealthScore: q.HealthScore(),
		Levels:      q.Summaries(),
		Languages:   []LanguageStats{},
		TopFiles:    []FileWarnings{},
	}

	byLang := map[string]*LanguageStats{}
	langOf := map[string]string{}
	for _, f := range q.result.Nodes.Files() {
		ls, ok := byLang[f.Language]
		if !ok {
			ls = &LanguageStats{Language: f.Language}
			byLang[f.Language] = ls
		}
		ls.FileCount++
		langOf[f.Path] = f.Language
	}
	for _, n := range q.result.Nodes {
		ls := byLang[langOf[n.FilePath()]]
		if ls == nil {
			continue
		}
		switch n.Type {
		case model.NodeTypeFunction:
			ls.FunctionCount++
		case model.NodeTypeClass:
			ls.ClassCount++
		}
	}
	for _, ls := range byLang {
		summary.Languages = append(summary.Languages, *ls)
	}
	sort.Slice(summary.Languages, func(i, j int) bool {
		return summary.Languages[i].Language < summary.Languages[j].Language
	})

	if topN > 0 {
		counts := map[string]int{}
		for _, w := range q.result.Warnings {
			if w.FilePath != "" {
				counts[w.FilePath]++
			}
		}
		for path, n := range counts {
			summary.TopFiles = append(summary.TopFiles, FileWarnings{FilePath: path, Count: n})
		}
		sort.Slice(summary.TopFiles, func(i, j int) bool {
			a, b := summary.TopFiles[i], summary.TopFiles[j]
			if a.Count != b.Count {
				return a.Count > b.Count
			}
			return a.FilePath < b.FilePath
		})
		if len(summary.TopFiles) > topN {
			summary.TopFiles = summary.TopFiles[:topN]
		}
	}
	return summary
}
