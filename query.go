package codegraph

import (
	"sort"
	"strings"

	"github.com/jward/codegraph/internal/model"
)

// QueryBuilder answers read-only questions about one ScanResult. It never
// modifies the result.
type QueryBuilder struct {
	result *ScanResult
}

// NewQuery wraps result. A nil result behaves like an empty scan.
func NewQuery(result *ScanResult) *QueryBuilder {
	if result == nil {
		result = &ScanResult{Nodes: model.NodeMap{}}
	}
	return &QueryBuilder{result: result}
}

// Result returns the wrapped scan.
func (q *QueryBuilder) Result() *ScanResult {
	return q.result
}

// HealthScore is the 0..100 score derived from the scan's warning counts.
func (q *QueryBuilder) HealthScore() int {
	return model.HealthScore(q.levelCounts())
}

func (q *QueryBuilder) levelCounts() map[Level]int {
	if q.result.Stats.WarningsByLevel != nil {
		return q.result.Stats.WarningsByLevel
	}
	counts := map[Level]int{}
	for _, w := range q.result.Warnings {
		counts[w.Level]++
	}
	return counts
}

// WarningFilter selects warnings. Empty fields match everything.
type WarningFilter struct {
	Level    Level
	Category string
	// FilePath matches the warning's file exactly or, when it names a
	// directory, any file below it.
	FilePath string
}

func (f WarningFilter) match(w Warning) bool {
	if f.Level != "" && w.Level != f.Level {
		return false
	}
	if f.Category != "" && w.Category != f.Category {
		return false
	}
	if f.FilePath != "" && !pathMatches(w.FilePath, f.FilePath) {
		return false
	}
	return true
}

// Warnings returns the matching warnings in the scan's order.
func (q *QueryBuilder) Warnings(filter WarningFilter) []Warning {
	out := []Warning{}
	for _, w := range q.result.Warnings {
		if filter.match(w) {
			out = append(out, w)
		}
	}
	return out
}

// WarningsPage returns one page of the matching warnings.
func (q *QueryBuilder) WarningsPage(filter WarningFilter, page Pagination) *PagedResult[Warning] {
	return paginate(q.Warnings(filter), page)
}

// Categories lists the distinct warning categories, sorted.
func (q *QueryBuilder) Categories() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, w := range q.result.Warnings {
		if !seen[w.Category] {
			seen[w.Category] = true
			out = append(out, w.Category)
		}
	}
	sort.Strings(out)
	return out
}

// pathMatches reports whether path equals filter or lies below it.
func pathMatches(path, filter string) bool {
	filter = strings.TrimPrefix(filter, "./")
	if path == filter {
		return true
	}
	prefix := normalizePathPrefix(filter)
	return prefix != "" && strings.HasPrefix(path, prefix)
}

// normalizePathPrefix ensures a path prefix ends with "/" so "src/app"
// does not match "src/application".
func normalizePathPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		return prefix + "/"
	}
	return prefix
}
