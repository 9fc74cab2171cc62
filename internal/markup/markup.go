// Package markup extracts import statements from single-file component
// formats (.vue, .svelte, .astro) that the tree-sitter grammars cannot
// parse. Statements are found line by line and parsed lexically.
package markup

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/jward/codegraph/internal/alias"
	"github.com/jward/codegraph/internal/model"
)

// maxStatementLines bounds how long an unterminated statement accumulates
// before it is dropped.
const maxStatementLines = 64

type state int

const (
	idle state = iota
	accumulating
)

var (
	fromSource  = regexp.MustCompile(`\bfrom\s*['"]([^'"]+)['"]`)
	bareSource  = regexp.MustCompile(`^import\s*['"]([^'"]+)['"]`)
	typeImport  = regexp.MustCompile(`\bimport\s+type\b`)
	namespaceRe = regexp.MustCompile(`\*\s*as\s+([A-Za-z_$][\w$]*)`)
	namedRe     = regexp.MustCompile(`\{([^}]*)\}`)
	identRe     = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
)

// Statement is one complete import statement.
type Statement struct {
	Text string
	Line int // 1-based line the statement starts on
}

// Statements runs the two-state line machine over src. A line beginning
// with "import " starts a statement; it completes once the running brace
// depth is back to zero or below and a quoted module path is present.
func Statements(src string) []Statement {
	var (
		out   []Statement
		st    = idle
		buf   strings.Builder
		depth int
		start int
		lines int
	)
	for i, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		switch st {
		case idle:
			if !strings.HasPrefix(line, "import ") {
				continue
			}
			st, start, lines, depth = accumulating, i+1, 0, 0
			buf.Reset()
		case accumulating:
			buf.WriteByte('\n')
		}

		buf.WriteString(line)
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		lines++

		text := buf.String()
		if depth <= 0 && (fromSource.MatchString(text) || bareSource.MatchString(text)) {
			out = append(out, Statement{Text: text, Line: start})
			st = idle
		} else if lines >= maxStatementLines {
			st = idle
		}
	}
	return out
}

// Import is one parsed statement.
type Import struct {
	Source   string   // as written
	Resolved string   // after alias and relative resolution
	Local    bool     // false for bare package specifiers
	Names    []string // imported names; "default" and "*" for default and namespace
	Line     int
}

// Parse extracts the source and imported names of a statement. Type-only
// statements are rejected.
func Parse(stmt string) (Import, bool) {
	if typeImport.MatchString(stmt) {
		return Import{}, false
	}
	if m := bareSource.FindStringSubmatch(stmt); m != nil {
		return Import{Source: m[1]}, true
	}
	loc := fromSource.FindStringSubmatchIndex(stmt)
	if loc == nil {
		return Import{}, false
	}
	imp := Import{Source: stmt[loc[2]:loc[3]]}

	clause := strings.TrimSpace(strings.TrimPrefix(stmt[:loc[0]], "import"))
	names := map[string]bool{}

	if m := namespaceRe.FindStringSubmatch(clause); m != nil {
		names["*"] = true
		clause = strings.Replace(clause, m[0], "", 1)
	}
	if m := namedRe.FindStringSubmatch(clause); m != nil {
		for _, spec := range strings.Split(m[1], ",") {
			fields := strings.Fields(spec)
			if len(fields) == 0 {
				continue
			}
			// Inline type specifiers bind types only.
			if fields[0] == "type" && len(fields) > 1 && fields[1] != "as" {
				continue
			}
			names[fields[0]] = true
		}
		clause = strings.Replace(clause, m[0], "", 1)
	}
	def := strings.Trim(strings.TrimSpace(clause), ", \n\t")
	if identRe.MatchString(def) {
		names["default"] = true
	}

	for n := range names {
		imp.Names = append(imp.Names, n)
	}
	sort.Strings(imp.Names)
	return imp, true
}

// ScanSource extracts the imports of the component at rel. Sources are
// passed through aliases, then relative specifiers are resolved against
// rel's directory.
func ScanSource(rel, src string, aliases *alias.Aliases) []Import {
	var out []Import
	for _, stmt := range Statements(src) {
		imp, ok := Parse(stmt.Text)
		if !ok {
			continue
		}
		imp.Line = stmt.Line
		imp.Resolved, imp.Local = alias.Specifier(aliases, rel, imp.Source)
		out = append(out, imp)
	}
	return out
}

// ScanFile reads path and extracts its imports.
func ScanFile(path, rel string, aliases *alias.Aliases) ([]Import, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("markup: read %s: %w", rel, err)
	}
	return ScanSource(rel, string(data), aliases), nil
}

// Merge adds imports to table under importer. Names are unioned into any
// entry already present for the same resolved source.
func Merge(table model.ImportTable, importer string, imports []Import) {
	for _, imp := range imports {
		table.Add(importer, imp.Resolved, imp.Source, imp.Local, imp.Names...)
	}
}
