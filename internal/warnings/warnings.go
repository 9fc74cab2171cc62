// Package warnings derives structural warnings from a scanned graph:
// unresolved imports, orphaned functions, unused exports, import cycles and
// overlong functions, plus whatever rule scripts emit.
package warnings

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/jward/codegraph/internal/alias"
	"github.com/jward/codegraph/internal/model"
)

// Built-in categories.
const (
	CategoryUnresolvedImport = "unresolved-import"
	CategoryOrphanedFunction = "orphaned-function"
	CategoryUnusedExport     = "unused-export"
	CategoryCircularImport   = "circular-import"
	CategoryLongFunction     = "long-function"
)

// Categories lists the built-in categories.
var Categories = []string{
	CategoryUnresolvedImport,
	CategoryOrphanedFunction,
	CategoryUnusedExport,
	CategoryCircularImport,
	CategoryLongFunction,
}

// DefaultMaxFunctionLines is used when Options.MaxFunctionLines is zero.
const DefaultMaxFunctionLines = 120

// RuleSet produces additional warnings from the graph. IDs and timestamps
// of returned warnings are assigned by the Detector.
type RuleSet interface {
	Evaluate(ctx context.Context, nodes model.NodeMap) ([]model.Warning, error)
}

// Options configures a Detector.
type Options struct {
	// MaxFunctionLines is the longest function that does not warn. Negative
	// disables the check.
	MaxFunctionLines   int
	DisabledCategories []string
	Rules              RuleSet

	// Exists reports whether a regular file exists at a project-relative
	// path. It backs up the known-file set when probing imports of files
	// that are not scanned, such as stylesheets or declaration files.
	Exists func(rel string) bool

	Now    func() time.Time
	Logger *slog.Logger
}

// Input is the graph a Detector inspects.
type Input struct {
	Nodes   model.NodeMap
	Imports model.ImportTable
	Aliases *alias.Aliases
	// Files are the project-relative paths of every scanned file, markup
	// included. Nil means the file nodes plus the importers in Imports.
	Files []string
}

// Detector runs every enabled check.
type Detector struct {
	opts     Options
	disabled map[string]bool
	logger   *slog.Logger
}

// New returns a Detector with defaults filled.
func New(opts Options) *Detector {
	if opts.MaxFunctionLines == 0 {
		opts.MaxFunctionLines = DefaultMaxFunctionLines
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Detector{opts: opts, disabled: map[string]bool{}, logger: opts.Logger}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	for _, c := range opts.DisabledCategories {
		d.disabled[strings.TrimSpace(c)] = true
	}
	return d
}

// Detect returns the warnings for in, sorted by level, category, file and
// title. Running it twice over the same graph yields the same ids. When
// stats is non-nil its per-level counts are replaced.
func (d *Detector) Detect(ctx context.Context, in Input, stats *model.ScanStats) []model.Warning {
	if in.Nodes == nil {
		in.Nodes = model.NodeMap{}
	}
	if in.Imports == nil {
		in.Imports = model.ImportTable{}
	}
	ix := newModuleIndex(knownFiles(in), d.opts.Exists)

	var found []model.Warning
	if !d.disabled[CategoryUnresolvedImport] {
		found = append(found, unresolvedImports(in, ix)...)
	}
	if !d.disabled[CategoryOrphanedFunction] || !d.disabled[CategoryUnusedExport] {
		found = append(found, unusedFunctions(in, ix)...)
	}
	if !d.disabled[CategoryCircularImport] {
		found = append(found, importCycles(in, ix)...)
	}
	if !d.disabled[CategoryLongFunction] && d.opts.MaxFunctionLines > 0 {
		found = append(found, longFunctions(in.Nodes, d.opts.MaxFunctionLines)...)
	}
	if d.opts.Rules != nil {
		extra, err := d.opts.Rules.Evaluate(ctx, in.Nodes)
		if err != nil {
			d.logger.Warn("warnings.rules_failed", "error", err)
		}
		found = append(found, extra...)
	}

	out := d.finalize(found)
	if stats != nil {
		Tally(stats, out)
	}
	d.logger.Debug("warnings.detected", "count", len(out))
	return out
}

func (d *Detector) finalize(found []model.Warning) []model.Warning {
	now := d.opts.Now().UTC()
	seen := map[string]bool{}
	out := make([]model.Warning, 0, len(found))
	for _, w := range found {
		if w.Category == "" || d.disabled[w.Category] {
			continue
		}
		if !w.Level.Valid() {
			w.Level = model.LevelInfo
		}
		if w.AffectedNodes == nil {
			w.AffectedNodes = []string{}
		}
		w.ID = warningID(w)
		if seen[w.ID] {
			continue
		}
		seen[w.ID] = true
		w.DetectedAt = now
		out = append(out, w)
	}
	Sort(out)
	return out
}

// Sort orders warnings by level, category, file path, title and id.
func Sort(ws []model.Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		a, b := ws[i], ws[j]
		if a.Level.Rank() != b.Level.Rank() {
			return a.Level.Rank() < b.Level.Rank()
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
}

// Tally replaces the per-level counts in stats with those of ws.
func Tally(stats *model.ScanStats, ws []model.Warning) {
	stats.WarningsByLevel = model.NewScanStats().WarningsByLevel
	for _, w := range ws {
		stats.WarningsByLevel[w.Level]++
	}
}

// warningID is a digest of the category, title and affected node ids.
func warningID(w model.Warning) string {
	key := w.Category + "\x00" + w.Title + "\x00" + strings.Join(w.AffectedNodes, "\x00")
	sum := blake3.Sum256([]byte(key))
	return "w_" + hex.EncodeToString(sum[:12])
}

func knownFiles(in Input) []string {
	if in.Files != nil {
		return in.Files
	}
	var files []string
	for _, f := range in.Nodes.Files() {
		files = append(files, f.Path)
	}
	return append(files, in.Imports.Importers()...)
}

func longFunctions(nodes model.NodeMap, limit int) []model.Warning {
	var out []model.Warning
	for _, fn := range nodes.Functions() {
		n := fn.LineCount()
		if n <= limit {
			continue
		}
		out = append(out, model.Warning{
			Category:      CategoryLongFunction,
			Level:         model.LevelInfo,
			Title:         "Long function " + fn.Name,
			Description:   fmt.Sprintf("%s spans %d lines, more than the limit of %d.", fn.Name, n, limit),
			AffectedNodes: []string{fn.ID},
			FilePath:      fn.FilePath,
			Suggestion:    "Split it into smaller functions with a single responsibility each.",
		})
	}
	return out
}
