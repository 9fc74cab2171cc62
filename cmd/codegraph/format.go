package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/jward/codegraph"
	"github.com/jward/codegraph/internal/store"
)

func commaInt(n int) string {
	return humanize.Comma(int64(n))
}

// formatScanText formats a CLIScan as readable text.
func formatScanText(w io.Writer, s CLIScan) {
	fmt.Fprintf(w, "Scan %s (%s)\n", s.ID, s.Status)
	fmt.Fprintf(w, "Project: %s (%s)\n", s.ProjectName, s.ProjectPath)
	fmt.Fprintf(w, "Completed: %s\n", humanize.RelTime(s.CompletedAt, time.Now(), "ago", "from now"))
	fmt.Fprintf(w, "Health: %d/100\n", s.HealthScore)
	fmt.Fprintf(w, "Files: %s  Functions: %s  Classes: %s\n",
		commaInt(s.Stats.TotalFiles), commaInt(s.Stats.TotalFunctions), commaInt(s.Stats.TotalClasses))
	if s.Stats.AnalyzedFunctions > 0 || s.Stats.PendingFunctions > 0 {
		fmt.Fprintf(w, "Analyzed: %s  Pending: %s\n",
			commaInt(s.Stats.AnalyzedFunctions), commaInt(s.Stats.PendingFunctions))
	}
	fmt.Fprintln(w)
	formatLevelsText(w, s.Levels)

	if len(s.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s:%d: %s\n", e.FilePath, e.Line, e.Message)
		}
	}
}

func formatLevelsText(w io.Writer, levels []codegraph.LevelReport) {
	for _, l := range levels {
		fmt.Fprintf(w, "%-8s %s\n", l.Level+":", l.Summary)
	}
}

// formatScanListText formats stored scan summaries as aligned columns.
func formatScanListText(w io.Writer, scans []*store.ScanSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tHEALTH\tFILES\tFUNCTIONS\tWARNINGS")
	for _, s := range scans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID, humanize.RelTime(s.CreatedAt, time.Now(), "ago", "from now"), s.Status, s.HealthScore,
			commaInt(s.TotalFiles), commaInt(s.TotalFunctions), commaInt(s.WarningCount))
	}
	tw.Flush()
}

// formatWarningsText formats warnings as aligned columns.
func formatWarningsText(w io.Writer, warnings []codegraph.Warning) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tCATEGORY\tFILE\tTITLE")
	for _, wr := range warnings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", wr.Level, wr.Category, orDash(wr.FilePath), wr.Title)
	}
	tw.Flush()
}

// formatNodesText formats nodes as aligned columns.
func formatNodesText(w io.Writer, nodes []CLINode) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tNAME\tFILE\tLINES\tFLAGS")
	for _, n := range nodes {
		lines := "-"
		if n.StartLine > 0 {
			lines = fmt.Sprintf("%d-%d", n.StartLine, n.EndLine)
		} else if n.EndLine > 0 {
			lines = fmt.Sprintf("%d", n.EndLine)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.Type, n.Name, n.File, lines, orDash(strings.Join(n.Flags, ",")))
	}
	tw.Flush()
}

// formatFileDetailText formats a FileDetail as readable text.
func formatFileDetailText(w io.Writer, d codegraph.FileDetail) {
	fmt.Fprintf(w, "File: %s (%s, %s lines)\n", d.File.Path, d.File.Language, commaInt(d.File.LineCount))
	fmt.Fprintln(w)

	if len(d.Imports) > 0 {
		fmt.Fprintln(w, "Imports:")
		for _, imp := range d.Imports {
			names := make([]string, 0, len(imp.Items))
			for _, it := range imp.Items {
				names = append(names, it.LocalName())
			}
			fmt.Fprintf(w, "  %s", imp.Source)
			if len(names) > 0 {
				fmt.Fprintf(w, " (%s)", strings.Join(names, ", "))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	if len(d.Exports) > 0 {
		fmt.Fprintln(w, "Exports:")
		for _, exp := range d.Exports {
			fmt.Fprintf(w, "  %s\n", exp.ExportedName())
		}
		fmt.Fprintln(w)
	}

	if len(d.Functions) > 0 {
		fmt.Fprintln(w, "Functions:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, fn := range d.Functions {
			summary := "-"
			if fn.Behavior != nil {
				summary = fn.Behavior.Summary
			}
			fmt.Fprintf(tw, "  %s\t%d-%d\t%s\n", fn.Name, fn.StartLine, fn.EndLine, summary)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(d.Classes) > 0 {
		fmt.Fprintln(w, "Classes:")
		for _, c := range d.Classes {
			fmt.Fprintf(w, "  %s (%d methods)\n", c.Name, len(c.MethodIDs))
		}
		fmt.Fprintln(w)
	}

	if len(d.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, wr := range d.Warnings {
			fmt.Fprintf(w, "  [%s] %s\n", wr.Level, wr.Title)
		}
	}
}

// formatSummaryText formats a ProjectSummary as readable text.
func formatSummaryText(w io.Writer, s codegraph.ProjectSummary) {
	fmt.Fprintf(w, "Project Summary: %s\n", s.ProjectName)
	fmt.Fprintln(w, "===============")
	fmt.Fprintf(w, "Health: %d/100\n", s.HealthScore)
	fmt.Fprintln(w)

	if len(s.Languages) > 0 {
		fmt.Fprintln(w, "Languages:")
		for _, lang := range s.Languages {
			fmt.Fprintf(w, "  %s: %s files, %s functions, %s classes\n",
				lang.Language, commaInt(lang.FileCount), commaInt(lang.FunctionCount), commaInt(lang.ClassCount))
		}
		fmt.Fprintln(w)
	}

	formatLevelsText(w, s.Levels)

	if len(s.TopFiles) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Files with the most warnings:")
		for _, f := range s.TopFiles {
			fmt.Fprintf(w, "  %s (%d)\n", f.FilePath, f.Count)
		}
	}
}

// formatAnalyzeText formats an AnalyzeReport.
func formatAnalyzeText(w io.Writer, r codegraph.AnalyzeReport) {
	fmt.Fprintf(w, "Functions: %s  Cached: %s  Analyzed: %s  Failed: %s  Pruned: %s\n",
		commaInt(r.Functions), commaInt(r.CacheHits), commaInt(r.Analyzed), commaInt(r.Failed), commaInt(r.Pruned))
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIScan:
		formatScanText(w, v)
	case []*store.ScanSummary:
		formatScanListText(w, v)
	case []codegraph.Warning:
		formatWarningsText(w, v)
	case []CLINode:
		formatNodesText(w, v)
	case codegraph.FileDetail:
		formatFileDetailText(w, v)
	case codegraph.ProjectSummary:
		formatSummaryText(w, v)
	case codegraph.AnalyzeReport:
		formatAnalyzeText(w, v)
	case CLIDeleted:
		fmt.Fprintf(w, "Deleted %s\n", english.Plural(int(v.Deleted), "scan", "scans"))
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %s of %s results\n", commaInt(shown), commaInt(count))
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []*store.ScanSummary:
		return len(r)
	case []codegraph.Warning:
		return len(r)
	case []CLINode:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
