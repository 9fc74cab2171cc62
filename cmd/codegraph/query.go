package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/codegraph"
	"github.com/jward/codegraph/internal/store"
)

var (
	flagScanID string
	flagLimit  int
	flagOffset int
	flagSort   string
	flagOrder  string
)

// --- Helpers ---

// querySession opens the session of the project containing the working
// directory.
func querySession() (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	return openSession(findProjectRoot(cwd))
}

// latestScan loads the newest stored scan of the session's project.
func latestScan(s *session) (*codegraph.ScanResult, error) {
	sum, err := s.store.LatestScan(s.root)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, fmt.Errorf("no scan stored for %s (run 'codegraph scan' first)", s.root)
	}
	return s.store.GetScan(sum.ID)
}

// selectedScan returns the scan named by --scan, or the latest one.
func selectedScan(s *session) (*codegraph.ScanResult, error) {
	if flagScanID != "" {
		return s.store.GetScan(flagScanID)
	}
	return latestScan(s)
}

// withQuery runs fn against the selected scan and writes its result.
func withQuery(cmd *cobra.Command, command string, fn func(q *codegraph.QueryBuilder) (CLIResult, error)) error {
	s, err := querySession()
	if err != nil {
		return outputError(command, err)
	}
	defer s.Close()
	result, err := selectedScan(s)
	if err != nil {
		return outputError(command, err)
	}
	out, err := fn(codegraph.NewQuery(result))
	if err != nil {
		return outputError(command, err)
	}
	out.Command = command
	return outputResult(cmd.OutOrStdout(), out)
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagScanID, "scan", "", "scan id (default: latest scan of the project)")
}

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	cmd.Flags().IntVar(&flagOffset, "offset", 0, "pagination offset")
}

// outputResult writes result in the selected format.
func outputResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func buildPagination() codegraph.Pagination {
	return codegraph.Pagination{Limit: flagLimit, Offset: flagOffset}
}

func buildSort() (codegraph.Sort, error) {
	var s codegraph.Sort
	switch flagSort {
	case "", "file":
		s.Field = codegraph.SortByFile
	case "name":
		s.Field = codegraph.SortByName
	case "lines":
		s.Field = codegraph.SortByLines
	default:
		return s, fmt.Errorf("invalid sort %q: must be name, file or lines", flagSort)
	}
	switch flagOrder {
	case "", "asc":
		s.Order = codegraph.Asc
	case "desc":
		s.Order = codegraph.Desc
	default:
		return s, fmt.Errorf("invalid order %q: must be asc or desc", flagOrder)
	}
	return s, nil
}

// --- scans ---

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "List, show and delete stored scans",
}

var scansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored scans of the project, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := querySession()
		if err != nil {
			return outputError("scans list", err)
		}
		defer s.Close()
		sums, err := s.store.ListScans(s.root)
		if err != nil {
			return outputError("scans list", err)
		}
		if sums == nil {
			sums = []*store.ScanSummary{}
		}
		total := len(sums)
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "scans list", Results: sums, TotalCount: &total})
	},
}

var scansShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored scan document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := querySession()
		if err != nil {
			return outputError("scans show", err)
		}
		defer s.Close()
		result, err := s.store.GetScan(args[0])
		if err != nil {
			return outputError("scans show", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "scans show", Results: scanSummary(result)})
	},
}

var scansDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete stored scans",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := querySession()
		if err != nil {
			return outputError("scans delete", err)
		}
		defer s.Close()
		if len(args) == 1 {
			if err := s.store.DeleteScan(args[0]); err != nil {
				return outputError("scans delete", err)
			}
			return outputResult(cmd.OutOrStdout(), CLIResult{Command: "scans delete", Results: CLIDeleted{Deleted: 1}})
		}
		n, err := s.store.DeleteScans(args...)
		if err != nil {
			return outputError("scans delete", err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "scans delete", Results: CLIDeleted{Deleted: n}})
	},
}

func init() {
	scansCmd.AddCommand(scansListCmd)
	scansCmd.AddCommand(scansShowCmd)
	scansCmd.AddCommand(scansDeleteCmd)
}

// --- warnings ---

var (
	flagLevel    string
	flagCategory string
	flagFile     string
)

var warningsCmd = &cobra.Command{
	Use:   "warnings",
	Short: "List warnings of a stored scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "warnings", func(q *codegraph.QueryBuilder) (CLIResult, error) {
			level := codegraph.Level(flagLevel)
			if flagLevel != "" && !level.Valid() {
				return CLIResult{}, fmt.Errorf("invalid level %q: must be error, warning or info", flagLevel)
			}
			page := q.WarningsPage(codegraph.WarningFilter{
				Level:    level,
				Category: flagCategory,
				FilePath: flagFile,
			}, buildPagination())
			return CLIResult{Results: page.Items, TotalCount: &page.TotalCount}, nil
		})
	},
}

func init() {
	warningsCmd.Flags().StringVar(&flagLevel, "level", "", "filter by level: error|warning|info")
	warningsCmd.Flags().StringVar(&flagCategory, "category", "", "filter by category (e.g. orphaned-function)")
	warningsCmd.Flags().StringVar(&flagFile, "file", "", "filter by file or directory")
	addQueryFlags(warningsCmd)
	addPageFlags(warningsCmd)
}

// --- nodes ---

var (
	flagNodeType string
	flagName     string
	flagFlag     string
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List files, functions and classes of a stored scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "nodes", func(q *codegraph.QueryBuilder) (CLIResult, error) {
			sort, err := buildSort()
			if err != nil {
				return CLIResult{}, err
			}
			page, err := q.NodesPage(codegraph.NodeFilter{
				Type:         codegraph.NodeType(flagNodeType),
				FilePath:     flagFile,
				NameContains: flagName,
				Flag:         flagFlag,
			}, sort, buildPagination())
			if err != nil {
				return CLIResult{}, err
			}
			return CLIResult{Results: toCLINodes(page.Items), TotalCount: &page.TotalCount}, nil
		})
	},
}

func init() {
	nodesCmd.Flags().StringVar(&flagNodeType, "type", "", "filter by node type: file|function|class")
	nodesCmd.Flags().StringVar(&flagFile, "file", "", "filter by file or directory")
	nodesCmd.Flags().StringVar(&flagName, "name", "", "case-insensitive name substring")
	nodesCmd.Flags().StringVar(&flagFlag, "flag", "", "behavior flag that must be set (e.g. writesDatabase)")
	nodesCmd.Flags().StringVar(&flagSort, "sort", "", "sort field: name|file|lines")
	nodesCmd.Flags().StringVar(&flagOrder, "order", "asc", "sort order: asc|desc")
	addQueryFlags(nodesCmd)
	addPageFlags(nodesCmd)
}

// --- file ---

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Show imports, exports, functions, classes and warnings of one file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "file", func(q *codegraph.QueryBuilder) (CLIResult, error) {
			d := q.FileDetail(args[0])
			if d == nil {
				return CLIResult{}, errors.New("file not in scan: " + args[0])
			}
			return CLIResult{Results: *d}, nil
		})
	},
}

func init() {
	addQueryFlags(fileCmd)
}

// --- summary ---

var flagTop int

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize a stored scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "summary", func(q *codegraph.QueryBuilder) (CLIResult, error) {
			return CLIResult{Results: *q.ProjectSummary(flagTop)}, nil
		})
	},
}

func init() {
	summaryCmd.Flags().IntVar(&flagTop, "top", 10, "number of files with the most warnings to list")
	addQueryFlags(summaryCmd)
}
