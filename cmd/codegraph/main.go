package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/codegraph"
	"github.com/jward/codegraph/internal/behavior"
	"github.com/jward/codegraph/internal/config"
	"github.com/jward/codegraph/internal/store"
	"github.com/jward/codegraph/internal/watch"
)

var (
	flagDB      string
	flagFormat  string
	flagConfig  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "codegraph",
	Short:         "Structural code graph and health warnings for JS/TS projects",
	Long:          "Codegraph parses a JavaScript/TypeScript project with tree-sitter, builds a graph of files, functions and classes, detects structural warnings and stores scans in SQLite.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: store.path from config, relative to the project root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .codegraph.yaml in the project root)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging on stderr")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scansCmd)
	rootCmd.AddCommand(warningsCmd)
	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(summaryCmd)
}

// --- Project session ---

// session bundles what every command needs for one project.
type session struct {
	root   string
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
}

func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// openSession loads configuration for the project at root and opens its
// database, creating and migrating it when needed.
func openSession(root string) (*session, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	logger := newLogger(os.Stderr, flagVerbose)

	dbPath := resolveDBPath(root, cfg)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	st, err := store.NewStore(dbPath, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	logger.Debug("cli.session", "root", root, "db", dbPath)
	return &session{root: root, cfg: cfg, logger: logger, store: st}, nil
}

func loadConfig(root string) (*config.Config, error) {
	if flagConfig != "" {
		return config.Load(flagConfig)
	}
	return config.LoadProject(root)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// engine builds an Engine from the session's configuration. The behavioral
// analyzer is attached only when withAnalyzer is set.
func (s *session) engine(withAnalyzer bool) (*codegraph.Engine, error) {
	sc := s.cfg.Scan
	opts := []codegraph.Option{
		codegraph.WithLogger(s.logger),
		codegraph.WithGit(sc.UseGit),
		codegraph.WithRuleOptions(sc.RuleOptions),
		codegraph.WithAnalyzeConcurrency(s.cfg.Analyzer.Concurrency),
		codegraph.WithCacheStore(s.store),
	}
	if sc.Workers > 0 {
		opts = append(opts, codegraph.WithWorkers(sc.Workers))
	}
	if sc.RulesDir != "" {
		dir := sc.RulesDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(s.root, dir)
		}
		opts = append(opts, codegraph.WithRulesDir(dir))
	}
	if withAnalyzer {
		ac := s.cfg.Analyzer
		client, err := behavior.NewClient(behavior.Config{
			Endpoint:       ac.Endpoint,
			APIKey:         s.cfg.APIKey(),
			Model:          ac.Model,
			MaxTokens:      ac.MaxTokens,
			Temperature:    ac.Temperature,
			Timeout:        ac.Timeout,
			MaxSourceChars: ac.MaxSourceChars,
			Logger:         s.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("analyzer: %w (set %s)", err, s.cfg.Analyzer.APIKeyEnv)
		}
		opts = append(opts, codegraph.WithAnalyzer(client))
	}
	return codegraph.New(opts...), nil
}

func (s *session) scanOptions(skipWarnings bool) codegraph.ScanOptions {
	return codegraph.ScanOptions{
		Verbose:      flagVerbose,
		SkipWarnings: skipWarnings || s.cfg.Scan.SkipWarnings,
		WarningOptions: codegraph.WarningOptions{
			MaxFunctionLines:   s.cfg.Scan.MaxFunctionLines,
			DisabledCategories: s.cfg.Scan.DisabledCategories,
		},
	}
}

// --- scan ---

var (
	flagSkipWarnings bool
	flagAnalyze      bool
	flagReuse        bool
	flagForce        bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a project and store the result",
	Long:  "Discovers source files, builds the code graph, detects warnings and stores the scan in the database. With --reuse an unchanged project returns its latest stored scan.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&flagSkipWarnings, "skip-warnings", false, "skip warning detection")
	scanCmd.Flags().BoolVar(&flagAnalyze, "analyze", false, "run behavioral analysis after scanning")
	scanCmd.Flags().BoolVar(&flagReuse, "reuse", false, "return the latest stored scan when no file changed")
}

func runScan(cmd *cobra.Command, args []string) error {
	start := time.Now()
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("scan", err)
	}
	s, err := openSession(root)
	if err != nil {
		return outputError("scan", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagReuse && !flagAnalyze {
		if prev, err := reusableScan(ctx, s); err != nil {
			return outputError("scan", err)
		} else if prev != nil {
			result, err := s.store.GetScan(prev.ID)
			if err != nil {
				return outputError("scan", err)
			}
			s.logger.Info("scan.reused", "id", prev.ID, "tree_hash", prev.TreeHash)
			return outputResult(cmd.OutOrStdout(), CLIResult{Command: "scan", Results: scanSummary(result)})
		}
	}

	e, err := s.engine(flagAnalyze)
	if err != nil {
		return outputError("scan", err)
	}
	result, err := e.Scan(ctx, root, s.scanOptions(flagSkipWarnings))
	if err != nil {
		return outputError("scan", fmt.Errorf("scanning: %w", err))
	}
	var analyzeErr error
	if flagAnalyze {
		_, analyzeErr = e.Analyze(ctx, result, codegraph.AnalyzeOptions{})
	}
	if err := s.store.SaveScan(result); err != nil {
		return outputError("scan", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Scanned %s in %s (%s files, %s warnings)\n",
		root, time.Since(start).Round(time.Millisecond),
		commaInt(result.Stats.TotalFiles), commaInt(len(result.Warnings)))

	if err := outputResult(cmd.OutOrStdout(), CLIResult{Command: "scan", Results: scanSummary(result)}); err != nil {
		return err
	}
	return analyzeErr
}

// reusableScan returns the latest stored scan of the project when its tree
// hash equals the project's current fingerprint.
func reusableScan(ctx context.Context, s *session) (*store.ScanSummary, error) {
	latest, err := s.store.LatestScan(s.root)
	if err != nil || latest == nil || latest.TreeHash == "" {
		return nil, err
	}
	e, err := s.engine(false)
	if err != nil {
		return nil, err
	}
	fp, err := e.Fingerprint(ctx, s.root)
	if err != nil {
		return nil, err
	}
	if fp != latest.TreeHash {
		s.logger.Debug("scan.reuse_miss", "stored", latest.TreeHash, "current", fp)
		return nil, nil
	}
	return latest, nil
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Scan and attach behavioral summaries to functions",
	Long:  "Scans the project and sends every function whose source changed since its last analysis to the configured model. Results are cached by function id and content hash and the scan is stored.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&flagForce, "force", false, "ignore cached analyses")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("analyze", err)
	}
	s, err := openSession(root)
	if err != nil {
		return outputError("analyze", err)
	}
	defer s.Close()

	e, err := s.engine(true)
	if err != nil {
		return outputError("analyze", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stored scans do not carry function source, so analysis always runs
	// on a fresh scan.
	result, err := e.Scan(ctx, root, s.scanOptions(false))
	if err != nil {
		return outputError("analyze", fmt.Errorf("scanning: %w", err))
	}
	report, analyzeErr := e.Analyze(ctx, result, codegraph.AnalyzeOptions{
		Force: flagForce,
		OnResult: func(ev codegraph.AnalyzeEvent) {
			if ev.Err != nil {
				s.logger.Warn("analyze.failed", "function", ev.FunctionID, "err", ev.Err)
			}
		},
	})
	if report == nil {
		return outputError("analyze", analyzeErr)
	}
	if err := s.store.SaveScan(result); err != nil {
		return outputError("analyze", err)
	}
	if err := outputResult(cmd.OutOrStdout(), CLIResult{Command: "analyze", Results: *report}); err != nil {
		return err
	}
	return analyzeErr
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-scan the project whenever source files change",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("watch", err)
	}
	s, err := openSession(root)
	if err != nil {
		return outputError("watch", err)
	}
	defer s.Close()

	e, err := s.engine(false)
	if err != nil {
		return outputError("watch", err)
	}
	rescan := func(ctx context.Context, changed []string) {
		result, err := e.Scan(ctx, root, s.scanOptions(false))
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("watch.scan_failed", "err", err)
			}
			return
		}
		if err := s.store.SaveScan(result); err != nil {
			s.logger.Error("watch.save_failed", "err", err)
			return
		}
		s.logger.Info("watch.rescanned", "changed", len(changed), "id", result.ID,
			"warnings", len(result.Warnings), "health", codegraph.NewQuery(result).HealthScore())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(root, rescan, watch.WithLogger(s.logger))
	if err != nil {
		return outputError("watch", err)
	}
	defer w.Close()

	rescan(ctx, nil)
	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl-C to stop)\n", root)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return outputError("watch", err)
	}
	return nil
}

// --- Helpers ---

// resolveTargetDir returns the absolute path of the project directory.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findProjectRoot walks up from startDir looking for a .codegraph.yaml or a
// .git directory. Returns startDir if neither is found.
func findProjectRoot(startDir string) string {
	dir := startDir
	for {
		if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
			return dir
		}
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the config.
func resolveDBPath(root string, cfg *config.Config) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(root, flagDB)
	}
	return cfg.StorePath(root)
}
