package codegraph

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/jward/codegraph/internal/alias"
	"github.com/jward/codegraph/internal/cache"
	"github.com/jward/codegraph/internal/discover"
	"github.com/jward/codegraph/internal/markup"
	"github.com/jward/codegraph/internal/model"
	"github.com/jward/codegraph/internal/rules"
	"github.com/jward/codegraph/internal/warnings"
	builtin "github.com/jward/codegraph/rules"
)

// Engine turns a project directory into a ScanResult and, optionally,
// attaches behavioral summaries to its functions.
type Engine struct {
	logger      *slog.Logger
	workers     int
	useParallel bool
	useGit      bool
	now         func() time.Time

	rulesFS     fs.FS
	rulesDir    string
	ruleOptions map[string]any

	analyzer    Analyzer
	concurrency int
	persister   cache.Persister
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithWorkers bounds the parse worker pool. Zero or less uses one worker
// per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithParallel controls parallel parsing. When true (default), Scan parses
// files on a worker pool and merges results on a single goroutine. Set to
// false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) { e.useParallel = parallel }
}

// WithGit lists files with git ls-files when the root is a work tree so
// .gitignore is respected.
func WithGit(useGit bool) Option {
	return func(e *Engine) { e.useGit = useGit }
}

// WithClock sets the time source for scan and warning timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRulesFS replaces the built-in rule scripts. A nil fsys disables them.
func WithRulesFS(fsys fs.FS) Option {
	return func(e *Engine) { e.rulesFS = fsys }
}

// WithRulesDir adds the rule scripts found in dir after the built-in ones.
func WithRulesDir(dir string) Option {
	return func(e *Engine) { e.rulesDir = dir }
}

// WithRuleOptions sets the options map rule scripts see.
func WithRuleOptions(opts map[string]any) Option {
	return func(e *Engine) { e.ruleOptions = opts }
}

// WithAnalyzer sets the behavioral analyzer used by Analyze.
func WithAnalyzer(a Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithAnalyzeConcurrency bounds the number of in-flight analyzer calls.
func WithAnalyzeConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithCacheStore persists the analysis cache between runs.
func WithCacheStore(p CachePersister) Option {
	return func(e *Engine) { e.persister = p }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		useParallel: true,
		useGit:      true,
		now:         time.Now,
		rulesFS:     builtin.FS,
		concurrency: DefaultAnalyzeConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	return e
}

// Progress is reported once per file as its parse is scheduled. Current
// runs from 1 to Total without gaps.
type Progress struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	FilePath string `json:"filePath"`
}

// WarningOptions tunes warning detection for one scan.
type WarningOptions struct {
	// MaxFunctionLines is the longest function that does not warn. Zero
	// uses the default and a negative value disables the check.
	MaxFunctionLines   int
	DisabledCategories []string

	// PathAliases are added to the aliases read from the project's config
	// files and take precedence over them. Targets are relative to the
	// project root, for example {"@/*": ["src/*"]}.
	PathAliases map[string][]string
}

// ScanOptions controls a single Scan.
type ScanOptions struct {
	Verbose        bool
	SkipWarnings   bool
	WarningOptions WarningOptions

	// OnProgress is called from a single goroutine, in order.
	OnProgress func(Progress)
}

// Scan discovers, parses and checks every source file under root. Per-file
// failures are collected in the result's Errors; only discovery failures
// and cancellation abort the scan.
func (e *Engine) Scan(ctx context.Context, root string, opts ScanOptions) (*ScanResult, error) {
	abs, err := projectRoot(root)
	if err != nil {
		return nil, err
	}
	started := e.now().UTC()
	result := &ScanResult{
		ID:          newScanID(),
		ProjectPath: abs,
		ProjectName: filepath.Base(abs),
		CreatedAt:   started,
		Nodes:       model.NodeMap{},
		Connections: []model.Connection{},
		Warnings:    []model.Warning{},
		Clusters:    []model.Cluster{},
		Errors:      []model.ScanError{},
	}
	e.logger.Info("scan.start", "project", abs, "scan", result.ID)

	dopts := discover.Options{UseGit: e.useGit, Logger: e.logger}
	files, err := discover.Discover(abs, dopts)
	if err != nil {
		return nil, fmt.Errorf("codegraph: discover: %w", err)
	}
	components, err := discover.DiscoverMarkup(abs, dopts)
	if err != nil {
		return nil, fmt.Errorf("codegraph: discover markup: %w", err)
	}
	e.logger.Info("scan.discovered", "project", abs, "files", len(files), "markup", len(components))

	aliases := e.resolveAliases(abs, opts.WarningOptions.PathAliases)

	parsed, err := e.parseFiles(ctx, files, opts)
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]string, len(parsed)+len(components))
	for _, pf := range parsed {
		if pf.hash != "" {
			hashes[pf.rel] = pf.hash
		}
		e.merge(result, pf)
	}

	imports := buildImportTable(result.Nodes, aliases)
	scanned := make([]string, 0, len(files)+len(components))
	for _, f := range files {
		scanned = append(scanned, f.RelPath)
	}
	for _, c := range components {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scanned = append(scanned, c.RelPath)
		hash, err := cache.FileHash(c.Path)
		if err != nil {
			result.Errors = append(result.Errors, fileError(c.RelPath, err))
			continue
		}
		hashes[c.RelPath] = hash
		found, err := markup.ScanFile(c.Path, c.RelPath, aliases)
		if err != nil {
			result.Errors = append(result.Errors, fileError(c.RelPath, err))
			continue
		}
		markup.Merge(imports, c.RelPath, found)
	}
	sortErrors(result.Errors)

	result.Stats = model.NewScanStats()
	result.Stats.TotalFiles = result.Nodes.Count(model.NodeTypeFile)
	result.Stats.TotalFunctions = result.Nodes.Count(model.NodeTypeFunction)
	result.Stats.TotalClasses = result.Nodes.Count(model.NodeTypeClass)
	result.Stats.TotalNodes = len(result.Nodes)
	result.RecountBehavior()

	if !opts.SkipWarnings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		detector := warnings.New(warnings.Options{
			MaxFunctionLines:   opts.WarningOptions.MaxFunctionLines,
			DisabledCategories: opts.WarningOptions.DisabledCategories,
			Rules:              e.ruleSet(),
			Exists:             regularFileIn(abs),
			Now:                e.now,
			Logger:             e.logger,
		})
		result.Warnings = detector.Detect(ctx, warnings.Input{
			Nodes:   result.Nodes,
			Imports: imports,
			Aliases: aliases,
			Files:   scanned,
		}, &result.Stats)
	}

	result.TreeHash = treeHash(hashes)
	result.Status = model.StatusFor(len(result.Nodes), len(result.Errors))
	result.CompletedAt = e.now().UTC()
	e.logger.Info("scan.done",
		"project", abs,
		"scan", result.ID,
		"status", result.Status,
		"nodes", len(result.Nodes),
		"warnings", len(result.Warnings),
		"errors", len(result.Errors),
		"elapsed", result.CompletedAt.Sub(started),
	)
	return result, nil
}

// merge folds one parsed file into result. It runs on a single goroutine.
func (e *Engine) merge(result *ScanResult, pf parsedFile) {
	if pf.err != nil {
		e.logger.Warn("scan.file_error", "path", pf.rel, "err", pf.err)
		result.Errors = append(result.Errors, fileError(pf.rel, pf.err))
		return
	}
	res := pf.res
	if res.SyntaxError != nil {
		result.Errors = append(result.Errors, *res.SyntaxError)
	}
	result.Nodes.Add(model.NewFileNode(res.File))
	for _, fn := range res.Functions {
		if !result.Nodes.Add(model.NewFunctionNode(fn)) {
			e.logger.Debug("scan.duplicate_node", "id", fn.ID)
		}
	}
	for _, cls := range res.Classes {
		if !result.Nodes.Add(model.NewClassNode(cls)) {
			e.logger.Debug("scan.duplicate_node", "id", cls.ID)
		}
	}
}

func (e *Engine) resolveAliases(root string, extra map[string][]string) *alias.Aliases {
	aliases, err := alias.Resolve(root, e.logger)
	if err != nil {
		e.logger.Warn("scan.aliases_failed", "project", root, "err", err)
		aliases = alias.New()
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		targets := make([]alias.Target, 0, len(extra[k]))
		for _, t := range extra[k] {
			targets = append(targets, alias.Target{Path: t, Explicit: true})
		}
		aliases.Add(k, targets...)
	}
	return aliases
}

// ruleSet returns the built-in rules followed by the project's own.
func (e *Engine) ruleSet() warnings.RuleSet {
	ropts := []rules.Option{rules.WithOptions(e.ruleOptions), rules.WithLogger(e.logger)}
	var chain rules.Chain
	if e.rulesFS != nil {
		chain = append(chain, rules.New(append(ropts, rules.WithFS(e.rulesFS))...))
	}
	if e.rulesDir != "" {
		chain = append(chain, rules.New(append(ropts, rules.WithDir(e.rulesDir))...))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

// buildImportTable records, per file, the modules it imports and the names
// it takes from each. Type-only imports bind nothing at runtime and are
// left out.
func buildImportTable(nodes model.NodeMap, aliases *alias.Aliases) model.ImportTable {
	table := model.ImportTable{}
	for _, f := range nodes.Files() {
		for _, imp := range f.Imports {
			if imp.IsTypeOnly || imp.Source == "" {
				continue
			}
			resolved, local := alias.Specifier(aliases, f.Path, imp.Source)
			names := make([]string, 0, len(imp.Items))
			for _, item := range imp.Items {
				switch {
				case item.IsNamespace:
					names = append(names, "*")
				case item.IsDefault:
					names = append(names, "default")
				default:
					names = append(names, item.Name)
				}
			}
			table.Add(f.Path, resolved, imp.Source, local, names...)
		}
	}
	return table
}

// Fingerprint hashes the discoverable files under root without parsing
// them. It equals the TreeHash a Scan of the same unchanged tree records.
func (e *Engine) Fingerprint(ctx context.Context, root string) (string, error) {
	abs, err := projectRoot(root)
	if err != nil {
		return "", err
	}
	dopts := discover.Options{UseGit: e.useGit, Logger: e.logger}
	files, err := discover.Discover(abs, dopts)
	if err != nil {
		return "", fmt.Errorf("codegraph: discover: %w", err)
	}
	components, err := discover.DiscoverMarkup(abs, dopts)
	if err != nil {
		return "", fmt.Errorf("codegraph: discover markup: %w", err)
	}
	hashes := make(map[string]string, len(files)+len(components))
	for _, f := range append(files, components...) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		h, err := cache.FileHash(f.Path)
		if err != nil {
			continue
		}
		hashes[f.RelPath] = h
	}
	return treeHash(hashes), nil
}

// treeHash digests sorted (path, hash) pairs.
func treeHash(hashes map[string]string) string {
	paths := make([]string, 0, len(hashes))
	for p := range hashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	h := blake3.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(hashes[p]))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func projectRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("codegraph: resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("codegraph: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("codegraph: %s is not a directory", abs)
	}
	return abs, nil
}

// newScanID returns a time-ordered UUID, falling back to a random one.
func newScanID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func regularFileIn(root string) func(string) bool {
	return func(rel string) bool {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		return err == nil && info.Mode().IsRegular()
	}
}

func fileError(rel string, err error) model.ScanError {
	return model.ScanError{FilePath: rel, Message: err.Error(), Recoverable: true}
}

func sortErrors(errs []model.ScanError) {
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].FilePath != errs[j].FilePath {
			return errs[i].FilePath < errs[j].FilePath
		}
		return errs[i].Line < errs[j].Line
	})
}
