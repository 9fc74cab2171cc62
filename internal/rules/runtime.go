// Package rules runs user-extensible warning rules written in Risor. Each
// script sees the scanned graph through host functions and reports
// findings with emit.
package rules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/codegraph/internal/model"
)

// Runtime embeds a Risor VM and exposes the graph to rule scripts. Files
// whose names start with "_" are library modules for import, not rules.
type Runtime struct {
	fsys    fs.FS
	dir     string
	options map[string]any
	logger  *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFS loads scripts from fsys, typically an embedded filesystem.
func WithFS(fsys fs.FS) Option {
	return func(r *Runtime) { r.fsys = fsys }
}

// WithDir loads scripts from a directory on disk.
func WithDir(dir string) Option {
	return func(r *Runtime) { r.dir = dir }
}

// WithOptions sets the value of the options global.
func WithOptions(opts map[string]any) Option {
	return func(r *Runtime) { r.options = opts }
}

// WithLogger routes script logging and failures to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// New creates a Runtime. With neither WithFS nor WithDir it has no scripts
// and only RunSource is useful.
func New(opts ...Option) *Runtime {
	r := &Runtime{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.fsys == nil && r.dir != "" {
		r.fsys = os.DirFS(r.dir)
	}
	return r
}

// Scripts lists the rule scripts, sorted.
func (r *Runtime) Scripts() ([]string, error) {
	if r.fsys == nil {
		return nil, nil
	}
	matches, err := fs.Glob(r.fsys, "*.risor")
	if err != nil {
		return nil, fmt.Errorf("rules: list scripts: %w", err)
	}
	var out []string
	for _, m := range matches {
		if !strings.HasPrefix(path.Base(m), "_") {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Evaluate runs every script against nodes. A failing script is logged and
// skipped; its error is joined into the returned error while the warnings
// of the other scripts are still returned.
func (r *Runtime) Evaluate(ctx context.Context, nodes model.NodeMap) ([]model.Warning, error) {
	scripts, err := r.Scripts()
	if err != nil {
		return nil, err
	}
	var (
		out  []model.Warning
		errs []error
	)
	for _, name := range scripts {
		src, err := r.LoadScript(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ws, err := r.eval(ctx, src, name, nodes)
		if err != nil {
			r.logger.Warn("rules.script_failed", "script", name, "error", err)
			errs = append(errs, err)
			continue
		}
		r.logger.Debug("rules.script_done", "script", name, "warnings", len(ws))
		out = append(out, ws...)
	}
	return out, errors.Join(errs...)
}

// RunSource evaluates Risor source against nodes and returns what it emits.
func (r *Runtime) RunSource(ctx context.Context, source string, nodes model.NodeMap) ([]model.Warning, error) {
	return r.eval(ctx, source, "<inline>", nodes)
}

// LoadScript reads a script by its name within the script source.
func (r *Runtime) LoadScript(name string) (string, error) {
	if r.fsys == nil {
		return "", fmt.Errorf("rules: no script source configured")
	}
	data, err := fs.ReadFile(r.fsys, strings.TrimPrefix(path.Clean(name), "/"))
	if err != nil {
		return "", fmt.Errorf("rules: loading script %s: %w", name, err)
	}
	return string(data), nil
}

func (r *Runtime) eval(ctx context.Context, source, label string, nodes model.NodeMap) ([]model.Warning, error) {
	em := &emitter{category: defaultCategory(label)}
	globals := r.buildGlobals(nodes, em, label)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return nil, fmt.Errorf("rules: script %s: %w", label, err)
	}
	return em.warnings, nil
}

// buildImporter lets scripts import helper modules from the same source.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	if r.fsys == nil {
		return nil
	}
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	return importer.NewFSImporter(importer.FSImporterOptions{
		GlobalNames: names,
		SourceFS:    r.fsys,
		Extensions:  []string{".risor"},
	})
}

func (r *Runtime) buildGlobals(nodes model.NodeMap, em *emitter, label string) map[string]any {
	options := r.options
	if options == nil {
		options = map[string]any{}
	}
	return map[string]any{
		"files":     makeFilesFn(nodes),
		"functions": makeFunctionsFn(nodes),
		"classes":   makeClassesFn(nodes),
		"emit":      makeEmitFn(em),
		"options":   toObject(options),
		"log":       mustProxy(&logObject{logger: r.logger, script: label}),
	}
}

// defaultCategory derives a category from a script name:
// "large_class.risor" becomes "large-class".
func defaultCategory(label string) string {
	base := strings.TrimSuffix(path.Base(label), ".risor")
	if base == "<inline>" {
		return "custom-rule"
	}
	return strings.ReplaceAll(base, "_", "-")
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("rules: proxy error: %v", err))
	}
	return p
}

// Chain evaluates several runtimes in order, for example the built-in rules
// followed by a project's own.
type Chain []*Runtime

// Evaluate concatenates the warnings of every runtime.
func (c Chain) Evaluate(ctx context.Context, nodes model.NodeMap) ([]model.Warning, error) {
	var (
		out  []model.Warning
		errs []error
	)
	for _, r := range c {
		ws, err := r.Evaluate(ctx, nodes)
		out = append(out, ws...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}
