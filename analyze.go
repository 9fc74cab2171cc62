package codegraph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/codegraph/internal/behavior"
	"github.com/jward/codegraph/internal/cache"
	"github.com/jward/codegraph/internal/model"
)

// DefaultAnalyzeConcurrency is the default number of in-flight analyzer
// calls.
const DefaultAnalyzeConcurrency = 4

// ErrNoAnalyzer is returned by Analyze when the Engine has no Analyzer.
var ErrNoAnalyzer = errors.New("codegraph: no analyzer configured")

// AnalyzeEvent reports the outcome for one function.
type AnalyzeEvent struct {
	FunctionID string
	Cached     bool
	Err        error
}

// AnalyzeOptions controls a single Analyze.
type AnalyzeOptions struct {
	// Force ignores cached results and analyzes every function again.
	Force bool

	// OnResult is called once per function, never concurrently.
	OnResult func(AnalyzeEvent)
}

// AnalyzeReport counts what Analyze did.
type AnalyzeReport struct {
	Functions int `json:"functions"`
	CacheHits int `json:"cacheHits"`
	Analyzed  int `json:"analyzed"`
	Failed    int `json:"failed"`
	Pruned    int `json:"pruned"`
}

// Analyze attaches a BehaviorResult to every function of result. Cached
// results whose content hash still matches are reused; the rest are sent
// to the Analyzer with bounded concurrency. A function whose analysis
// fails stays pending and its error is included in the returned error.
// The cache is pruned to the functions of result and saved once all
// calls have finished.
func (e *Engine) Analyze(ctx context.Context, result *ScanResult, opts AnalyzeOptions) (*AnalyzeReport, error) {
	if e.analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	c := cache.Open(e.persister, result.ProjectPath, e.logger, cache.WithClock(e.now))
	fns := result.Nodes.Functions()
	report := &AnalyzeReport{Functions: len(fns)}

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(ev AnalyzeEvent) {
		if opts.OnResult != nil {
			opts.OnResult(ev)
		}
	}

	var pending []*model.FunctionNode
	for _, fn := range fns {
		if !opts.Force {
			if res, ok := c.Get(fn.ID, functionHash(fn)); ok {
				fn.Behavior = &res
				report.CacheHits++
				e.logger.Debug("analyze.cache_hit", "function", fn.ID)
				record(AnalyzeEvent{FunctionID: fn.ID, Cached: true})
				continue
			}
		}
		pending = append(pending, fn)
	}
	e.logger.Info("analyze.start", "project", result.ProjectPath,
		"functions", len(fns), "cached", report.CacheHits, "pending", len(pending))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	modelName := e.analyzer.Model()
	for _, fn := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			hash := functionHash(fn)
			var (
				res model.BehaviorResult
				err error
			)
			if fn.Source == "" {
				err = fmt.Errorf("%s: source unavailable", fn.ID)
			} else {
				res, err = e.analyzer.Analyze(ctx, behavior.FunctionInput{
					ID:       fn.ID,
					Name:     fn.Name,
					FilePath: fn.FilePath,
					Source:   fn.Source,
				})
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				errs = append(errs, err)
				e.logger.Warn("analyze.failed", "function", fn.ID, "err", err)
				record(AnalyzeEvent{FunctionID: fn.ID, Err: err})
				return nil
			}
			fn.Behavior = &res
			c.Set(fn.ID, hash, res, modelName)
			report.Analyzed++
			record(AnalyzeEvent{FunctionID: fn.ID})
			return nil
		})
	}
	g.Wait()

	ids := make([]string, len(fns))
	for i, fn := range fns {
		ids[i] = fn.ID
	}
	report.Pruned = c.Prune(ids)
	result.RecountBehavior()

	var saveErr error
	if e.persister != nil {
		if err := e.persister.SaveAnalysisCache(c); err != nil {
			saveErr = fmt.Errorf("codegraph: save analysis cache: %w", err)
		}
	}
	e.logger.Info("analyze.done", "project", result.ProjectPath,
		"analyzed", report.Analyzed, "cached", report.CacheHits,
		"failed", report.Failed, "pruned", report.Pruned)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(errs) > 0 {
		return report, errors.Join(fmt.Errorf("codegraph: %d of %d analyses failed", len(errs), len(pending)),
			errors.Join(errs...), saveErr)
	}
	return report, saveErr
}

func functionHash(fn *model.FunctionNode) string {
	if fn.ContentHash != "" {
		return fn.ContentHash
	}
	return cache.ContentHash(fn.Source)
}
