package codegraph

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/jward/codegraph/internal/cache"
	"github.com/jward/codegraph/internal/discover"
	"github.com/jward/codegraph/internal/extract"
)

// parsedFile is the outcome of parsing one file. hash is set whenever the
// file could be read, even if parsing then failed.
type parsedFile struct {
	rel  string
	hash string
	res  *extract.Result
	err  error
}

// parseFiles parses files and returns their outcomes sorted by path.
// Cancellation stops scheduling and returns ctx.Err().
func (e *Engine) parseFiles(ctx context.Context, files []discover.File, opts ScanOptions) ([]parsedFile, error) {
	var (
		out []parsedFile
		err error
	)
	if !e.useParallel || e.workers == 1 || len(files) < 2 {
		out, err = e.parseSerial(ctx, files, opts)
	} else {
		out, err = e.parseParallel(ctx, files, opts)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rel < out[j].rel })
	return out, nil
}

func (e *Engine) parseSerial(ctx context.Context, files []discover.File, opts ScanOptions) ([]parsedFile, error) {
	out := make([]parsedFile, 0, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reportProgress(opts, i+1, len(files), f.RelPath)
		out = append(out, e.parseFile(ctx, f, opts.Verbose))
	}
	return out, nil
}

// parseParallel runs a three-stage pipeline:
//
//	Feed (one goroutine):  schedule files in order and report progress.
//	Parse (worker pool):   read, hash and extract each file.
//	Collect (caller):      gather outcomes; the caller owns the merge.
func (e *Engine) parseParallel(ctx context.Context, files []discover.File, opts ScanOptions) ([]parsedFile, error) {
	numWorkers := min(e.workers, len(files))
	if numWorkers < 1 {
		numWorkers = 1
	}

	workCh := make(chan discover.File)
	resultCh := make(chan parsedFile, numWorkers)

	// ---- Feed ----
	go func() {
		defer close(workCh)
		for i, f := range files {
			if ctx.Err() != nil {
				return
			}
			reportProgress(opts, i+1, len(files), f.RelPath)
			select {
			case workCh <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	// ---- Parse ----
	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range workCh {
				resultCh <- e.parseFile(ctx, f, opts.Verbose)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// ---- Collect ----
	out := make([]parsedFile, 0, len(files))
	for pf := range resultCh {
		out = append(out, pf)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseFile reads and extracts one file. A panic inside the tree walk is
// confined to this file and reported as its error.
func (e *Engine) parseFile(ctx context.Context, f discover.File, verbose bool) (pf parsedFile) {
	pf.rel = f.RelPath
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scan.parse_panic", "path", f.RelPath, "panic", r)
			pf.res = nil
			pf.err = fmt.Errorf("internal error while parsing %s: %v", f.RelPath, r)
		}
	}()
	if verbose {
		e.logger.Debug("scan.parse_file", "path", f.RelPath)
	}

	src, err := os.ReadFile(f.Path)
	if err != nil {
		pf.err = fmt.Errorf("read %s: %w", f.RelPath, err)
		return pf
	}
	pf.hash = cache.ContentHash(string(src))
	pf.res, pf.err = extract.ParseFile(ctx, f.RelPath, src)
	return pf
}

func reportProgress(opts ScanOptions, current, total int, rel string) {
	if opts.OnProgress != nil {
		opts.OnProgress(Progress{Current: current, Total: total, FilePath: rel})
	}
}
