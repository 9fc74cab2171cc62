// Package watch reports batches of changed source files under a project
// root, debounced so a burst of saves triggers a single re-scan.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/codegraph/internal/discover"
)

// DefaultDebounce is the quiet period after the last event before a batch
// is delivered.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the project-relative slash paths changed since the
// previous batch, sorted.
type ChangeFunc func(ctx context.Context, changed []string)

// Watcher watches every non-ignored directory under a root.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	onChange ChangeFunc
	debounce time.Duration
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New starts watching root. Call Run to deliver changes and Close to
// release the underlying watches.
func New(root string, onChange ChangeFunc, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	w := &Watcher{root: root, fsw: fsw, onChange: onChange, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch: add %s: %w", root, err)
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && discover.IsIgnoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run delivers debounced batches until ctx is done or the watcher is
// closed. onChange runs on Run's goroutine, so batches never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	pending := map[string]struct{}{}
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			rel, ok := w.relevant(event)
			if !ok {
				continue
			}
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch.error", "error", err)

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)
			sort.Strings(changed)
			w.logger.Debug("watch.batch", "files", len(changed))
			w.onChange(ctx, changed)
		}
	}
}

// relevant filters events down to writes, creates, removes and renames of
// files a scan reads. New directories are watched as they appear.
func (w *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !discover.IsIgnoredDir(info.Name()) {
				if err := w.addTree(event.Name); err != nil {
					w.logger.Warn("watch.add_failed", "dir", event.Name, "error", err)
				}
			}
			return "", false
		}
	}
	name := event.Name
	if !discover.IsSourceFile(name) && !discover.IsMarkupFile(name) && !discover.IsConfigFile(name) {
		return "", false
	}
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
