// Package cache holds per-function behavioral analysis results keyed by
// function id and validated by a content hash of the function's source.
package cache

import (
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/jward/codegraph/internal/model"
)

// Version is the cache format version. A persisted cache with a different
// version is treated as absent.
const Version = 1

// Entry is one cached analysis.
type Entry struct {
	ContentHash string               `json:"contentHash"`
	Result      model.BehaviorResult `json:"result"`
	AnalyzedAt  time.Time            `json:"analyzedAt"`
	Model       string               `json:"model"`
}

// Cache is a project-scoped analysis cache. It is safe for concurrent use.
type Cache struct {
	mu sync.RWMutex

	Version     int
	ProjectPath string
	Entries     map[string]Entry
	UpdatedAt   time.Time

	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns an empty cache for project.
func New(project string, opts ...Option) *Cache {
	c := &Cache{
		Version:     Version,
		ProjectPath: project,
		Entries:     map[string]Entry{},
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.UpdatedAt = c.now().UTC()
	return c
}

// Restore rebuilds a persisted cache.
func Restore(project string, updatedAt time.Time, entries map[string]Entry) *Cache {
	if entries == nil {
		entries = map[string]Entry{}
	}
	return &Cache{
		Version:     Version,
		ProjectPath: project,
		Entries:     entries,
		UpdatedAt:   updatedAt,
		now:         time.Now,
	}
}

// Snapshot returns a copy of the entries and the UpdatedAt time.
func (c *Cache) Snapshot() (map[string]Entry, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Entry, len(c.Entries))
	for id, e := range c.Entries {
		out[id] = e
	}
	return out, c.UpdatedAt
}

// Get returns the cached result for id when its stored hash equals hash.
// Any mismatch is a miss.
func (c *Cache) Get(id, hash string) (model.BehaviorResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.Entries[id]
	if !ok || e.ContentHash != hash {
		return model.BehaviorResult{}, false
	}
	return e.Result, true
}

// Entry returns the raw entry for id.
func (c *Cache) Entry(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.Entries[id]
	return e, ok
}

// Set upserts the result for id and bumps UpdatedAt.
func (c *Cache) Set(id, hash string, result model.BehaviorResult, modelName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now().UTC()
	c.Entries[id] = Entry{
		ContentHash: hash,
		Result:      result,
		AnalyzedAt:  now,
		Model:       modelName,
	}
	c.UpdatedAt = now
}

// Prune deletes every entry whose id is not in validIDs and returns the
// number removed. Remaining entries are untouched.
func (c *Cache) Prune(validIDs []string) int {
	valid := make(map[string]struct{}, len(validIDs))
	for _, id := range validIDs {
		valid[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id := range c.Entries {
		if _, ok := valid[id]; !ok {
			delete(c.Entries, id)
			removed++
		}
	}
	if removed > 0 {
		c.UpdatedAt = c.now().UTC()
	}
	return removed
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Entries)
}

// IDs returns the cached function ids sorted.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.Entries))
	for id := range c.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Persister loads and saves caches.
type Persister interface {
	LoadAnalysisCache(project string) (*Cache, error)
	SaveAnalysisCache(c *Cache) error
}

// Open loads the cache for project from p. A missing, unreadable or
// version-mismatched cache yields a fresh empty one.
func Open(p Persister, project string, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if p == nil {
		return New(project, opts...)
	}
	c, err := p.LoadAnalysisCache(project)
	if err != nil {
		logger.Warn("cache.load_failed", "project", project, "err", err)
		return New(project, opts...)
	}
	if c == nil {
		return New(project, opts...)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ContentHash returns the xxh3-128 digest of s in hex.
func ContentHash(s string) string {
	sum := xxh3.HashString128(s).Bytes()
	return hex.EncodeToString(sum[:])
}

// FileHash streams the file at path through xxh3. It equals ContentHash of
// the file's contents.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}
