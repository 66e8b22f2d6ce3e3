package repository

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
)

// CacheStats counts cache activity since the cache was created.
type CacheStats struct {
	Hits          int64
	Misses        int64
	Invalidations int64
}

// Cached memoizes another provider's families across solves. It is safe
// for concurrent use; concurrent loads of the same family share one read.
type Cached struct {
	provider solver.Provider
	logger   *slog.Logger

	mu       sync.RWMutex
	variants map[string][]*solver.Variant
	exists   map[string]bool
	group    singleflight.Group

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// NewCached wraps provider.
func NewCached(provider solver.Provider, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		provider: provider,
		logger:   logger,
		variants: make(map[string][]*solver.Variant),
		exists:   make(map[string]bool),
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

// FamilyExists answers from the cache, asking the wrapped provider once.
func (c *Cached) FamilyExists(ctx context.Context, family string) (bool, error) {
	c.mu.RLock()
	ok, found := c.exists[family]
	c.mu.RUnlock()
	if found {
		return ok, nil
	}

	ok, err := c.provider.FamilyExists(ctx, family)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.exists[family] = ok
	c.mu.Unlock()
	return ok, nil
}

// Variants yields the cached variants of family, loading every version
// from the wrapped provider on first use.
func (c *Cached) Variants(ctx context.Context, family string, cutoff time.Time) iter.Seq2[*solver.Variant, error] {
	return func(yield func(*solver.Variant, error) bool) {
		vs, err := c.load(ctx, family)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, v := range vs {
			if !cutoff.IsZero() && v.Timestamp.After(cutoff) {
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (c *Cached) load(ctx context.Context, family string) ([]*solver.Variant, error) {
	c.mu.RLock()
	vs, ok := c.variants[family]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return vs, nil
	}

	result, err, _ := c.group.Do(family, func() (interface{}, error) {
		c.mu.RLock()
		vs, ok := c.variants[family]
		c.mu.RUnlock()
		if ok {
			return vs, nil
		}

		c.misses.Add(1)
		var loaded []*solver.Variant
		for v, err := range c.provider.Variants(ctx, family, time.Time{}) {
			if err != nil {
				return nil, fmt.Errorf("caching %s: %w", family, err)
			}
			loaded = append(loaded, v)
		}

		c.mu.Lock()
		c.variants[family] = loaded
		c.mu.Unlock()
		c.logger.Debug("cached family", "family", family, "variants", len(loaded))
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*solver.Variant), nil
}

// Invalidate drops family from the cache.
func (c *Cached) Invalidate(family string) {
	c.mu.Lock()
	_, loaded := c.variants[family]
	_, checked := c.exists[family]
	delete(c.variants, family)
	delete(c.exists, family)
	c.mu.Unlock()

	if loaded || checked {
		c.invalidations.Add(1)
		c.logger.Debug("invalidated family", "family", family)
	}
}

// InvalidateAll empties the cache.
func (c *Cached) InvalidateAll() {
	c.mu.Lock()
	c.variants = make(map[string][]*solver.Variant)
	c.exists = make(map[string]bool)
	c.mu.Unlock()
	c.invalidations.Add(1)
}

// Families delegates to the wrapped provider when it can list families.
func (c *Cached) Families(ctx context.Context) ([]Family, error) {
	if l, ok := c.provider.(Lister); ok {
		return l.Families(ctx)
	}
	return nil, nil
}

// Watch invalidates families whose directories change under any of the
// filesystem repository roots. It returns once the watches are set up;
// watching stops when ctx is done.
func (c *Cached) Watch(ctx context.Context, roots ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	for _, root := range roots {
		if err := addRepositoryDirs(watcher, root, 2); err != nil {
			watcher.Close()
			return err
		}
	}

	go c.processEvents(ctx, watcher, roots)
	return nil
}

// addRepositoryDirs watches root and its subdirectories up to maxDepth
// levels down: family and version directories for a repository root.
func addRepositoryDirs(watcher *fsnotify.Watcher, root string, maxDepth int) error {
	root = filepath.Clean(root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watching %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if depth(root, path) > maxDepth {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func (c *Cached) processEvents(ctx context.Context, watcher *fsnotify.Watcher, roots []string) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			root, family := familyOf(roots, event.Name)
			if family == "" {
				continue
			}
			c.Invalidate(family)

			if event.Has(fsnotify.Create) {
				d := depth(root, event.Name)
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && d <= 2 {
					if err := addRepositoryDirs(watcher, event.Name, 2-d); err != nil {
						c.logger.Warn("watch failed", "path", event.Name, "error", err)
					}
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("watcher error", "error", err)
		}
	}
}

// familyOf returns the repository root containing path and the family the
// path belongs to.
func familyOf(roots []string, path string) (string, string) {
	for _, root := range roots {
		root = filepath.Clean(root)
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		family, _, _ := strings.Cut(rel, string(filepath.Separator))
		return root, family
	}
	return "", ""
}
