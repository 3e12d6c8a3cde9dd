// Package cache provides a TTL and capacity bounded in-memory cache.
//
// Two eviction strategies coexist: capacity pressure on Set reclaims
// expired entries first and then evicts by LRU, while the proactive
// Optimize pass evicts the lowest-scoring tenth by a composite utility
// score that rewards frequently and recently used entries. Expired
// entries are also reclaimed lazily on access and by a periodic sweep.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	cserrors "github.com/codescope/codescope/internal/errors"
)

// scoreScale keeps access counts dominant over second-scale ages in the
// utility score.
const scoreScale = 1000.0

// optimizeThreshold is the size utilization above which Optimize evicts.
const optimizeThreshold = 0.8

// optimizeFraction is the share of entries Optimize evicts, lowest
// utility first.
const optimizeFraction = 0.1

// Options bounds a cache instance.
type Options struct {
	// MaxSizeBytes bounds the total estimated entry size. Zero means
	// no size bound.
	MaxSizeBytes int64

	// MaxEntries bounds the entry count. Must be positive.
	MaxEntries int

	// DefaultTTL applies when Set is called without an explicit TTL.
	DefaultTTL time.Duration

	// SweepInterval is the period of the background expiry sweep used
	// by Start. Zero disables the sweep.
	SweepInterval time.Duration

	// Logger receives eviction and sweep events. Defaults to the
	// process default logger.
	Logger *slog.Logger

	// now overrides the clock in tests.
	now func() time.Time
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		MaxSizeBytes:  64 << 20,
		MaxEntries:    10000,
		DefaultTTL:    24 * time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

type entry[V any] struct {
	value      V
	size       int64
	expiresAt  time.Time
	insertedAt time.Time
	accessedAt time.Time
	accesses   int64
}

// Stats is a point-in-time cache snapshot.
type Stats struct {
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"sizeBytes"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Expired   int64   `json:"expired"`
	HitRate   float64 `json:"hitRate"`
}

// Cache is a bounded TTL cache. All methods are safe for concurrent use.
type Cache[V any] struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry[V]
	size    int64

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a cache with the given bounds.
func New[V any](opts Options) (*Cache[V], error) {
	if opts.MaxEntries <= 0 {
		return nil, cserrors.New(cserrors.ErrCodeInvalidCacheCapacity,
			"cache max entries must be positive", nil).
			WithDetail("maxEntries", strconv.Itoa(opts.MaxEntries))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Cache[V]{
		opts:    opts,
		logger:  opts.Logger,
		now:     opts.now,
		entries: make(map[string]*entry[V]),
		stop:    make(chan struct{}),
	}, nil
}

// Start launches the background expiry sweep. It returns immediately;
// the sweep stops when ctx is done or Close is called.
func (c *Cache[V]) Start(ctx context.Context) {
	if c.opts.SweepInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.logger.Debug("cache sweep reclaimed entries", "count", n)
				}
			}
		}
	}()
}

// Close stops the background sweep.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V, size int64) {
	c.SetWithTTL(key, value, size, c.opts.DefaultTTL)
}

// SetWithTTL stores value under key. An existing entry is replaced and
// its statistics reset. Entries larger than the whole size bound are
// rejected silently.
func (c *Cache[V]) SetWithTTL(key string, value V, size int64, ttl time.Duration) {
	if c.opts.MaxSizeBytes > 0 && size > c.opts.MaxSizeBytes {
		return
	}
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.size -= old.size
		delete(c.entries, key)
	}

	for len(c.entries) >= c.opts.MaxEntries ||
		(c.opts.MaxSizeBytes > 0 && c.size+size > c.opts.MaxSizeBytes) {
		if !c.evictOneLocked(now) {
			break
		}
	}

	c.entries[key] = &entry[V]{
		value:      value,
		size:       size,
		expiresAt:  now.Add(ttl),
		insertedAt: now,
		accessedAt: now,
	}
	c.size += size
}

// Get returns the cached value and whether it was present and fresh.
// A hit updates the entry's access statistics.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if !now.Before(e.expiresAt) {
		c.removeLocked(key, e)
		c.expired++
		c.misses++
		return zero, false
	}
	e.accesses++
	e.accessedAt = now
	c.hits++
	return e.value, true
}

// Delete removes a key. Missing keys are a no-op.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// Clear removes all entries. Counters are preserved.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.size = 0
}

// Len returns the current entry count.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes all expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.removeLocked(key, e)
			c.expired++
			removed++
		}
	}
	return removed
}

// Optimize evicts the lowest-utility tenth of entries when size
// utilization exceeds the threshold. Returns the eviction count.
func (c *Cache[V]) Optimize() int {
	if c.opts.MaxSizeBytes <= 0 {
		return 0
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if float64(c.size) <= float64(c.opts.MaxSizeBytes)*optimizeThreshold {
		return 0
	}

	type scored struct {
		key   string
		score float64
	}
	candidates := make([]scored, 0, len(c.entries))
	for key, e := range c.entries {
		candidates = append(candidates, scored{key: key, score: c.scoreLocked(e, now)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].key < candidates[j].key
	})

	n := int(float64(len(candidates)) * optimizeFraction)
	if n < 1 {
		n = 1
	}
	for _, s := range candidates[:n] {
		e := c.entries[s.key]
		c.removeLocked(s.key, e)
		c.evictions++
	}
	c.logger.Debug("cache optimize evicted entries", "count", n, "remaining", len(c.entries))
	return n
}

// Stats returns a snapshot of cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

func (c *Cache[V]) statsLocked() Stats {
	s := Stats{
		Entries:   len(c.entries),
		SizeBytes: c.size,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// scoreLocked computes the utility score. Frequent access raises it;
// old and long-idle entries sink.
func (c *Cache[V]) scoreLocked(e *entry[V], now time.Time) float64 {
	age := now.Sub(e.insertedAt).Seconds()
	idle := now.Sub(e.accessedAt).Seconds()
	return (float64(e.accesses) * scoreScale) / (age + idle + 1)
}

// evictOneLocked removes one entry under capacity pressure: expired
// entries are reclaimed first, otherwise the least recently accessed
// entry goes. Ties break on key order so eviction is deterministic.
func (c *Cache[V]) evictOneLocked(now time.Time) bool {
	if len(c.entries) == 0 {
		return false
	}

	victimKey := ""
	var victimAccessed time.Time
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.removeLocked(key, e)
			c.expired++
			return true
		}
		if victimKey == "" || e.accessedAt.Before(victimAccessed) ||
			(e.accessedAt.Equal(victimAccessed) && key < victimKey) {
			victimKey = key
			victimAccessed = e.accessedAt
		}
	}

	c.removeLocked(victimKey, c.entries[victimKey])
	c.evictions++
	return true
}

func (c *Cache[V]) removeLocked(key string, e *entry[V]) {
	c.size -= e.size
	delete(c.entries, key)
}
