package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock gives tests explicit control over cache time.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(t *testing.T, opts Options) (*Cache[string], *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts.now = clock.now
	c, err := New[string](opts)
	require.NoError(t, err)
	return c, clock
}

func TestNew_RejectsZeroMaxEntries(t *testing.T) {
	_, err := New[string](Options{MaxEntries: 0})
	assert.Error(t, err)
}

func TestSetGet_Basic(t *testing.T) {
	c, _ := newTestCache(t, Options{MaxEntries: 10, DefaultTTL: time.Hour})

	c.Set("a", "alpha", 5)
	v, ok := c.Get("a")

	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestGet_ExpiredEntryIsAMiss(t *testing.T) {
	// Given an entry with a one-minute TTL
	c, clock := newTestCache(t, Options{MaxEntries: 10, DefaultTTL: time.Minute})
	c.Set("a", "alpha", 5)

	// When the TTL elapses
	clock.advance(2 * time.Minute)

	// Then the entry is gone and counted as expired
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestSet_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	// Given a two-entry cache where "hot" was touched more recently
	c, clock := newTestCache(t, Options{MaxEntries: 2, DefaultTTL: time.Hour})
	c.Set("hot", "h", 1)
	c.Set("cold", "c", 1)
	clock.advance(time.Second)
	_, ok := c.Get("hot")
	require.True(t, ok)
	clock.advance(time.Second)

	// When a third entry arrives
	c.Set("new", "n", 1)

	// Then exactly one entry is evicted, the least recently used
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("cold")
	assert.False(t, ok)
	_, ok = c.Get("hot")
	assert.True(t, ok)
	_, ok = c.Get("new")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestSet_NeverExceedsBounds(t *testing.T) {
	c, _ := newTestCache(t, Options{MaxEntries: 5, MaxSizeBytes: 100, DefaultTTL: time.Hour})

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", 30)
		stats := c.Stats()
		assert.LessOrEqual(t, stats.Entries, 5)
		assert.LessOrEqual(t, stats.SizeBytes, int64(100))
	}
}

func TestSet_OversizedEntryRejected(t *testing.T) {
	c, _ := newTestCache(t, Options{MaxEntries: 5, MaxSizeBytes: 100, DefaultTTL: time.Hour})

	c.Set("huge", "v", 200)

	assert.Equal(t, 0, c.Len())
}

func TestSet_ReplaceUpdatesSize(t *testing.T) {
	c, _ := newTestCache(t, Options{MaxEntries: 5, MaxSizeBytes: 100, DefaultTTL: time.Hour})

	c.Set("a", "v1", 40)
	c.Set("a", "v2", 10)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(10), stats.SizeBytes)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestSet_ExpiredEntriesEvictedFirst(t *testing.T) {
	// Given a full cache with one expired entry
	c, clock := newTestCache(t, Options{MaxEntries: 2, DefaultTTL: time.Hour})
	c.SetWithTTL("stale", "s", 1, time.Minute)
	c.Set("fresh", "f", 1)
	clock.advance(10 * time.Minute)

	// When inserting at capacity
	c.Set("new", "n", 1)

	// Then the expired entry is reclaimed instead of a fresh one
	_, ok := c.Get("fresh")
	assert.True(t, ok)
	_, ok = c.Get("stale")
	assert.False(t, ok)
}

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	c, clock := newTestCache(t, Options{MaxEntries: 10, DefaultTTL: time.Hour})
	c.SetWithTTL("short", "s", 1, time.Minute)
	c.Set("long", "l", 1)
	clock.advance(5 * time.Minute)

	removed := c.Sweep()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestOptimize_BelowThresholdIsNoop(t *testing.T) {
	c, _ := newTestCache(t, Options{MaxEntries: 100, MaxSizeBytes: 1000, DefaultTTL: time.Hour})
	c.Set("a", "v", 100) // 10% utilization

	assert.Equal(t, 0, c.Optimize())
	assert.Equal(t, 1, c.Len())
}

func TestOptimize_EvictsLowestUtilityTenth(t *testing.T) {
	// Given 20 entries over 80% utilization, with one entry kept hot
	c, clock := newTestCache(t, Options{MaxEntries: 100, MaxSizeBytes: 1000, DefaultTTL: time.Hour})
	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("k%02d", i), "v", 45) // 900 bytes total
	}
	for i := 0; i < 10; i++ {
		_, ok := c.Get("k07")
		require.True(t, ok)
	}
	clock.advance(time.Second)

	// When optimizing
	evicted := c.Optimize()

	// Then a tenth of the entries go, and the hot entry survives
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 18, c.Len())
	_, ok := c.Get("k07")
	assert.True(t, ok)
}

func TestStats_HitRate(t *testing.T) {
	c, _ := newTestCache(t, Options{MaxEntries: 10, DefaultTTL: time.Hour})
	c.Set("a", "v", 1)

	c.Get("a")
	c.Get("a")
	c.Get("b")
	c.Get("c")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestExportImport_RoundTrip(t *testing.T) {
	// Given a cache with fresh and expired entries and some traffic
	src, clock := newTestCache(t, Options{MaxEntries: 10, DefaultTTL: time.Hour})
	src.Set("keep", "k", 5)
	src.SetWithTTL("drop", "d", 5, time.Minute)
	clock.advance(10 * time.Minute)
	_, ok := src.Get("keep") // hit
	require.True(t, ok)
	src.Get("drop")    // expired, counted as miss
	src.Get("missing") // miss

	// When exporting and importing into a fresh cache
	exported := src.Export()
	dst, dstClock := newTestCache(t, Options{MaxEntries: 10, DefaultTTL: time.Hour})
	dstClock.t = clock.t
	dst.Set("old", "o", 1) // wholesale replace drops pre-existing entries
	admitted := dst.Import(exported)

	// Then only the fresh entry survives the round trip
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, dst.Len())
	v, ok := dst.Get("keep")
	require.True(t, ok)
	assert.Equal(t, "k", v)
	_, ok = dst.Get("old")
	assert.False(t, ok)

	// And the counters come along: the source's hit and misses carry
	// over, with the two gets above added on top
	stats := dst.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, int64(1), stats.Expired)
}

func TestImport_RespectsBounds(t *testing.T) {
	src, clock := newTestCache(t, Options{MaxEntries: 10, DefaultTTL: time.Hour})
	for i := 0; i < 10; i++ {
		src.Set(fmt.Sprintf("k%d", i), "v", 10)
	}

	dst, dstClock := newTestCache(t, Options{MaxEntries: 3, DefaultTTL: time.Hour})
	dstClock.t = clock.t
	admitted := dst.Import(src.Export())

	assert.Equal(t, 3, admitted)
	assert.Equal(t, 3, dst.Len())
}
