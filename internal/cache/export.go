package cache

import "time"

// ExportedEntry is one cache entry in portable form.
type ExportedEntry[V any] struct {
	Key       string    `json:"key"`
	Value     V         `json:"value"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expiresAt"`
	Accesses  int64     `json:"accesses"`
}

// Snapshot is the portable form of a whole cache: its fresh entries
// plus the counter state at export time.
type Snapshot[V any] struct {
	Entries []ExportedEntry[V] `json:"entries"`
	Stats   Stats              `json:"stats"`
}

// Export snapshots all fresh entries together with the cache counters.
// Expired entries are omitted.
func (c *Cache[V]) Export() Snapshot[V] {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]ExportedEntry[V], 0, len(c.entries))
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			continue
		}
		entries = append(entries, ExportedEntry[V]{
			Key:       key,
			Value:     e.value,
			Size:      e.size,
			ExpiresAt: e.expiresAt,
			Accesses:  e.accesses,
		})
	}
	return Snapshot[V]{Entries: entries, Stats: c.statsLocked()}
}

// Import replaces the whole table with the snapshot's entries and
// restores its hit/miss/eviction/expiry counters. Entries that are
// already expired or would overflow the bounds are dropped. Returns
// how many entries were admitted.
func (c *Cache[V]) Import(snap Snapshot[V]) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V], len(snap.Entries))
	c.size = 0
	c.hits = snap.Stats.Hits
	c.misses = snap.Stats.Misses
	c.evictions = snap.Stats.Evictions
	c.expired = snap.Stats.Expired

	admitted := 0
	for _, ee := range snap.Entries {
		if !now.Before(ee.ExpiresAt) {
			continue
		}
		if len(c.entries) >= c.opts.MaxEntries {
			break
		}
		if c.opts.MaxSizeBytes > 0 && c.size+ee.Size > c.opts.MaxSizeBytes {
			continue
		}
		c.entries[ee.Key] = &entry[V]{
			value:      ee.Value,
			size:       ee.Size,
			expiresAt:  ee.ExpiresAt,
			insertedAt: now,
			accessedAt: now,
			accesses:   ee.Accesses,
		}
		c.size += ee.Size
		admitted++
	}
	return admitted
}
