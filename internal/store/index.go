// Package store holds the in-memory chunk index and its on-disk form.
//
// Persistence is two JSON documents, a metadata document of full chunk
// records and an embeddings document of per-chunk vector rows, written
// atomically as whole-file overwrites. The two documents' chunk-id
// sets move in lockstep: removing a chunk removes both rows.
package store

import (
	"sort"
	"sync"

	"github.com/codescope/codescope/internal/chunk"
)

// Index is the in-memory chunk table, keyed by chunk ID with a
// per-file secondary index. Safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	chunks map[string]*chunk.Chunk
	byFile map[string][]string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		chunks: make(map[string]*chunk.Chunk),
		byFile: make(map[string][]string),
	}
}

// Add inserts or replaces chunks. Chunks of one file should be added
// together; Add appends their ids to the file's entry in build order.
func (x *Index) Add(chunks ...*chunk.Chunk) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, c := range chunks {
		if _, exists := x.chunks[c.ID]; !exists {
			path := c.Metadata.FilePath
			x.byFile[path] = append(x.byFile[path], c.ID)
		}
		x.chunks[c.ID] = c
	}
}

// Get returns the chunk for an ID.
func (x *Index) Get(id string) (*chunk.Chunk, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.chunks[id]
	return c, ok
}

// RemoveFile drops every chunk of the given file and returns their
// IDs so the caller can remove the matching embedding rows.
func (x *Index) RemoveFile(path string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	ids := x.byFile[path]
	for _, id := range ids {
		delete(x.chunks, id)
	}
	delete(x.byFile, path)
	return ids
}

// Len returns the chunk count.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks)
}

// Files returns the indexed file paths, sorted.
func (x *Index) Files() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	files := make([]string, 0, len(x.byFile))
	for path := range x.byFile {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// All returns every chunk ordered by file path then start line, so
// persisted output is deterministic.
func (x *Index) All() []*chunk.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()

	all := make([]*chunk.Chunk, 0, len(x.chunks))
	for _, c := range x.chunks {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Metadata.FilePath != all[j].Metadata.FilePath {
			return all[i].Metadata.FilePath < all[j].Metadata.FilePath
		}
		if all[i].Metadata.StartLine != all[j].Metadata.StartLine {
			return all[i].Metadata.StartLine < all[j].Metadata.StartLine
		}
		return all[i].ID < all[j].ID
	})
	return all
}

// CountByLevel returns chunk counts per hierarchy level.
func (x *Index) CountByLevel() map[chunk.Level]int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	counts := make(map[chunk.Level]int)
	for _, c := range x.chunks {
		counts[c.Level]++
	}
	return counts
}
