// Package index coordinates the indexing pipeline: scan, chunk,
// enhance, embed, persist.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codescope/codescope/internal/cache"
	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/embed"
	"github.com/codescope/codescope/internal/gitignore"
	"github.com/codescope/codescope/internal/scanner"
	"github.com/codescope/codescope/internal/store"
)

// Result summarizes one indexing run.
type Result struct {
	FilesScanned int           `json:"filesScanned"`
	FilesIndexed int           `json:"filesIndexed"`
	FilesSkipped int           `json:"filesSkipped"`
	FilesRemoved int           `json:"filesRemoved"`
	Chunks       int           `json:"chunks"`
	Embedded     int           `json:"embedded"`
	Duration     time.Duration `json:"duration"`
}

// Runner drives the per-file pipeline and the shared embedding and
// persistence steps.
type Runner struct {
	root     string
	cfg      *config.Config
	registry *chunk.Registry
	builder  *chunk.Builder
	idx      *store.Index
	orch     *embed.Orchestrator
	st       *store.Store
	logger   *slog.Logger

	// built caches per-file chunk lists keyed by path, size, and mtime
	// so watch-mode re-runs skip rebuilding and re-embedding unchanged
	// files. Nil disables caching.
	built *cache.Cache[[]*chunk.Chunk]
}

// NewRunner wires a runner over the shared index, orchestrator, and
// store.
func NewRunner(root string, cfg *config.Config, idx *store.Index,
	orch *embed.Orchestrator, st *store.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	built, err := cache.New[[]*chunk.Chunk](cache.Options{
		MaxSizeBytes:  cfg.Cache.MaxSizeBytes,
		MaxEntries:    cfg.Cache.MaxEntries,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        logger,
	})
	if err != nil {
		logger.Warn("chunk cache disabled", "error", err)
		built = nil
	}
	return &Runner{
		root:     root,
		cfg:      cfg,
		registry: chunk.DefaultRegistry(),
		builder: chunk.NewBuilderWithOptions(chunk.BuilderOptions{
			FilePreviewChars:   cfg.Index.FilePreviewChars,
			FunctionSplitChars: cfg.Index.FunctionSplitChars,
			BlockWindowLines:   cfg.Index.BlockWindowLines,
			MinBlockChars:      cfg.Index.MinBlockChars,
		}),
		idx:    idx,
		orch:   orch,
		st:     st,
		logger: logger,
		built:  built,
	}
}

// chunkKey identifies a file's built chunks by path, size, and mtime.
// Any content change invalidates the entry.
func chunkKey(f scanner.File) string {
	return fmt.Sprintf("%s|%d|%d", f.Path, f.Size, f.ModTime.UnixNano())
}

// Run indexes the tree. Per-file chunking runs in parallel with no
// shared state; embedding submission and persistence are serialized.
// A cancelled run leaves already-committed chunks intact.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	files, err := scanner.Scan(r.root, scanner.Options{
		Include:          r.cfg.Paths.Include,
		Exclude:          r.cfg.Paths.Exclude,
		Ignore:           gitignore.Load(r.root),
		MaxFileSizeBytes: r.cfg.Index.MaxFileSizeBytes,
		Logger:           r.logger,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{FilesScanned: len(files)}

	type fileChunks struct {
		path   string
		chunks []*chunk.Chunk
		reused bool
	}
	var mu sync.Mutex
	var built []fileChunks

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Index.Workers)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			key := chunkKey(f)
			if r.built != nil {
				if chunks, ok := r.built.Get(key); ok {
					mu.Lock()
					built = append(built, fileChunks{path: f.Path, chunks: chunks, reused: true})
					result.FilesIndexed++
					mu.Unlock()
					return nil
				}
			}

			content, err := os.ReadFile(f.AbsPath)
			if err != nil {
				r.logger.Warn("skipping unreadable file", "path", f.Path, "error", err)
				mu.Lock()
				result.FilesSkipped++
				mu.Unlock()
				return nil
			}
			language := r.registry.LanguageForPath(f.Path)
			chunks := r.builder.Build(f.Path, string(content), language)
			if r.built != nil {
				r.built.Set(key, chunks, chunksSize(chunks))
			}

			mu.Lock()
			built = append(built, fileChunks{path: f.Path, chunks: chunks})
			result.FilesIndexed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	// Commit: replace chunks of re-indexed files, drop vanished files,
	// keeping metadata and embeddings in lockstep.
	scanned := make(map[string]bool, len(files))
	for _, f := range files {
		scanned[f.Path] = true
	}
	for _, path := range r.idx.Files() {
		if !scanned[path] {
			r.orch.Remove(r.idx.RemoveFile(path)...)
			result.FilesRemoved++
		}
	}

	var toEmbed []*chunk.Chunk
	for _, fc := range built {
		removed := r.idx.RemoveFile(fc.path)
		if fc.reused {
			// A cache hit means identical content, so existing vector
			// pairs stay valid; only drop ids that no longer exist.
			r.orch.Remove(staleIDs(removed, fc.chunks)...)
		} else {
			r.orch.Remove(removed...)
		}
		r.idx.Add(fc.chunks...)
		result.Chunks += len(fc.chunks)
		for _, c := range fc.chunks {
			if fc.reused {
				if _, ok := r.orch.Pair(c.ID); ok {
					continue
				}
			}
			toEmbed = append(toEmbed, c)
		}
	}

	embedded, err := r.orch.EmbedChunks(ctx, toEmbed)
	result.Embedded = embedded
	if err != nil {
		return result, err
	}

	if err := r.st.Save(r.idx, r.orch); err != nil {
		return result, err
	}

	if r.built != nil {
		r.built.Optimize()
	}

	result.Duration = time.Since(started)
	r.logger.Info("indexing run complete",
		"files", result.FilesIndexed,
		"chunks", result.Chunks,
		"embedded", result.Embedded,
		"removed", result.FilesRemoved,
		"duration", result.Duration)
	return result, nil
}

// chunksSize estimates a chunk list's memory footprint by content bytes.
func chunksSize(chunks []*chunk.Chunk) int64 {
	var n int64
	for _, c := range chunks {
		n += int64(len(c.Content))
	}
	return n
}

// staleIDs returns the removed ids that do not reappear in chunks.
func staleIDs(removed []string, chunks []*chunk.Chunk) []string {
	keep := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = true
	}
	var stale []string
	for _, id := range removed {
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	return stale
}
