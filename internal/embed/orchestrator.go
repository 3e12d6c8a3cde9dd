package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codescope/codescope/internal/chunk"
	cserrors "github.com/codescope/codescope/internal/errors"
)

// DefaultBatchSize groups chunk texts before an embedding call.
const DefaultBatchSize = 500

// Pair holds one chunk's embeddings in both spaces. A pair is only
// ever stored or removed whole; readers never observe one space
// without the other.
type Pair struct {
	Code    Vector `json:"code"`
	Concept Vector `json:"concept"`
}

// Orchestrator owns the per-chunk embedding pairs and the batched
// submission pipeline across both spaces.
type Orchestrator struct {
	codeEmbedder    Embedder
	conceptEmbedder Embedder
	batchSize       int
	logger          *slog.Logger

	// batchMu serializes batch submission so concurrent indexing runs
	// do not interleave half-committed batches.
	batchMu sync.Mutex

	mu    sync.RWMutex
	pairs map[string]Pair
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBatchSize overrides the submission batch size.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator over the two space embedders.
func NewOrchestrator(code, concept Embedder, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		codeEmbedder:    code,
		conceptEmbedder: concept,
		batchSize:       DefaultBatchSize,
		logger:          slog.Default(),
		pairs:           make(map[string]Pair),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EmbedChunks embeds the chunks in batches and stores their pairs.
// A failed batch is logged and skipped; later batches still run. The
// returned count is the number of chunks whose pairs were stored.
func (o *Orchestrator) EmbedChunks(ctx context.Context, chunks []*chunk.Chunk) (int, error) {
	o.batchMu.Lock()
	defer o.batchMu.Unlock()

	embedded := 0
	for start := 0; start < len(chunks); start += o.batchSize {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		end := start + o.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := o.embedBatch(ctx, batch); err != nil {
			o.logger.Warn("embedding batch failed, skipping",
				"offset", start, "size", len(batch), "error", err)
			continue
		}
		embedded += len(batch)
	}
	return embedded, nil
}

// embedBatch embeds one batch in both spaces and commits the pairs
// atomically. Either every chunk in the batch gets a complete pair or
// none does.
func (o *Orchestrator) embedBatch(ctx context.Context, batch []*chunk.Chunk) error {
	codeTexts := make([]string, len(batch))
	conceptTexts := make([]string, len(batch))
	for i, c := range batch {
		codeTexts[i] = c.Content
		conceptTexts[i] = ConceptText(c)
	}

	var codeVecs, conceptVecs []Vector
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := o.codeEmbedder.Embed(gctx, codeTexts)
		codeVecs = v
		return err
	})
	g.Go(func() error {
		v, err := o.conceptEmbedder.Embed(gctx, conceptTexts)
		conceptVecs = v
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for i, c := range batch {
		o.pairs[c.ID] = Pair{Code: codeVecs[i], Concept: conceptVecs[i]}
	}
	return nil
}

// EmbedQuery embeds one query text in both spaces.
func (o *Orchestrator) EmbedQuery(ctx context.Context, text string) (Pair, error) {
	var p Pair
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := embedOne(gctx, o.codeEmbedder, SpaceCode, text)
		if err == nil {
			p.Code = v
		}
		return err
	})
	g.Go(func() error {
		v, err := embedOne(gctx, o.conceptEmbedder, SpaceConcept, text)
		if err == nil {
			p.Concept = v
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Pair{}, err
	}
	return p, nil
}

// embedOne embeds a single text and rejects malformed responses, so a
// misbehaving embedder cannot poison a pair with a missing vector.
func embedOne(ctx context.Context, e Embedder, space Space, text string) (Vector, error) {
	v, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, cserrors.New(cserrors.ErrCodeEmbedBatch,
			fmt.Sprintf("%s embedder returned %d vectors for 1 text", space, len(v)), nil)
	}
	return v[0], nil
}

// Pair returns the stored pair for a chunk ID.
func (o *Orchestrator) Pair(id string) (Pair, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.pairs[id]
	return p, ok
}

// Remove drops the pairs for the given chunk IDs.
func (o *Orchestrator) Remove(ids ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		delete(o.pairs, id)
	}
}

// Len returns the number of stored pairs.
func (o *Orchestrator) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.pairs)
}

// ForEach visits every pair under a read lock. Returning false stops
// the walk. The callback must not call back into the orchestrator.
func (o *Orchestrator) ForEach(fn func(id string, p Pair) bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for id, p := range o.pairs {
		if !fn(id, p) {
			return
		}
	}
}

// Export snapshots all pairs for persistence.
func (o *Orchestrator) Export() map[string]Pair {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]Pair, len(o.pairs))
	for id, p := range o.pairs {
		out[id] = p
	}
	return out
}

// Import replaces the stored pairs, e.g. when loading a persisted
// index.
func (o *Orchestrator) Import(pairs map[string]Pair) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pairs = make(map[string]Pair, len(pairs))
	for id, p := range pairs {
		o.pairs[id] = p
	}
}

// ConceptText renders a chunk's metadata as natural language for the
// concept space: concepts first, then symbols, then location.
func ConceptText(c *chunk.Chunk) string {
	var parts []string
	if len(c.Metadata.Concepts) > 0 {
		parts = append(parts, strings.Join(c.Metadata.Concepts, " "))
	}
	if len(c.Metadata.Symbols) > 0 {
		parts = append(parts, strings.Join(c.Metadata.Symbols, " "))
	}
	if c.Name != "" {
		parts = append(parts, c.Name)
	}
	if c.Metadata.FilePath != "" {
		parts = append(parts, c.Metadata.FilePath)
	}
	if len(parts) == 0 {
		return c.Content
	}
	return strings.Join(parts, " ")
}
