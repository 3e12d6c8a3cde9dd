package search

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/codescope/codescope/internal/cache"
	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/embed"
	cserrors "github.com/codescope/codescope/internal/errors"
)

// Query embedding cache bounds. Repeated queries skip the embedding
// round trip while an entry is fresh.
const (
	queryCacheEntries = 512
	queryCacheTTL     = 5 * time.Minute
)

// Fusion weights and relevance boosts.
const (
	defaultCodeWeight    = 0.6
	defaultConceptWeight = 0.4

	symbolBoost   = 1.5
	filePathBoost = 1.2
	languageBoost = 1.1
)

// ChunkSource resolves chunk IDs to their metadata records.
type ChunkSource interface {
	Get(id string) (*chunk.Chunk, bool)
}

// Result is one ranked search hit. Score is the raw cosine similarity,
// Distance its complement, and Relevance the fused and boosted rank
// key. Boosts never touch Score or Distance.
type Result struct {
	Chunk     *chunk.Chunk `json:"chunk"`
	Score     float64      `json:"score"`
	Distance  float64      `json:"distance"`
	Relevance float64      `json:"relevance"`
}

// FilterFunc keeps a result when it returns true.
type FilterFunc func(*chunk.Chunk) bool

// BoostFunc returns a relevance multiplier for a chunk.
type BoostFunc func(*chunk.Chunk) float64

// Engine fuses ranked results from the code and concept embedding
// spaces into one relevance-ordered list.
type Engine struct {
	analyzer      *Analyzer
	orch          *embed.Orchestrator
	chunks        ChunkSource
	queries       *cache.Cache[embed.Pair]
	codeWeight    float64
	conceptWeight float64
	timeout       time.Duration
	logger        *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWeights overrides the fusion weights.
func WithWeights(code, concept float64) EngineOption {
	return func(e *Engine) {
		e.codeWeight = code
		e.conceptWeight = concept
	}
}

// WithTimeout bounds a single search invocation.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine over the stored embedding pairs
// and chunk metadata.
func NewEngine(orch *embed.Orchestrator, chunks ChunkSource, opts ...EngineOption) (*Engine, error) {
	analyzer, err := NewAnalyzer(256)
	if err != nil {
		return nil, err
	}
	queries, err := cache.New[embed.Pair](cache.Options{
		MaxEntries: queryCacheEntries,
		DefaultTTL: queryCacheTTL,
	})
	if err != nil {
		return nil, err
	}
	e := &Engine{
		analyzer:      analyzer,
		orch:          orch,
		chunks:        chunks,
		queries:       queries,
		codeWeight:    defaultCodeWeight,
		conceptWeight: defaultConceptWeight,
		timeout:       5 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search returns the topK chunks ranked by fused relevance. An
// unavailable embedding service degrades to an empty result list with
// a logged warning, not an error.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	return e.search(ctx, query, topK)
}

// SearchWithFilter over-fetches, applies the predicate, and truncates
// to topK.
func (e *Engine) SearchWithFilter(ctx context.Context, query string, topK int, keep FilterFunc) ([]Result, error) {
	results, err := e.search(ctx, query, 2*topK)
	if err != nil {
		return nil, err
	}
	filtered := results[:0]
	for _, r := range results {
		if keep(r.Chunk) {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered, nil
}

// SearchWithBoost over-fetches, applies the caller's multiplier to
// relevance and score, re-sorts, and truncates to topK.
func (e *Engine) SearchWithBoost(ctx context.Context, query string, topK int, boost BoostFunc) ([]Result, error) {
	results, err := e.search(ctx, query, 2*topK)
	if err != nil {
		return nil, err
	}
	for i := range results {
		m := boost(results[i].Chunk)
		results[i].Relevance *= m
		results[i].Score *= m
	}
	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (e *Engine) search(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, cserrors.New(cserrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	if topK <= 0 {
		return []Result{}, nil
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	analysis := e.analyzer.Analyze(query)
	input := analysis.EmbeddingInput()
	pair, ok := e.queries.Get(input)
	if !ok {
		var err error
		pair, err = e.orch.EmbedQuery(ctx, input)
		if err != nil {
			e.logger.Warn("query embedding unavailable, returning empty results",
				"query", query, "error", err)
			return []Result{}, nil
		}
		// Failures are never cached so a recovered embedder is retried.
		e.queries.Set(input, pair, pairSize(pair))
	}

	return e.rank(pair, analysis, topK), nil
}

// pairSize estimates a pair's footprint as float32 bytes.
func pairSize(p embed.Pair) int64 {
	return int64(len(p.Code)+len(p.Concept)) * 4
}

// spaceHit is one chunk's similarity in a single space.
type spaceHit struct {
	id  string
	sim float64
}

// rank runs the per-space top-K selection, fuses the two lists, and
// applies analyzer-driven relevance boosts.
func (e *Engine) rank(query embed.Pair, analysis *Analysis, topK int) []Result {
	var codeHits, conceptHits []spaceHit
	e.orch.ForEach(func(id string, p embed.Pair) bool {
		codeHits = append(codeHits, spaceHit{id, Cosine(query.Code, p.Code)})
		conceptHits = append(conceptHits, spaceHit{id, Cosine(query.Concept, p.Concept)})
		return true
	})

	sortHits(codeHits)
	sortHits(conceptHits)

	kCode := topK * 6 / 10
	kConcept := topK * 4 / 10
	// Integer floors zero out both splits for topK 1, which would
	// return nothing. The full budget goes to the code space then.
	if kCode == 0 && kConcept == 0 {
		kCode = topK
	}
	if kCode > len(codeHits) {
		kCode = len(codeHits)
	}
	if kConcept > len(conceptHits) {
		kConcept = len(conceptHits)
	}

	// A chunk present in both lists keeps the max weighted relevance
	// and the max raw similarity, never the sum.
	type fused struct {
		score     float64
		relevance float64
	}
	byID := make(map[string]*fused)
	for _, h := range codeHits[:kCode] {
		byID[h.id] = &fused{score: h.sim, relevance: e.codeWeight * h.sim}
	}
	for _, h := range conceptHits[:kConcept] {
		weighted := e.conceptWeight * h.sim
		if f, ok := byID[h.id]; ok {
			f.score = math.Max(f.score, h.sim)
			f.relevance = math.Max(f.relevance, weighted)
			continue
		}
		byID[h.id] = &fused{score: h.sim, relevance: weighted}
	}

	terms := analysis.Terms()
	results := make([]Result, 0, len(byID))
	for id, f := range byID {
		c, ok := e.chunks.Get(id)
		if !ok {
			continue
		}
		results = append(results, Result{
			Chunk:     c,
			Score:     f.score,
			Distance:  1 - f.score,
			Relevance: f.relevance * boostFor(c, terms),
		})
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// boostFor computes the metadata boost multiplier: symbol match ×1.5,
// file path match ×1.2, language mention ×1.1, each applied once.
func boostFor(c *chunk.Chunk, terms []string) float64 {
	boost := 1.0
	if matchesSymbol(c, terms) {
		boost *= symbolBoost
	}
	if matchesFilePath(c, terms) {
		boost *= filePathBoost
	}
	if matchesLanguage(c, terms) {
		boost *= languageBoost
	}
	return boost
}

func matchesSymbol(c *chunk.Chunk, terms []string) bool {
	for _, sym := range c.Metadata.Symbols {
		lower := strings.ToLower(sym)
		for _, term := range terms {
			if term == lower || (len(term) >= 3 && strings.Contains(lower, term)) {
				return true
			}
		}
	}
	return false
}

func matchesFilePath(c *chunk.Chunk, terms []string) bool {
	path := strings.ToLower(c.Metadata.FilePath)
	if path == "" {
		return false
	}
	for _, term := range terms {
		if len(term) >= 3 && strings.Contains(path, term) {
			return true
		}
	}
	return false
}

func matchesLanguage(c *chunk.Chunk, terms []string) bool {
	if c.Metadata.Language == "" {
		return false
	}
	lang := strings.ToLower(c.Metadata.Language)
	for _, term := range terms {
		if term == lang {
			return true
		}
	}
	return false
}

// sortHits orders by similarity descending, chunk ID ascending on ties.
func sortHits(hits []spaceHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].sim != hits[j].sim {
			return hits[i].sim > hits[j].sim
		}
		return hits[i].id < hits[j].id
	})
}

// sortResults orders by relevance descending; equal relevance breaks
// ties on ascending chunk ID so ranking is deterministic across runs.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

// Cosine returns the cosine similarity of two vectors. Zero vectors
// and mismatched widths yield 0, never NaN.
func Cosine(a, b embed.Vector) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
