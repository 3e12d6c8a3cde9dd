package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/embed"
	cserrors "github.com/codescope/codescope/internal/errors"
)

// fixedEmbedder returns the same vector for every text.
type fixedEmbedder struct {
	v embed.Vector
}

func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([]embed.Vector, error) {
	out := make([]embed.Vector, len(texts))
	for i := range out {
		out[i] = f.v
	}
	return out, nil
}

func (f fixedEmbedder) Dimensions() int { return len(f.v) }

// countingEmbedder embeds like fixedEmbedder and counts calls.
type countingEmbedder struct {
	v     embed.Vector
	calls *int
}

func (c countingEmbedder) Embed(_ context.Context, texts []string) ([]embed.Vector, error) {
	*c.calls++
	out := make([]embed.Vector, len(texts))
	for i := range out {
		out[i] = c.v
	}
	return out, nil
}

func (c countingEmbedder) Dimensions() int { return len(c.v) }

// downEmbedder simulates an unavailable embedding service.
type downEmbedder struct{}

func (downEmbedder) Embed(context.Context, []string) ([]embed.Vector, error) {
	return nil, cserrors.New(cserrors.ErrCodeEmbedUnavailable, "service down", nil)
}

func (downEmbedder) Dimensions() int { return 0 }

// chunkMap is an in-memory ChunkSource.
type chunkMap map[string]*chunk.Chunk

func (m chunkMap) Get(id string) (*chunk.Chunk, bool) {
	c, ok := m[id]
	return c, ok
}

// newFixedEngine builds an engine whose query embeds to qCode/qConcept
// and whose index holds the given pairs and chunks.
func newFixedEngine(t *testing.T, qCode, qConcept embed.Vector,
	pairs map[string]embed.Pair, chunks chunkMap) *Engine {
	t.Helper()
	orch := embed.NewOrchestrator(fixedEmbedder{qCode}, fixedEmbedder{qConcept})
	orch.Import(pairs)
	e, err := NewEngine(orch, chunks)
	require.NoError(t, err)
	return e
}

func plainChunk(id string) *chunk.Chunk {
	return &chunk.Chunk{ID: id, Level: chunk.LevelFunction, Name: id}
}

func TestCosine_Laws(t *testing.T) {
	a := embed.Vector{1, 2, 3}
	b := embed.Vector{3, 2, 1}
	zero := embed.Vector{0, 0, 0}

	// Symmetry and unit self-similarity
	assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-12)
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)

	// Zero vectors and mismatched widths are 0, never NaN
	assert.Equal(t, 0.0, Cosine(a, zero))
	assert.Equal(t, 0.0, Cosine(zero, a))
	assert.Equal(t, 0.0, Cosine(a, embed.Vector{1, 2}))
	assert.Equal(t, 0.0, Cosine(nil, a))
}

func TestSearch_FusionKeepsMaxNotSum(t *testing.T) {
	// Given a chunk that ranks top in both spaces with similarity 1.0
	pairs := map[string]embed.Pair{
		"aa": {Code: embed.Vector{1, 0}, Concept: embed.Vector{0, 1}},
		"bb": {Code: embed.Vector{0.5, 0.5}, Concept: embed.Vector{0.5, 0.5}},
	}
	chunks := chunkMap{"aa": plainChunk("aa"), "bb": plainChunk("bb")}
	e := newFixedEngine(t, embed.Vector{1, 0}, embed.Vector{0, 1}, pairs, chunks)

	// When searching
	results, err := e.Search(context.Background(), "zeta", 5)

	// Then the fused relevance is max(0.6*1.0, 0.4*1.0), not the sum
	require.NoError(t, err)
	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, "aa", top.Chunk.ID)
	assert.InDelta(t, 0.6, top.Relevance, 1e-9)
	assert.InDelta(t, 1.0, top.Score, 1e-9)
	assert.InDelta(t, 0.0, top.Distance, 1e-9)
}

func TestSearch_SymbolMatchBoostsRelevance(t *testing.T) {
	// Given two chunks with identical vectors, one carrying a symbol
	// hit for the query's expansion terms
	pairs := map[string]embed.Pair{
		"with":    {Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}},
		"without": {Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}},
	}
	withSym := plainChunk("with")
	withSym.Metadata.Symbols = []string{"loginUser"}
	withSym.Metadata.Concepts = []string{"authentication"}
	withoutSym := plainChunk("without")
	withoutSym.Metadata.Symbols = []string{"renderPage"}
	chunks := chunkMap{"with": withSym, "without": withoutSym}
	e := newFixedEngine(t, embed.Vector{1, 0}, embed.Vector{1, 0}, pairs, chunks)

	results, err := e.Search(context.Background(), "authentication flow", 5)

	// Then the symbol-matching chunk ranks first at 1.5x relevance,
	// with raw score untouched
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "with", results[0].Chunk.ID)
	assert.Equal(t, "without", results[1].Chunk.ID)
	assert.InDelta(t, 1.5, results[0].Relevance/results[1].Relevance, 1e-9)
	assert.InDelta(t, results[0].Score, results[1].Score, 1e-9)
}

func TestSearch_TieBreaksOnAscendingChunkID(t *testing.T) {
	pairs := map[string]embed.Pair{
		"cc": {Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}},
		"aa": {Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}},
		"bb": {Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}},
	}
	chunks := chunkMap{"aa": plainChunk("aa"), "bb": plainChunk("bb"), "cc": plainChunk("cc")}
	e := newFixedEngine(t, embed.Vector{1, 0}, embed.Vector{1, 0}, pairs, chunks)

	for i := 0; i < 5; i++ {
		results, err := e.Search(context.Background(), "zeta", 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "aa", results[0].Chunk.ID)
		assert.Equal(t, "bb", results[1].Chunk.ID)
		assert.Equal(t, "cc", results[2].Chunk.ID)
	}
}

func TestSearch_TruncatesToTopK(t *testing.T) {
	pairs := make(map[string]embed.Pair)
	chunks := chunkMap{}
	for _, id := range []string{"aa", "bb", "cc", "dd", "ee", "ff"} {
		pairs[id] = embed.Pair{Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}}
		chunks[id] = plainChunk(id)
	}
	e := newFixedEngine(t, embed.Vector{1, 0}, embed.Vector{1, 0}, pairs, chunks)

	results, err := e.Search(context.Background(), "zeta", 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_TopKOneFallsBackToCodeSpace(t *testing.T) {
	// Given an index where the best code-space hit and the best
	// concept-space hit are different chunks
	pairs := map[string]embed.Pair{
		"code": {Code: embed.Vector{1, 0}, Concept: embed.Vector{0, 0}},
		"conc": {Code: embed.Vector{0, 0}, Concept: embed.Vector{0, 1}},
	}
	chunks := chunkMap{"code": plainChunk("code"), "conc": plainChunk("conc")}
	e := newFixedEngine(t, embed.Vector{1, 0}, embed.Vector{0, 1}, pairs, chunks)

	// When asking for a single result
	results, err := e.Search(context.Background(), "zeta", 1)

	// Then both per-space splits floor to zero and the whole budget
	// goes to the code space
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "code", results[0].Chunk.ID)
}

func TestSearch_RepeatedQueryReusesEmbedding(t *testing.T) {
	// Given an engine with call-counting embedders
	var codeCalls, conceptCalls int
	orch := embed.NewOrchestrator(
		countingEmbedder{v: embed.Vector{1, 0}, calls: &codeCalls},
		countingEmbedder{v: embed.Vector{0, 1}, calls: &conceptCalls})
	orch.Import(map[string]embed.Pair{
		"aa": {Code: embed.Vector{1, 0}, Concept: embed.Vector{0, 1}},
	})
	e, err := NewEngine(orch, chunkMap{"aa": plainChunk("aa")})
	require.NoError(t, err)

	// When the same query runs twice
	first, err := e.Search(context.Background(), "zeta", 5)
	require.NoError(t, err)
	second, err := e.Search(context.Background(), "zeta", 5)
	require.NoError(t, err)

	// Then the second run is served from the query cache
	assert.Equal(t, 1, codeCalls)
	assert.Equal(t, 1, conceptCalls)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Chunk.ID, second[0].Chunk.ID)
}

func TestSearch_EmptyQueryIsAnError(t *testing.T) {
	e := newFixedEngine(t, embed.Vector{1}, embed.Vector{1}, nil, chunkMap{})

	_, err := e.Search(context.Background(), "   ", 5)

	require.Error(t, err)
	var csErr *cserrors.Error
	require.ErrorAs(t, err, &csErr)
	assert.Equal(t, cserrors.ErrCodeQueryEmpty, csErr.Code)
}

func TestSearch_ZeroTopKYieldsEmpty(t *testing.T) {
	e := newFixedEngine(t, embed.Vector{1}, embed.Vector{1}, nil, chunkMap{})

	results, err := e.Search(context.Background(), "query", 0)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_UnavailableEmbedderDegradesToEmpty(t *testing.T) {
	// Given an engine whose embedding service is down
	orch := embed.NewOrchestrator(downEmbedder{}, downEmbedder{})
	e, err := NewEngine(orch, chunkMap{})
	require.NoError(t, err)

	results, err := e.Search(context.Background(), "anything", 5)

	// Then search degrades to no results instead of failing
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_EmptyIndexYieldsEmpty(t *testing.T) {
	e := newFixedEngine(t, embed.Vector{1, 0}, embed.Vector{0, 1}, nil, chunkMap{})

	results, err := e.Search(context.Background(), "query", 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchWithFilter_RespectsTopK(t *testing.T) {
	pairs := make(map[string]embed.Pair)
	chunks := chunkMap{}
	for i, id := range []string{"aa", "bb", "cc", "dd"} {
		pairs[id] = embed.Pair{Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}}
		c := plainChunk(id)
		if i%2 == 0 {
			c.Metadata.Language = "go"
		} else {
			c.Metadata.Language = "python"
		}
		chunks[id] = c
	}
	e := newFixedEngine(t, embed.Vector{1, 0}, embed.Vector{1, 0}, pairs, chunks)

	results, err := e.SearchWithFilter(context.Background(), "zeta", 1, func(c *chunk.Chunk) bool {
		return c.Metadata.Language == "go"
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "go", results[0].Chunk.Metadata.Language)
}

func TestSearchWithBoost_ReordersAndTruncates(t *testing.T) {
	pairs := map[string]embed.Pair{
		"aa": {Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}},
		"bb": {Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}},
		"cc": {Code: embed.Vector{1, 0}, Concept: embed.Vector{1, 0}},
	}
	chunks := chunkMap{"aa": plainChunk("aa"), "bb": plainChunk("bb"), "cc": plainChunk("cc")}
	e := newFixedEngine(t, embed.Vector{1, 0}, embed.Vector{1, 0}, pairs, chunks)

	results, err := e.SearchWithBoost(context.Background(), "zeta", 2, func(c *chunk.Chunk) float64 {
		if c.ID == "bb" {
			return 3.0
		}
		return 1.0
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "bb", results[0].Chunk.ID)
}
