package embed

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserrors "github.com/codescope/codescope/internal/errors"
)

// countingEmbedder records how many texts reached the inner embedder.
type countingEmbedder struct {
	inner Embedder
	calls atomic.Int64
	texts atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	c.calls.Add(1)
	c.texts.Add(int64(len(texts)))
	return c.inner.Embed(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

// flakyEmbedder fails the first n calls with a retryable error.
type flakyEmbedder struct {
	inner    Embedder
	failures int
	calls    int
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, cserrors.New(cserrors.ErrCodeEmbedUnavailable, "transient failure", nil)
	}
	return f.inner.Embed(ctx, texts)
}

func (f *flakyEmbedder) Dimensions() int { return f.inner.Dimensions() }

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder("code")

	a, err := e.Embed(context.Background(), []string{"func main() {}"})
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), []string{"func main() {}"})
	require.NoError(t, err)

	assert.Equal(t, a[0], b[0])
	assert.Len(t, a[0], StaticDimensions)
}

func TestStaticEmbedder_UnitNorm(t *testing.T) {
	e := NewStaticEmbedder("code")

	vecs, err := e.Embed(context.Background(), []string{"some content"})
	require.NoError(t, err)

	var norm float64
	for _, f := range vecs[0] {
		norm += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestStaticEmbedder_SeedSeparatesSpaces(t *testing.T) {
	code := NewStaticEmbedder("code")
	concept := NewStaticEmbedder("concept")

	a, err := code.Embed(context.Background(), []string{"text"})
	require.NoError(t, err)
	b, err := concept.Embed(context.Background(), []string{"text"})
	require.NoError(t, err)

	assert.NotEqual(t, a[0], b[0])
}

func TestCachedEmbedder_ServesRepeatsFromCache(t *testing.T) {
	// Given a cached embedder over a counting inner
	counting := &countingEmbedder{inner: NewStaticEmbedder("code")}
	cached, err := NewCachedEmbedder(counting, 16)
	require.NoError(t, err)

	// When the same text is embedded twice
	first, err := cached.Embed(context.Background(), []string{"query"})
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), []string{"query"})
	require.NoError(t, err)

	// Then the inner embedder only saw it once
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counting.calls.Load())
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedder_MixedHitsAndMisses(t *testing.T) {
	counting := &countingEmbedder{inner: NewStaticEmbedder("code")}
	cached, err := NewCachedEmbedder(counting, 16)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	vecs, err := cached.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	// Only the two misses reach the inner embedder
	require.Len(t, vecs, 3)
	assert.Equal(t, int64(3), counting.texts.Load())
}

func TestRetryEmbedder_RecoversFromTransientFailures(t *testing.T) {
	flaky := &flakyEmbedder{inner: NewStaticEmbedder("code"), failures: 2}
	retry := NewRetryEmbedder(flaky, 3, nil)
	retry.baseDelay = 0

	vecs, err := retry.Embed(context.Background(), []string{"text"})

	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryEmbedder_ExhaustsBudget(t *testing.T) {
	flaky := &flakyEmbedder{inner: NewStaticEmbedder("code"), failures: 10}
	retry := NewRetryEmbedder(flaky, 2, nil)
	retry.baseDelay = 0

	_, err := retry.Embed(context.Background(), []string{"text"})

	assert.Error(t, err)
	assert.Equal(t, 3, flaky.calls) // initial attempt plus two retries
}

func TestRetryEmbedder_NonRetryableFailsImmediately(t *testing.T) {
	broken := &brokenEmbedder{code: cserrors.ErrCodeInvalidInput}
	retry := NewRetryEmbedder(broken, 3, nil)
	retry.baseDelay = 0

	_, err := retry.Embed(context.Background(), []string{"text"})

	assert.Error(t, err)
	assert.Equal(t, 1, broken.calls)
}

// brokenEmbedder always fails with the configured code.
type brokenEmbedder struct {
	code  string
	calls int
}

func (b *brokenEmbedder) Embed(context.Context, []string) ([]Vector, error) {
	b.calls++
	return nil, cserrors.New(b.code, "permanent failure", nil)
}

func (b *brokenEmbedder) Dimensions() int { return 0 }

func TestHTTPEmbedder_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "test-model")
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, Vector{0.1, 0.2}, vecs[0])
	assert.Equal(t, 2, e.Dimensions())
}

func TestHTTPEmbedder_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "test-model")
	_, err := e.Embed(context.Background(), []string{"a"})

	require.Error(t, err)
	var csErr *cserrors.Error
	require.ErrorAs(t, err, &csErr)
	assert.True(t, csErr.Retryable)
}

func TestHTTPEmbedder_CountMismatchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1]]}`))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "test-model")
	_, err := e.Embed(context.Background(), []string{"a", "b"})

	assert.Error(t, err)
}

func TestHTTPEmbedder_EmptyInputSkipsNetwork(t *testing.T) {
	e := NewHTTPEmbedder("http://127.0.0.1:1", "test-model")

	vecs, err := e.Embed(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vecs)
}
