package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes embeddings by content hash in an LRU. It is
// used on the query path, where the same text is embedded repeatedly.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, Vector]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) (*CachedEmbedder, error) {
	cache, err := lru.New[string, Vector](capacity)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed serves cached vectors and forwards only the misses, preserving
// input order in the result.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	vectors := make([]Vector, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := contentKey(text)
		if v, ok := e.cache.Get(key); ok {
			vectors[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		fresh, err := e.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, v := range fresh {
			vectors[missIdx[j]] = v
			e.cache.Add(contentKey(missTexts[j]), v)
		}
	}
	return vectors, nil
}

// Dimensions delegates to the inner embedder.
func (e *CachedEmbedder) Dimensions() int { return e.inner.Dimensions() }

// Len returns the number of cached vectors.
func (e *CachedEmbedder) Len() int { return e.cache.Len() }

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
