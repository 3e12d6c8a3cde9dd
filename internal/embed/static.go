package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// StaticDimensions is the width of offline fallback vectors.
const StaticDimensions = 256

// StaticEmbedder derives deterministic unit vectors from content
// hashes. It needs no network and serves as the offline fallback:
// identical text always embeds identically, so exact-match search and
// tests work without a model.
type StaticEmbedder struct {
	seed string
	dims int
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates an offline embedder. The seed separates
// spaces so code and concept vectors for the same text differ.
func NewStaticEmbedder(seed string) *StaticEmbedder {
	return &StaticEmbedder{seed: seed, dims: StaticDimensions}
}

// Embed hashes each text into a normalized vector.
func (e *StaticEmbedder) Embed(_ context.Context, texts []string) ([]Vector, error) {
	vectors := make([]Vector, len(texts))
	for i, text := range texts {
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

// Dimensions returns the fixed vector width.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

func (e *StaticEmbedder) embedOne(text string) Vector {
	v := make(Vector, e.dims)
	sum := sha256.Sum256([]byte(e.seed + "\x00" + text))

	// Stretch the 32-byte digest across the vector by re-hashing with
	// a counter, 8 float32 lanes per digest.
	var norm float64
	for i := 0; i < e.dims; i++ {
		if i%8 == 0 && i > 0 {
			next := sha256.Sum256(append(sum[:], byte(i/8)))
			sum = next
		}
		bits := binary.LittleEndian.Uint32(sum[(i%8)*4 : (i%8)*4+4])
		f := float32(int32(bits)) / float32(math.MaxInt32)
		v[i] = f
		norm += float64(f) * float64(f)
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v
}
