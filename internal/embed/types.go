// Package embed produces vector embeddings for chunk content and
// queries in two spaces: a code-literal space and a concept space.
//
// The orchestrator owns the space pairing and batch submission; the
// Embedder implementations own transport, caching, and retries.
package embed

import "context"

// Space names an embedding space.
type Space string

const (
	// SpaceCode is the code-literal embedding space.
	SpaceCode Space = "code"
	// SpaceConcept is the natural-language concept embedding space.
	SpaceConcept Space = "concept"
)

// Vector is a dense embedding vector.
type Vector []float32

// Embedder produces embeddings for batches of texts.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([]Vector, error)

	// Dimensions returns the vector width, or 0 if unknown until the
	// first call.
	Dimensions() int
}
