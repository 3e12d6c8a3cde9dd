package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	cserrors "github.com/codescope/codescope/internal/errors"
)

// HTTPEmbedder calls an Ollama-compatible embedding endpoint.
type HTTPEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
	dims    atomic.Int64
}

var _ Embedder = (*HTTPEmbedder)(nil)

// HTTPOption configures an HTTPEmbedder.
type HTTPOption func(*HTTPEmbedder)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPEmbedder) { e.client = c }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(e *HTTPEmbedder) { e.client.Timeout = d }
}

// NewHTTPEmbedder creates an embedder against baseURL using model.
func NewHTTPEmbedder(baseURL, model string, opts ...HTTPOption) *HTTPEmbedder {
	e := &HTTPEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed posts the texts to the /api/embed endpoint.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, cserrors.Wrap(cserrors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cserrors.New(cserrors.ErrCodeEmbedTimeout,
				"embedding request cancelled or timed out", err)
		}
		return nil, cserrors.EmbeddingError("embedding service unreachable", err).
			WithDetail("url", e.baseURL).
			WithSuggestion("check that the embedding service is running")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, cserrors.EmbeddingError(
			fmt.Sprintf("embedding service returned %d", resp.StatusCode), nil).
			WithDetail("model", e.model).
			WithDetail("body", string(snippet))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, cserrors.EmbeddingError("embedding response malformed", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, cserrors.New(cserrors.ErrCodeEmbedBatch,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Embeddings)), nil)
	}

	vectors := make([]Vector, len(parsed.Embeddings))
	for i, emb := range parsed.Embeddings {
		vectors[i] = Vector(emb)
	}
	if len(vectors) > 0 && len(vectors[0]) > 0 {
		e.dims.Store(int64(len(vectors[0])))
	}
	return vectors, nil
}

// Dimensions returns the width observed on the first successful call.
func (e *HTTPEmbedder) Dimensions() int {
	return int(e.dims.Load())
}
