package embed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	cserrors "github.com/codescope/codescope/internal/errors"
)

// RetryEmbedder wraps another embedder with bounded exponential
// backoff. Only retryable failures (timeouts, unavailability) are
// retried; everything else surfaces immediately.
type RetryEmbedder struct {
	inner      Embedder
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

var _ Embedder = (*RetryEmbedder)(nil)

// NewRetryEmbedder wraps inner with up to maxRetries retries.
func NewRetryEmbedder(inner Embedder, maxRetries int, logger *slog.Logger) *RetryEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryEmbedder{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  200 * time.Millisecond,
		logger:     logger,
	}
}

// Embed delegates to the inner embedder, retrying transient failures.
func (e *RetryEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.baseDelay << (attempt - 1)
			e.logger.Debug("retrying embedding call",
				"attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		vectors, err := e.inner.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		var csErr *cserrors.Error
		if !errors.As(err, &csErr) || !csErr.Retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

// Dimensions delegates to the inner embedder.
func (e *RetryEmbedder) Dimensions() int { return e.inner.Dimensions() }
