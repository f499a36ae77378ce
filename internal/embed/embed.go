// Package embed wraps an external embedding provider behind a stable
// interface.
//
// The client batches requests up to the provider maximum, retries transient
// failures with exponential backoff, and rejects partial results so chunk
// and embedding alignment can never drift. It holds no state beyond its
// configuration and is safe for concurrent use.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// Sentinel errors classifying provider failures.
var (
	// ErrProviderUnavailable indicates a transient provider failure that
	// persisted through all retry attempts. The caller should retry the
	// batch on a later run.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderTerminal indicates a non-retryable provider failure.
	ErrProviderTerminal = errors.New("embedding provider terminal error")
)

// Config contains all required parameters for the embedding client.
type Config struct {
	Embedder     ai.Embedder   // Genkit embedder (required)
	Dimension    int           // expected vector dimensionality (required)
	MaxBatchSize int           // provider-defined max texts per call
	CallTimeout  time.Duration // per-call timeout (zero = 30s)
	Retry        RetryConfig   // zero-value uses defaults
	RateLimiter  *rate.Limiter // optional proactive rate limiting
	Logger       *slog.Logger  // nil = slog.Default()
}

// Client is the embedding provider adapter.
type Client struct {
	embedder     ai.Embedder
	dimension    int
	maxBatchSize int
	callTimeout  time.Duration
	retry        RetryConfig
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// New creates an embedding Client.
func New(cfg Config) (*Client, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}

	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 100
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialInterval == 0 {
		retry = DefaultRetryConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		embedder:     cfg.Embedder,
		dimension:    cfg.Dimension,
		maxBatchSize: maxBatch,
		callTimeout:  timeout,
		retry:        retry,
		limiter:      cfg.RateLimiter,
		logger:       logger,
	}, nil
}

// Dimension returns the configured vector dimensionality.
func (c *Client) Dimension() int {
	return c.dimension
}

// EmbedBatch embeds texts and returns a same-length, same-order slice of
// vectors. The input is split into provider-sized sub-batches internally.
//
// The call is all-or-nothing: if any sub-batch fails after retries, no
// vectors are returned. A transient failure that survives all retries is
// reported as ErrProviderUnavailable; anything else as ErrProviderTerminal.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.maxBatchSize {
		end := min(start+c.maxBatchSize, len(texts))

		batch, err := c.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrProviderTerminal, len(vectors))
	}
	return vectors[0], nil
}

// embedWithRetry performs one provider call with exponential backoff.
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		// Rate limit each attempt, not just the first.
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		vectors, err := c.embedOnce(ctx, texts)
		if err == nil {
			c.logger.Debug("embedded batch",
				"texts", len(texts),
				"attempts", attempt+1,
				"elapsed", time.Since(start))
			return vectors, nil
		}

		lastErr = err
		if !retryableError(err) {
			return nil, fmt.Errorf("%w: %w", ErrProviderTerminal, err)
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying embed after error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("%w: after %d retries (elapsed: %v): %w",
		ErrProviderUnavailable, c.retry.MaxRetries, time.Since(start), lastErr)
}

// embedOnce performs a single provider call and validates the response shape.
func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := c.embedder.Embed(callCtx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, err
	}

	// A count mismatch would desynchronize chunk/embedding alignment.
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d texts",
			len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != c.dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d",
				i, len(emb.Embedding), c.dimension)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}
