// Package retrieve ranks stored chunks against a query and assembles
// the highest-ranked ones into a token-budgeted context window.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lorekeep/lorekeep/internal/vecstore"
)

const (
	defaultTopK          = 5
	defaultMinSimilarity = 0.35
	defaultTokenBudget   = 3000
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the vector store surface used for retrieval.
type Searcher interface {
	Search(ctx context.Context, queryVector []float32, opts ...vecstore.SearchOption) ([]vecstore.SearchResult, error)
}

// Config assembles a Retriever.
type Config struct {
	Embedder QueryEmbedder
	Store    Searcher
	Counter  TokenCounter // nil = NewTokenCounter()
	Expander *Expander    // nil = NewExpander()

	TopK          int     // 0 = defaultTopK
	MinSimilarity float64 // 0 = defaultMinSimilarity
	TokenBudget   int     // 0 = defaultTokenBudget

	Logger *slog.Logger // nil = slog.Default()
}

// Retriever embeds queries and returns budget-trimmed ranked context.
type Retriever struct {
	embedder      QueryEmbedder
	store         Searcher
	counter       TokenCounter
	expander      *Expander
	topK          int
	minSimilarity float64
	tokenBudget   int
	logger        *slog.Logger
}

// New creates a Retriever.
func New(cfg Config) (*Retriever, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("query embedder is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("searcher is required")
	}

	counter := cfg.Counter
	if counter == nil {
		counter = NewTokenCounter()
	}
	expander := cfg.Expander
	if expander == nil {
		expander = NewExpander()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	minSimilarity := cfg.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = defaultMinSimilarity
	}
	tokenBudget := cfg.TokenBudget
	if tokenBudget <= 0 {
		tokenBudget = defaultTokenBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Retriever{
		embedder:      cfg.Embedder,
		store:         cfg.Store,
		counter:       counter,
		expander:      expander,
		topK:          topK,
		minSimilarity: minSimilarity,
		tokenBudget:   tokenBudget,
		logger:        logger,
	}, nil
}

// Result is the retrieved context for one query. An empty result is a
// normal outcome, not an error: it means nothing relevant is stored.
type Result struct {
	Query      string
	Chunks     []vecstore.SearchResult
	TokensUsed int

	// Truncated is set when ranked chunks were dropped to stay within
	// the token budget.
	Truncated bool
}

// Empty reports whether retrieval found no usable context.
func (r Result) Empty() bool { return len(r.Chunks) == 0 }

// Option adjusts a single retrieval call.
type Option func(*callConfig)

type callConfig struct {
	docType string
	topK    int
}

// WithDocType restricts retrieval to one content type.
func WithDocType(docType string) Option {
	return func(c *callConfig) { c.docType = docType }
}

// WithTopK overrides the candidate count for one call.
func WithTopK(k int) Option {
	return func(c *callConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// Retrieve expands and embeds the query, ranks stored chunks against
// it, and keeps the best-ranked prefix that fits the token budget.
// Chunks are kept or dropped whole; a chunk is never split to squeeze
// into the budget. Result.Query reports the query as asked, not the
// expanded form.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) (Result, error) {
	call := &callConfig{topK: r.topK}
	for _, opt := range opts {
		opt(call)
	}

	expanded := r.expander.Expand(query)
	if expanded != query {
		r.logger.Debug("query expanded", "query", query, "expanded", expanded)
	}

	vector, err := r.embedder.EmbedQuery(ctx, expanded)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}

	searchOpts := []vecstore.SearchOption{
		vecstore.WithTopK(call.topK),
		vecstore.WithMinSimilarity(r.minSimilarity),
	}
	if call.docType != "" {
		searchOpts = append(searchOpts, vecstore.WithDocType(call.docType))
	}

	ranked, err := r.store.Search(ctx, vector, searchOpts...)
	if err != nil {
		return Result{}, fmt.Errorf("search chunks: %w", err)
	}

	result := Result{Query: query}
	for _, candidate := range ranked {
		cost := r.counter.Count(candidate.Chunk.Content)
		if result.TokensUsed+cost > r.tokenBudget {
			result.Truncated = true
			break
		}
		result.Chunks = append(result.Chunks, candidate)
		result.TokensUsed += cost
	}

	r.logger.Debug("retrieval finished",
		"candidates", len(ranked),
		"kept", len(result.Chunks),
		"tokens", result.TokensUsed,
		"truncated", result.Truncated)
	return result, nil
}
