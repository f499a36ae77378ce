// Package testutil provides shared testing utilities for the lorekeep
// project: deterministic provider fakes and a PostgreSQL test container.
package testutil

import (
	"context"
	"crypto/sha256"
	"math"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// FakeEmbedder is a deterministic in-process ai.Embedder.
//
// By default it derives a normalized vector from the SHA-256 of the input
// text, so identical text always embeds identically. Explicit vectors can
// be registered for precise similarity control, and failures can be queued
// to exercise retry paths.
//
// Thread-safe for concurrent use.
type FakeEmbedder struct {
	mu       sync.Mutex
	dim      int
	vectors  map[string][]float32
	failures []error
	calls    int
	texts    []string
}

// NewFakeEmbedder creates a fake embedder producing vectors of the given
// dimensionality.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	return &FakeEmbedder{
		dim:     dim,
		vectors: make(map[string][]float32),
	}
}

// SetVector registers an explicit vector for a given content string.
// Use this to control exact cosine similarity between test inputs.
func (e *FakeEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// FailNext queues errors returned by subsequent Embed calls, in order,
// before any embedding is produced.
func (e *FakeEmbedder) FailNext(errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, errs...)
}

// Calls returns the number of Embed invocations so far.
func (e *FakeEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// EmbeddedTexts returns every text embedded so far, in call order.
func (e *FakeEmbedder) EmbeddedTexts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]string, len(e.texts))
	copy(cp, e.texts)
	return cp
}

// Name implements ai.Embedder.
func (e *FakeEmbedder) Name() string { return "fake/test-embedder" }

// Register implements ai.Embedder (no-op for testing).
func (e *FakeEmbedder) Register(_ api.Registry) {}

// Embed implements ai.Embedder.
func (e *FakeEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if len(e.failures) > 0 {
		err := e.failures[0]
		e.failures = e.failures[1:]
		return nil, err
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		text := documentText(doc)
		e.texts = append(e.texts, text)

		vec, ok := e.vectors[text]
		if !ok {
			vec = deterministicVector(text, e.dim)
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// documentText extracts all text content from a Document's parts.
func documentText(doc *ai.Document) string {
	var out string
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			out += p.Text
		}
	}
	return out
}

// deterministicVector generates a normalized vector from content using
// SHA-256. The same content always produces the same vector.
func deterministicVector(content string, dim int) []float32 {
	hash := sha256.Sum256([]byte(content))
	vec := make([]float32, dim)

	var norm float64
	for i := range vec {
		b := hash[i%len(hash)]
		// Spread values into [-1, 1).
		vec[i] = float32(int(b)-128) / 128
		norm += float64(vec[i]) * float64(vec[i])
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
