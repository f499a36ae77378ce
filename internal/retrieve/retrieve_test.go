package retrieve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lorekeep/lorekeep/internal/vecstore"
)

type fakeEmbedder struct {
	vector    []float32
	err       error
	lastQuery string
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.lastQuery = text
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeSearcher struct {
	results []vecstore.SearchResult
	err     error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, _ ...vecstore.SearchOption) ([]vecstore.SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// wordCounter bills one token per whitespace-separated word.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func ranked(contents ...string) []vecstore.SearchResult {
	results := make([]vecstore.SearchResult, len(contents))
	for i, content := range contents {
		results[i] = vecstore.SearchResult{
			Chunk:      vecstore.Chunk{DocumentID: "blog/post", Ordinal: i, Content: content},
			Similarity: 1 - float64(i)*0.1,
		}
	}
	return results
}

func newTestRetriever(t *testing.T, searcher *fakeSearcher, budget int) *Retriever {
	t.Helper()
	r, err := New(Config{
		Embedder:    &fakeEmbedder{vector: []float32{1, 0, 0}},
		Store:       searcher,
		Counter:     wordCounter{},
		TokenBudget: budget,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestRetrieveKeepsRankedPrefixWithinBudget(t *testing.T) {
	searcher := &fakeSearcher{results: ranked(
		"one two three",         // 3 tokens
		"four five",             // 2 tokens
		"six seven eight nine",  // 4 tokens, would overflow
	)}
	r := newTestRetriever(t, searcher, 6)

	result, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Chunks) != 2 {
		t.Fatalf("kept %d chunks, want 2", len(result.Chunks))
	}
	if result.TokensUsed != 5 {
		t.Errorf("TokensUsed = %d, want 5", result.TokensUsed)
	}
	if !result.Truncated {
		t.Error("Truncated = false, want true when chunks were dropped")
	}
	// Ranking order preserved: the best chunk comes first.
	if result.Chunks[0].Chunk.Content != "one two three" {
		t.Errorf("first chunk = %q, want best-ranked", result.Chunks[0].Chunk.Content)
	}
}

func TestRetrieveNeverSplitsAChunk(t *testing.T) {
	searcher := &fakeSearcher{results: ranked(
		"one two three four five six seven eight", // 8 tokens
	)}
	r := newTestRetriever(t, searcher, 5)

	result, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !result.Empty() {
		t.Errorf("kept %d chunks, want 0: an oversized chunk must be dropped whole", len(result.Chunks))
	}
	if !result.Truncated {
		t.Error("Truncated = false, want true")
	}
}

func TestRetrieveEmptyResultIsNotAnError(t *testing.T) {
	searcher := &fakeSearcher{}
	r := newTestRetriever(t, searcher, 100)

	result, err := r.Retrieve(context.Background(), "nothing matches this")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !result.Empty() {
		t.Errorf("result = %+v, want empty", result)
	}
	if result.Truncated {
		t.Error("Truncated = true for an empty result")
	}
	if searcher.calls != 1 {
		t.Errorf("search calls = %d, want 1", searcher.calls)
	}
}

func TestRetrieveWholeResultFits(t *testing.T) {
	searcher := &fakeSearcher{results: ranked("one two", "three four")}
	r := newTestRetriever(t, searcher, 100)

	result, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Chunks) != 2 || result.Truncated {
		t.Errorf("result = %+v, want both chunks, not truncated", result)
	}
	if result.TokensUsed != 4 {
		t.Errorf("TokensUsed = %d, want 4", result.TokensUsed)
	}
}

func TestRetrievePropagatesErrors(t *testing.T) {
	embedErr := errors.New("provider down")
	r, err := New(Config{
		Embedder: &fakeEmbedder{err: embedErr},
		Store:    &fakeSearcher{},
		Counter:  wordCounter{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "query"); !errors.Is(err, embedErr) {
		t.Errorf("Retrieve() error = %v, want wrapped %v", err, embedErr)
	}

	searchErr := errors.New("store down")
	r = newTestRetriever(t, &fakeSearcher{err: searchErr}, 100)
	if _, err := r.Retrieve(context.Background(), "query"); !errors.Is(err, searchErr) {
		t.Errorf("Retrieve() error = %v, want wrapped %v", err, searchErr)
	}
}

func TestRetrieveEmbedsExpandedQueryButReportsOriginal(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	searcher := &fakeSearcher{}
	r, err := New(Config{
		Embedder:    embedder,
		Store:       searcher,
		Counter:     wordCounter{},
		TokenBudget: 10,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := r.Retrieve(context.Background(), "previous job")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !strings.Contains(embedder.lastQuery, "employment") || !strings.Contains(embedder.lastQuery, "earlier") {
		t.Errorf("embedded query = %q, want synonyms of %q folded in", embedder.lastQuery, "previous job")
	}
	if result.Query != "previous job" {
		t.Errorf("Result.Query = %q, want the query as asked", result.Query)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Store: &fakeSearcher{}}); err == nil {
		t.Error("New() without embedder expected error")
	}
	if _, err := New(Config{Embedder: &fakeEmbedder{}}); err == nil {
		t.Error("New() without store expected error")
	}
}

func TestHeuristicCounter(t *testing.T) {
	c := heuristicCounter{}
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	if got := c.Count("abcd"); got != 1 {
		t.Errorf("Count(4 chars) = %d, want 1", got)
	}
	if got := c.Count("abcde"); got != 2 {
		t.Errorf("Count(5 chars) = %d, want 2", got)
	}
}
