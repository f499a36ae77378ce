package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// storeFixture serves a minimal CouchDB-shaped API from in-memory docs.
type storeFixture struct {
	docs    map[string]map[string]any
	changes []map[string]any
	lastSeq string
}

func (f *storeFixture) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/content/_changes", func(w http.ResponseWriter, r *http.Request) {
		since := r.URL.Query().Get("since")
		var results []map[string]any
		emit := since == ""
		for _, ch := range f.changes {
			if emit {
				results = append(results, ch)
			}
			if ch["seq"] == since {
				emit = true
			}
		}
		writeJSON(t, w, map[string]any{
			"results":  results,
			"last_seq": f.lastSeq,
			"pending":  0,
		})
	})
	mux.HandleFunc("/content/_all_docs", func(w http.ResponseWriter, r *http.Request) {
		var rows []map[string]any
		for id, doc := range f.docs {
			rows = append(rows, map[string]any{"id": id, "doc": doc})
		}
		writeJSON(t, w, map[string]any{"total_rows": len(rows), "rows": rows})
	})
	mux.HandleFunc("/content/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/content/"):]
		doc, ok := f.docs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(t, w, map[string]any{"error": "not_found"})
			return
		}
		writeJSON(t, w, doc)
	})
	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func newTestClient(t *testing.T, fixture *storeFixture) *Client {
	t.Helper()
	srv := httptest.NewServer(fixture.handler(t))
	t.Cleanup(srv.Close)

	client, err := New(Config{
		BaseURL:  srv.URL,
		Database: "content",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing base URL", Config{Database: "content"}},
		{"missing database", Config{BaseURL: "http://localhost:5984"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

func TestChangesFiltersAndTombstones(t *testing.T) {
	fixture := &storeFixture{
		lastSeq: "4-zzz",
		changes: []map[string]any{
			{
				"seq": "1-aaa", "id": "blog/hello",
				"doc": map[string]any{
					"_id": "blog/hello", "_rev": "3-abc", "type": "plain",
					"slug": "hello", "title": "Hello", "path": "blog/hello",
					"content": "Hello world.",
				},
			},
			{
				"seq": "2-bbb", "id": "blog/hello/block-1",
				"doc": map[string]any{
					"_id": "blog/hello/block-1", "type": "leaf", "data": "fragment",
				},
			},
			{
				"seq": "3-ccc", "id": "blog/old", "deleted": true,
			},
			{
				"seq": "4-zzz", "id": "kb/setup",
				"doc": map[string]any{
					"_id": "kb/setup", "_rev": "1-def", "type": "plain",
					"slug": "setup", "title": "Setup", "path": "kb/setup",
					"content": "Install it.",
				},
			},
		},
	}
	client := newTestClient(t, fixture)

	changes, lastSeq, err := client.Changes(context.Background(), "")
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if lastSeq != "4-zzz" {
		t.Errorf("lastSeq = %q, want %q", lastSeq, "4-zzz")
	}
	if len(changes) != 3 {
		t.Fatalf("got %d changes, want 3 (leaf blocks filtered out)", len(changes))
	}

	if changes[0].Doc.ID != "blog/hello" || changes[0].Doc.Content != "Hello world." {
		t.Errorf("first change = %+v, want blog/hello with content", changes[0].Doc)
	}
	if changes[0].Doc.Revision != "3-abc" {
		t.Errorf("revision = %q, want %q", changes[0].Doc.Revision, "3-abc")
	}

	tomb := changes[1].Doc
	if !tomb.Deleted || tomb.ID != "blog/old" {
		t.Errorf("second change = %+v, want tombstone for blog/old", tomb)
	}
	if tomb.InPartition("blog/") {
		t.Error("tombstone must not match any partition")
	}
}

func TestChangesResumesFromSince(t *testing.T) {
	fixture := &storeFixture{
		lastSeq: "2-bbb",
		changes: []map[string]any{
			{
				"seq": "1-aaa", "id": "blog/first",
				"doc": map[string]any{
					"_id": "blog/first", "_rev": "1-a", "type": "plain",
					"path": "blog/first", "content": "one",
				},
			},
			{
				"seq": "2-bbb", "id": "blog/second",
				"doc": map[string]any{
					"_id": "blog/second", "_rev": "1-b", "type": "plain",
					"path": "blog/second", "content": "two",
				},
			},
		},
	}
	client := newTestClient(t, fixture)

	changes, _, err := client.Changes(context.Background(), "1-aaa")
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if len(changes) != 1 || changes[0].Doc.ID != "blog/second" {
		t.Fatalf("changes after 1-aaa = %+v, want only blog/second", changes)
	}
}

func TestChangesNumericSequences(t *testing.T) {
	fixture := &storeFixture{
		lastSeq: "7",
		changes: []map[string]any{
			{
				"seq": 7, "id": "blog/n",
				"doc": map[string]any{
					"_id": "blog/n", "_rev": "1-n", "type": "plain",
					"path": "blog/n", "content": "numeric",
				},
			},
		},
	}
	client := newTestClient(t, fixture)

	changes, lastSeq, err := client.Changes(context.Background(), "")
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if len(changes) != 1 || changes[0].Seq != "7" {
		t.Fatalf("changes = %+v, want one change with seq 7", changes)
	}
	if lastSeq != "7" {
		t.Errorf("lastSeq = %q, want %q", lastSeq, "7")
	}
}

func TestAssembleFromChildBlocks(t *testing.T) {
	fixture := &storeFixture{
		docs: map[string]map[string]any{
			"blog/split": {
				"_id": "blog/split", "_rev": "2-s", "type": "plain",
				"slug": "split", "title": "Split", "path": "blog/split",
				"children": []string{"blog/split/b1", "blog/split/b2", "blog/split/missing"},
			},
			"blog/split/b1": {"_id": "blog/split/b1", "type": "leaf", "data": "first half, "},
			"blog/split/b2": {"_id": "blog/split/b2", "type": "leaf", "data": "second half."},
		},
	}
	client := newTestClient(t, fixture)

	doc, err := client.Get(context.Background(), "blog/split")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	want := "first half, second half."
	if doc.Content != want {
		t.Errorf("Content = %q, want %q", doc.Content, want)
	}
	if doc.Title != "Split" {
		t.Errorf("Title = %q, want %q", doc.Title, "Split")
	}
}

func TestGetNotFound(t *testing.T) {
	client := newTestClient(t, &storeFixture{docs: map[string]map[string]any{}})

	_, err := client.Get(context.Background(), "blog/nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestAllDocumentsSkipsInternals(t *testing.T) {
	fixture := &storeFixture{
		docs: map[string]map[string]any{
			"blog/a": {
				"_id": "blog/a", "_rev": "1-a", "type": "plain",
				"path": "blog/a", "content": "alpha",
			},
			"blog/a/b1": {"_id": "blog/a/b1", "type": "leaf", "data": "x"},
			"kb/b": {
				"_id": "kb/b", "_rev": "1-b", "type": "plain",
				"path": "kb/b", "content": "beta",
			},
		},
	}
	client := newTestClient(t, fixture)

	docs, err := client.AllDocuments(context.Background())
	if err != nil {
		t.Fatalf("AllDocuments() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	for _, d := range docs {
		if d.Content == "" {
			t.Errorf("document %s has empty content", d.ID)
		}
	}
}

func TestInPartition(t *testing.T) {
	doc := Document{ID: "blog/post", Path: "blog/post"}
	if !doc.InPartition("blog/") {
		t.Error("blog/post should match blog/ partition")
	}
	if doc.InPartition("kb/") {
		t.Error("blog/post should not match kb/ partition")
	}
}

func TestDocumentDefaultsSlugAndTitle(t *testing.T) {
	fixture := &storeFixture{
		docs: map[string]map[string]any{
			"blog/bare": {
				"_id": "blog/bare", "_rev": "1-x", "type": "plain",
				"path": "blog/bare", "content": "body",
			},
		},
	}
	client := newTestClient(t, fixture)

	doc, err := client.Get(context.Background(), "blog/bare")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.Slug != "blog/bare" {
		t.Errorf("Slug = %q, want document ID fallback", doc.Slug)
	}
	if doc.Title != "blog/bare" {
		t.Errorf("Title = %q, want slug fallback", doc.Title)
	}
}
