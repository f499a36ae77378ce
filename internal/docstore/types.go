// Package docstore reads documents and change feeds from a
// CouchDB-compatible content store. It is the read-only boundary of the
// ingestion pipeline: it never writes back to the store.
package docstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound indicates the requested document does not exist in the store.
var ErrNotFound = errors.New("document not found")

// Document is a content document as seen by the ingestion pipeline.
// Content is the full reassembled markdown body.
type Document struct {
	ID        string
	Slug      string
	Title     string
	Path      string
	Tags      []string
	Content   string
	Revision  string
	UpdatedAt string

	// Deleted marks a tombstone from the change feed. Tombstones carry
	// only ID and Revision; the store no longer has the body.
	Deleted bool
}

// InPartition reports whether the document's path falls under the given
// path prefix. Tombstones never match: their path is gone, so callers
// must handle deletions by ID across all partitions.
func (d Document) InPartition(prefix string) bool {
	if d.Deleted {
		return false
	}
	return strings.HasPrefix(d.Path, prefix)
}

// Change is a single entry from the store's change feed.
type Change struct {
	// Seq is the feed position after this change. Persisting it lets a
	// later call resume exactly where this one left off.
	Seq string
	Doc Document
}

// Source is the document store as consumed by the ingestion pipeline.
type Source interface {
	// Changes returns all changes after the given feed position, oldest
	// first, together with the position to resume from next time. An
	// empty since means "from the beginning". Only content documents
	// and tombstones appear in the result; internal store records are
	// filtered out.
	Changes(ctx context.Context, since string) ([]Change, string, error)

	// AllDocuments returns every live content document in the store.
	AllDocuments(ctx context.Context) ([]Document, error)

	// Get fetches a single document by ID. Returns ErrNotFound if the
	// document does not exist or has been deleted.
	Get(ctx context.Context, id string) (Document, error)
}
