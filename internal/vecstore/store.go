// Package vecstore persists chunk embeddings plus metadata in PostgreSQL
// with pgvector similarity indexing.
//
// Writes are transactional per document: all chunks for one document commit
// together or none do, so a similarity search never observes a half-written
// document. Content hashes make re-ingestion of unchanged text a no-op.
package vecstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrStoreConsistency indicates a partial commit was detected. The current
// ingestion run must stop without advancing its cursor.
var ErrStoreConsistency = errors.New("vector store consistency violation")

// upsertChunkSQL writes one chunk row, skipping the update when the stored
// content hash already matches (identical content is a no-op).
const upsertChunkSQL = `INSERT INTO chunks
	(document_id, ordinal, content_hash, revision, doc_type, content, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (document_id, ordinal) DO UPDATE SET
		content_hash = EXCLUDED.content_hash,
		revision     = EXCLUDED.revision,
		doc_type     = EXCLUDED.doc_type,
		content      = EXCLUDED.content,
		embedding    = EXCLUDED.embedding,
		updated_at   = now()
	WHERE chunks.content_hash IS DISTINCT FROM EXCLUDED.content_hash`

// searchTimeout bounds similarity search queries so a degraded index cannot
// block serving.
const searchTimeout = 10 * time.Second

// Store manages chunk rows in PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines; concurrent
// readers rely on PostgreSQL transaction isolation and never block on
// ingestion writers.
type Store struct {
	pool   *pgxpool.Pool
	metric Metric
	logger *slog.Logger
}

// New creates a vector Store.
func New(pool *pgxpool.Pool, metric Metric, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	switch metric {
	case MetricCosine, MetricInnerProduct:
	case "":
		metric = MetricCosine
	default:
		return nil, fmt.Errorf("unsupported metric %q", metric)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, metric: metric, logger: logger}, nil
}

// ExistingHashes returns the content hash currently stored for each ordinal
// of a document. Ingestion uses this to embed only changed chunks.
func (s *Store) ExistingHashes(ctx context.Context, documentID string) (map[int]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ordinal, content_hash FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying existing hashes for %q: %w", documentID, err)
	}
	defer rows.Close()

	hashes := make(map[int]string)
	for rows.Next() {
		var ordinal int
		var hash string
		if err := rows.Scan(&ordinal, &hash); err != nil {
			return nil, fmt.Errorf("scanning hash row: %w", err)
		}
		hashes[ordinal] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading hash rows: %w", err)
	}
	return hashes, nil
}

// UpsertDocument writes or replaces chunk rows keyed by (document, ordinal).
// All chunks commit in a single transaction; on any failure nothing is
// written and the error wraps ErrStoreConsistency so the caller knows the
// document must not be considered ingested.
func (s *Store) UpsertDocument(ctx context.Context, documentID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction for %q: %w", documentID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range chunks {
		if c.DocumentID != documentID {
			return fmt.Errorf("%w: chunk for %q in upsert of %q", ErrStoreConsistency, c.DocumentID, documentID)
		}
		vec := pgvector.NewVector(c.Embedding)
		_, err := tx.Exec(ctx, upsertChunkSQL,
			c.DocumentID, c.Ordinal, c.ContentHash, c.Revision, c.DocType, c.Content, &vec)
		if err != nil {
			return fmt.Errorf("%w: upserting chunk %d of %q: %w", ErrStoreConsistency, c.Ordinal, documentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing upsert for %q: %w", ErrStoreConsistency, documentID, err)
	}

	s.logger.Debug("upserted document chunks", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// DeleteStale removes rows for ordinals no longer produced by the latest
// chunking of a document. Returns the number of rows removed.
func (s *Store) DeleteStale(ctx context.Context, documentID string, currentOrdinals []int) (int64, error) {
	keep := make([]int32, len(currentOrdinals))
	for i, o := range currentOrdinals {
		keep[i] = int32(o)
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1 AND NOT (ordinal = ANY($2))`,
		documentID, keep)
	if err != nil {
		return 0, fmt.Errorf("deleting stale chunks of %q: %w", documentID, err)
	}

	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug("deleted stale chunks", "document_id", documentID, "deleted", n)
		return n, nil
	}
	return 0, nil
}

// DeleteDocument removes every chunk for a document (document deleted at
// the source). Returns the number of rows removed.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting document %q: %w", documentID, err)
	}
	return tag.RowsAffected(), nil
}

// PruneMissing removes chunks of a doc type whose document no longer exists
// in the source (full reingest saw the complete current set).
func (s *Store) PruneMissing(ctx context.Context, docType string, presentIDs []string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE doc_type = $1 AND NOT (document_id = ANY($2))`,
		docType, presentIDs)
	if err != nil {
		return 0, fmt.Errorf("pruning missing documents of type %q: %w", docType, err)
	}
	return tag.RowsAffected(), nil
}

// Search returns the top-k chunks most similar to the query vector.
//
// Ranking is deterministic: ties are broken by most recently updated row,
// then by ordinal ascending. Revision markers are opaque strings and do
// not order reliably, so updated_at is the recency signal.
func (s *Store) Search(ctx context.Context, queryVector []float32, opts ...SearchOption) ([]SearchResult, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vec := pgvector.NewVector(queryVector)
	sim := s.metric.similarityExpr()

	sql := fmt.Sprintf(`SELECT document_id, ordinal, content_hash, revision, doc_type, content, updated_at, %s AS similarity
		FROM chunks
		WHERE ($2 = '' OR doc_type = $2) AND %s >= $3
		ORDER BY similarity DESC, updated_at DESC, ordinal ASC
		LIMIT $4`, sim, sim)

	rows, err := s.pool.Query(queryCtx, sql, &vec, cfg.docType, cfg.minSimilarity, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Chunk.DocumentID, &r.Chunk.Ordinal, &r.Chunk.ContentHash,
			&r.Chunk.Revision, &r.Chunk.DocType, &r.Chunk.Content,
			&r.Chunk.UpdatedAt, &r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return results, nil
}

// Count returns the total number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// DocumentIDs returns the distinct document identities of a doc type,
// ordered for determinism.
func (s *Store) DocumentIDs(ctx context.Context, docType string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT document_id FROM chunks WHERE ($1 = '' OR doc_type = $1) ORDER BY document_id`,
		docType)
	if err != nil {
		return nil, fmt.Errorf("listing document ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
