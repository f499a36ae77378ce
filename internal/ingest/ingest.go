// Package ingest drives the content pipeline: it pulls documents from
// the document store, chunks and embeds what changed, and writes the
// results to the vector store while advancing per-partition cursors.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lorekeep/lorekeep/internal/chunk"
	"github.com/lorekeep/lorekeep/internal/docstore"
	"github.com/lorekeep/lorekeep/internal/vecstore"
)

const defaultDocTimeout = 2 * time.Minute

// Source is the slice of the document store the orchestrator needs.
type Source interface {
	Changes(ctx context.Context, since string) ([]docstore.Change, string, error)
	AllDocuments(ctx context.Context) ([]docstore.Document, error)
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore is the vector store surface used during ingestion.
type ChunkStore interface {
	ExistingHashes(ctx context.Context, documentID string) (map[int]string, error)
	UpsertDocument(ctx context.Context, documentID string, chunks []vecstore.Chunk) error
	DeleteStale(ctx context.Context, documentID string, currentOrdinals []int) (int64, error)
	DeleteDocument(ctx context.Context, documentID string) (int64, error)
	PruneMissing(ctx context.Context, docType string, presentIDs []string) (int64, error)
}

// CursorStore persists per-partition change feed positions.
type CursorStore interface {
	Get(ctx context.Context, partition string) (string, bool, error)
	Advance(ctx context.Context, partition, marker string) error
}

// Config assembles an Orchestrator.
type Config struct {
	Source   Source
	Embedder Embedder
	Store    ChunkStore
	Cursors  CursorStore
	Splitter *chunk.Splitter

	// Partitions maps partition name (stored as the chunk doc type) to
	// the document path prefix that partition covers.
	Partitions map[string]string

	// DocTimeout bounds the processing of a single document.
	// Zero means defaultDocTimeout.
	DocTimeout time.Duration

	Logger *slog.Logger // nil = slog.Default()
}

// Orchestrator runs incremental and full ingestion passes.
type Orchestrator struct {
	source     Source
	embedder   Embedder
	store      ChunkStore
	cursors    CursorStore
	splitter   *chunk.Splitter
	partitions map[string]string
	docTimeout time.Duration
	logger     *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}
	if cfg.Cursors == nil {
		return nil, fmt.Errorf("cursor store is required")
	}
	if cfg.Splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if len(cfg.Partitions) == 0 {
		return nil, fmt.Errorf("at least one partition is required")
	}

	docTimeout := cfg.DocTimeout
	if docTimeout <= 0 {
		docTimeout = defaultDocTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		source:     cfg.Source,
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		cursors:    cfg.Cursors,
		splitter:   cfg.Splitter,
		partitions: cfg.Partitions,
		docTimeout: docTimeout,
		logger:     logger,
	}, nil
}

// Failure records one document that could not be processed.
type Failure struct {
	Partition  string
	DocumentID string
	Err        error
}

// Summary reports what a run did. A run with failures is still a
// partial success: every other document landed, and cursors stopped
// short of the failed ones so the next run retries them.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	Documents int // content documents examined
	Embedded  int // chunks sent to the embedding provider
	Skipped   int // chunks reused because their content hash matched
	Deleted   int64
	Failures  []Failure
}

// OK reports whether the run completed without document failures.
func (s *Summary) OK() bool { return len(s.Failures) == 0 }

// partitionResult is one partition's share of a run, merged into the
// Summary after all partitions finish.
type partitionResult struct {
	documents int
	embedded  int
	skipped   int
	deleted   int64
	failures  []Failure
}

// RunIncremental processes each partition's change feed from its stored
// cursor. Partitions run concurrently; documents within a partition run
// in feed order. A document failure pins the partition's cursor before
// the failed change, but later documents are still attempted.
func (o *Orchestrator) RunIncremental(ctx context.Context) (*Summary, error) {
	summary := o.newSummary()
	names := slices.Sorted(maps.Keys(o.partitions))
	results := make([]partitionResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			results[i] = o.runPartition(gctx, name, o.partitions[name])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.merge(summary, results)
	o.logger.Info("incremental ingestion finished",
		"run_id", summary.RunID,
		"documents", summary.Documents,
		"embedded", summary.Embedded,
		"skipped", summary.Skipped,
		"deleted", summary.Deleted,
		"failures", len(summary.Failures))
	return summary, nil
}

// runPartition drains one partition's view of the change feed.
func (o *Orchestrator) runPartition(ctx context.Context, name, prefix string) partitionResult {
	var res partitionResult

	since, _, err := o.cursors.Get(ctx, name)
	if err != nil {
		res.failures = append(res.failures, Failure{Partition: name, Err: fmt.Errorf("load cursor: %w", err)})
		return res
	}

	changes, lastSeq, err := o.source.Changes(ctx, since)
	if err != nil {
		res.failures = append(res.failures, Failure{Partition: name, Err: fmt.Errorf("fetch changes: %w", err)})
		return res
	}

	// marker trails the last change that is safe to resume after: it
	// stops moving at the first failure so the next run replays it.
	marker := since
	advancing := true

	for _, change := range changes {
		doc := change.Doc

		switch {
		case doc.Deleted:
			deleted, err := o.store.DeleteDocument(ctx, doc.ID)
			if err != nil {
				res.failures = append(res.failures, Failure{Partition: name, DocumentID: doc.ID, Err: err})
				advancing = false
				continue
			}
			res.deleted += deleted

		case doc.InPartition(prefix):
			res.documents++
			embedded, skipped, err := o.processDocument(ctx, name, doc)
			if err != nil {
				o.logger.Warn("document ingestion failed",
					"partition", name, "document_id", doc.ID, "error", err)
				res.failures = append(res.failures, Failure{Partition: name, DocumentID: doc.ID, Err: err})
				advancing = false
				continue
			}
			res.embedded += embedded
			res.skipped += skipped
		}

		if advancing {
			marker = change.Seq
		}
	}

	// A drained feed with nothing relevant still moves the watermark.
	if advancing && lastSeq != "" {
		marker = lastSeq
	}
	if marker != since && marker != "" {
		if err := o.cursors.Advance(ctx, name, marker); err != nil {
			res.failures = append(res.failures, Failure{Partition: name, Err: fmt.Errorf("advance cursor: %w", err)})
		}
	}

	return res
}

// RunFull rebuilds the index from a complete scan of the document
// store, ignoring cursors. Unchanged chunks are still skipped by
// content hash, and chunks for documents that no longer exist in the
// store are pruned. Cursors are left untouched; the next incremental
// run re-covers the window between the old cursor and the scan, which
// the hash check makes cheap.
func (o *Orchestrator) RunFull(ctx context.Context) (*Summary, error) {
	summary := o.newSummary()

	docs, err := o.source.AllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan document store: %w", err)
	}

	names := slices.Sorted(maps.Keys(o.partitions))
	results := make([]partitionResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			results[i] = o.runFullPartition(gctx, name, o.partitions[name], docs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.merge(summary, results)
	o.logger.Info("full ingestion finished",
		"run_id", summary.RunID,
		"documents", summary.Documents,
		"embedded", summary.Embedded,
		"skipped", summary.Skipped,
		"deleted", summary.Deleted,
		"failures", len(summary.Failures))
	return summary, nil
}

func (o *Orchestrator) runFullPartition(ctx context.Context, name, prefix string, docs []docstore.Document) partitionResult {
	var res partitionResult
	var present []string
	failed := false

	for _, doc := range docs {
		if !doc.InPartition(prefix) {
			continue
		}
		res.documents++
		present = append(present, doc.ID)

		embedded, skipped, err := o.processDocument(ctx, name, doc)
		if err != nil {
			o.logger.Warn("document ingestion failed",
				"partition", name, "document_id", doc.ID, "error", err)
			res.failures = append(res.failures, Failure{Partition: name, DocumentID: doc.ID, Err: err})
			failed = true
			continue
		}
		res.embedded += embedded
		res.skipped += skipped
	}

	// Pruning after a partial pass could drop chunks for documents the
	// failed step never confirmed, so only prune clean passes.
	if !failed {
		deleted, err := o.store.PruneMissing(ctx, name, present)
		if err != nil {
			res.failures = append(res.failures, Failure{Partition: name, Err: fmt.Errorf("prune missing: %w", err)})
		} else {
			res.deleted += deleted
		}
	}

	return res
}

// processDocument chunks one document, embeds only the chunks whose
// content hash changed, and reconciles the stored rows. Returns the
// number of chunks embedded and the number skipped.
func (o *Orchestrator) processDocument(ctx context.Context, partition string, doc docstore.Document) (int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.docTimeout)
	defer cancel()

	pieces := o.splitter.Split(doc.Content)
	if len(pieces) == 0 {
		// Content emptied out; treat like a deletion.
		if _, err := o.store.DeleteDocument(ctx, doc.ID); err != nil {
			return 0, 0, fmt.Errorf("delete emptied document: %w", err)
		}
		return 0, 0, nil
	}

	existing, err := o.store.ExistingHashes(ctx, doc.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("load existing hashes: %w", err)
	}

	var (
		changed   []vecstore.Chunk
		texts     []string
		ordinals  = make([]int, 0, len(pieces))
		unchanged int
	)
	for _, piece := range pieces {
		ordinals = append(ordinals, piece.Ordinal)
		if existing[piece.Ordinal] == piece.Hash {
			unchanged++
			continue
		}
		changed = append(changed, vecstore.Chunk{
			DocumentID:  doc.ID,
			Ordinal:     piece.Ordinal,
			ContentHash: piece.Hash,
			Revision:    doc.Revision,
			DocType:     partition,
			Content:     piece.Text,
		})
		texts = append(texts, embedText(doc, piece.Text))
	}

	if len(changed) > 0 {
		vectors, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, unchanged, fmt.Errorf("embed chunks: %w", err)
		}
		for i := range changed {
			changed[i].Embedding = vectors[i]
		}
		if err := o.store.UpsertDocument(ctx, doc.ID, changed); err != nil {
			return 0, unchanged, fmt.Errorf("upsert chunks: %w", err)
		}
	}

	if _, err := o.store.DeleteStale(ctx, doc.ID, ordinals); err != nil {
		return len(changed), unchanged, fmt.Errorf("delete stale chunks: %w", err)
	}

	o.logger.Debug("document ingested",
		"partition", partition,
		"document_id", doc.ID,
		"chunks", len(pieces),
		"embedded", len(changed),
		"skipped", unchanged)
	return len(changed), unchanged, nil
}

// embedText is what the embedding provider sees for one chunk. Stored
// content stays raw; the embedded form carries the document title and
// tags so a short chunk still ranks on its document's topic.
func embedText(doc docstore.Document, content string) string {
	var b strings.Builder
	if doc.Title != "" {
		b.WriteString("Title: ")
		b.WriteString(doc.Title)
		b.WriteString("\n")
	}
	if len(doc.Tags) > 0 {
		b.WriteString("Context: ")
		b.WriteString(strings.Join(doc.Tags, " "))
		b.WriteString("\n")
	}
	b.WriteString("Content: ")
	b.WriteString(content)
	return b.String()
}

func (o *Orchestrator) newSummary() *Summary {
	return &Summary{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
}

func (o *Orchestrator) merge(summary *Summary, results []partitionResult) {
	for _, res := range results {
		summary.Documents += res.documents
		summary.Embedded += res.embedded
		summary.Skipped += res.skipped
		summary.Deleted += res.deleted
		summary.Failures = append(summary.Failures, res.failures...)
	}
	summary.Finished = time.Now()
}
