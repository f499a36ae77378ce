// Package cursor tracks the last-processed revision marker per
// document-store partition.
//
// The ingestion orchestrator advances a cursor only after the corresponding
// document batch is durably committed to the vector store. On restart,
// ingestion resumes from the last advanced cursor; re-processing the last
// in-flight batch is harmless because content-hash dedup makes it a no-op.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tracker persists sync cursors in PostgreSQL.
//
// Tracker is safe for concurrent use; each partition is an independent row.
type Tracker struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a cursor Tracker.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Tracker, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{pool: pool, logger: logger}, nil
}

// Get returns the last-processed revision marker for a partition.
// The second return value is false when the partition has never advanced.
func (t *Tracker) Get(ctx context.Context, partition string) (string, bool, error) {
	var marker string
	err := t.pool.QueryRow(ctx,
		`SELECT last_revision FROM sync_cursors WHERE partition = $1`, partition).Scan(&marker)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cursor for partition %q: %w", partition, err)
	}
	return marker, true, nil
}

// Advance records a new revision marker for a partition.
// Callers must only invoke this after the batch up to marker is fully
// committed to the vector store.
func (t *Tracker) Advance(ctx context.Context, partition, marker string) error {
	_, err := t.pool.Exec(ctx,
		`INSERT INTO sync_cursors (partition, last_revision, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (partition) DO UPDATE SET
			last_revision = EXCLUDED.last_revision,
			updated_at    = now()`,
		partition, marker)
	if err != nil {
		return fmt.Errorf("advancing cursor for partition %q: %w", partition, err)
	}

	t.logger.Debug("advanced sync cursor", "partition", partition, "revision", marker)
	return nil
}
