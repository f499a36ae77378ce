// Package app wires the application together: configuration, database,
// model provider, and the ingestion and retrieval pipelines.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorekeep/lorekeep/internal/answer"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/cursor"
	"github.com/lorekeep/lorekeep/internal/docstore"
	"github.com/lorekeep/lorekeep/internal/embed"
	"github.com/lorekeep/lorekeep/internal/ingest"
	"github.com/lorekeep/lorekeep/internal/retrieve"
	"github.com/lorekeep/lorekeep/internal/vecstore"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Vectors   *vecstore.Store
	Cursors   *cursor.Tracker
	DocStore  *docstore.Client
	Embedding *embed.Client

	Ingestor    *ingest.Orchestrator
	Retriever   *retrieve.Retriever
	Synthesizer *answer.Synthesizer
}

// Close releases held resources.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
	return nil
}
