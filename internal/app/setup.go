package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/lorekeep/lorekeep/db"
	"github.com/lorekeep/lorekeep/internal/answer"
	"github.com/lorekeep/lorekeep/internal/chunk"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/cursor"
	"github.com/lorekeep/lorekeep/internal/docstore"
	"github.com/lorekeep/lorekeep/internal/embed"
	"github.com/lorekeep/lorekeep/internal/ingest"
	"github.com/lorekeep/lorekeep/internal/retrieve"
	"github.com/lorekeep/lorekeep/internal/vecstore"
)

// Proactive rate limiting for embedding calls, below typical provider
// quotas so a full reingest does not trip them.
const (
	embedCallsPerSecond = 5
	embedCallBurst      = 10
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Embedding, err = embed.New(embed.Config{
		Embedder:     embedder,
		Dimension:    config.EmbedderDimension,
		MaxBatchSize: cfg.Ingest.EmbedBatchSize,
		RateLimiter:  rate.NewLimiter(rate.Limit(embedCallsPerSecond), embedCallBurst),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	a.Vectors, err = vecstore.New(pool, vecstore.Metric(cfg.Retrieval.Metric), logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	a.Cursors, err = cursor.New(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating cursor tracker: %w", err)
	}

	a.DocStore, err = docstore.New(docstore.Config{
		BaseURL:   cfg.DocStore.BaseURL,
		Database:  cfg.DocStore.Database,
		Username:  cfg.DocStore.Username,
		Password:  cfg.DocStore.Password,
		BatchSize: cfg.DocStore.BatchSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating doc store client: %w", err)
	}

	splitter, err := chunk.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	a.Ingestor, err = ingest.New(ingest.Config{
		Source:     a.DocStore,
		Embedder:   a.Embedding,
		Store:      a.Vectors,
		Cursors:    a.Cursors,
		Splitter:   splitter,
		Partitions: cfg.DocStore.Partitions,
		DocTimeout: time.Duration(cfg.Ingest.DocTimeoutSec) * time.Second,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ingestion orchestrator: %w", err)
	}

	a.Retriever, err = retrieve.New(retrieve.Config{
		Embedder:      a.Embedding,
		Store:         a.Vectors,
		TopK:          cfg.Retrieval.TopK,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		TokenBudget:   cfg.Retrieval.TokenBudget,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	a.Synthesizer, err = answer.New(answer.Config{
		Genkit:      g,
		ModelName:   cfg.ModelName,
		BaseSiteURL: cfg.BaseSiteURL,
		CallTimeout: time.Duration(cfg.GenerateTimeoutSec) * time.Second,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating synthesizer: %w", err)
	}

	return a, nil
}

// provideGenkit initializes Genkit with the Google AI plugin.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
