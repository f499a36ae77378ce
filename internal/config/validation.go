package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validSSLModes are the sslmode values accepted by PostgreSQL.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration for obvious misconfiguration.
// It is called from Load; errors wrap the package sentinel errors so
// callers can test with errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.GenerateTimeoutSec < 1 {
		return fmt.Errorf("%w: generate_timeout_sec must be positive", ErrInvalidModelName)
	}

	if err := c.validatePostgres(); err != nil {
		return err
	}
	if err := c.validateDocStore(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	return c.validateRetrieval()
}

func (c *Config) validatePostgres() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}

func (c *Config) validateDocStore() error {
	u, err := url.Parse(c.DocStore.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocStoreURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidDocStoreURL, u.Scheme)
	}
	if strings.TrimSpace(c.DocStore.Database) == "" {
		return fmt.Errorf("%w: database must not be empty", ErrInvalidDocStoreURL)
	}
	if c.DocStore.BatchSize < 1 || c.DocStore.BatchSize > 10000 {
		return fmt.Errorf("%w: batch_size %d out of range 1-10000", ErrInvalidDocStoreURL, c.DocStore.BatchSize)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.ChunkSize < 100 || c.Ingest.ChunkSize > 100000 {
		return fmt.Errorf("%w: chunk_size %d out of range 100-100000", ErrInvalidChunking, c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.Ingest.ChunkOverlap)
	}
	if c.Ingest.EmbedBatchSize < 1 || c.Ingest.EmbedBatchSize > 1000 {
		return fmt.Errorf("%w: embed_batch_size %d out of range 1-1000", ErrInvalidChunking, c.Ingest.EmbedBatchSize)
	}
	if c.Ingest.DocTimeoutSec < 1 {
		return fmt.Errorf("%w: doc_timeout_sec must be positive", ErrInvalidChunking)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	switch c.Retrieval.Metric {
	case "cosine", "inner_product":
	default:
		return fmt.Errorf("%w: %q (expected cosine or inner_product)", ErrInvalidMetric, c.Retrieval.Metric)
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 100 {
		return fmt.Errorf("%w: top_k %d out of range 1-100", ErrInvalidRetrieval, c.Retrieval.TopK)
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity %v out of range 0-1", ErrInvalidRetrieval, c.Retrieval.MinSimilarity)
	}
	if c.Retrieval.TokenBudget < 100 {
		return fmt.Errorf("%w: token_budget %d too small", ErrInvalidRetrieval, c.Retrieval.TokenBudget)
	}
	return nil
}
