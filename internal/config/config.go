// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.lorekeep/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: model and embedder selection for answer synthesis and embeddings
//   - Storage: PostgreSQL connection (see storage.go)
//   - DocStore: CouchDB-compatible document store the knowledge base syncs from
//   - Ingest: chunking and embedding batch parameters
//   - Retrieval: similarity threshold, top-k and token budget defaults
//
// Sensitive values (passwords, API keys) are never logged.
// Validation happens in Load via Validate (fail-fast, see validation.go).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder dimension does not
	// match the pgvector schema.
	ErrInvalidEmbedderDimension = errors.New("incompatible embedder dimension")

	// ErrInvalidChunking indicates chunk size/overlap are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidRetrieval indicates retrieval parameters are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval parameters")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidDocStoreURL indicates the document store base URL is invalid.
	ErrInvalidDocStoreURL = errors.New("invalid document store URL")

	// ErrInvalidMetric indicates an unsupported similarity metric.
	ErrInvalidMetric = errors.New("invalid similarity metric")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the chunks table schema uses vector(768).
	DefaultEmbedderModel = "gemini-embedding-001"

	// EmbedderDimension is the vector dimensionality used by the schema.
	EmbedderDimension = 768

	// DefaultModelName is the default model for answer synthesis.
	DefaultModelName = "googleai/gemini-2.5-flash"
)

// DocStoreConfig holds document store (CouchDB-compatible) settings.
type DocStoreConfig struct {
	BaseURL  string `mapstructure:"base_url" json:"base_url"`
	Database string `mapstructure:"database" json:"database"`
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"password"` // SENSITIVE: never logged
	// Partitions maps partition name to document path prefix
	// (e.g. "blog" -> "blog/"). Each partition has its own sync cursor.
	Partitions map[string]string `mapstructure:"partitions" json:"partitions"`
	// BatchSize limits how many changes are pulled per request.
	BatchSize int `mapstructure:"batch_size" json:"batch_size"`
}

// IngestConfig holds chunking and embedding parameters.
type IngestConfig struct {
	ChunkSize      int `mapstructure:"chunk_size" json:"chunk_size"`           // max chunk size in characters
	ChunkOverlap   int `mapstructure:"chunk_overlap" json:"chunk_overlap"`     // overlap between window chunks
	EmbedBatchSize int `mapstructure:"embed_batch_size" json:"embed_batch_size"` // provider max batch size
	DocTimeoutSec  int `mapstructure:"doc_timeout_sec" json:"doc_timeout_sec"` // per-document ingestion bound
}

// RetrievalConfig holds semantic search defaults.
type RetrievalConfig struct {
	Metric        string  `mapstructure:"metric" json:"metric"` // "cosine" or "inner_product"
	TopK          int     `mapstructure:"top_k" json:"top_k"`
	MinSimilarity float64 `mapstructure:"min_similarity" json:"min_similarity"`
	TokenBudget   int     `mapstructure:"token_budget" json:"token_budget"`
}

// Config stores application configuration.
type Config struct {
	// AI model configuration
	ModelName          string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	GenerateTimeoutSec int    `mapstructure:"generate_timeout_sec" json:"generate_timeout_sec"` // per-call bound on answer generation

	// Public site URL used to build source links in answers.
	BaseSiteURL string `mapstructure:"base_site_url" json:"base_site_url"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	DocStore  DocStoreConfig  `mapstructure:"doc_store" json:"doc_store"`
	Ingest    IngestConfig    `mapstructure:"ingest" json:"ingest"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" json:"retrieval"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".lorekeep")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has highest priority for PostgreSQL settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("base_site_url", "https://example.dev")
	viper.SetDefault("generate_timeout_sec", 120)

	// PostgreSQL defaults for local development
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "lorekeep")
	viper.SetDefault("postgres_password", "lorekeep_dev_password")
	viper.SetDefault("postgres_db_name", "lorekeep")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Document store defaults
	viper.SetDefault("doc_store.base_url", "http://localhost:5984")
	viper.SetDefault("doc_store.database", "notes")
	viper.SetDefault("doc_store.batch_size", 100)
	viper.SetDefault("doc_store.partitions", map[string]string{
		"blog":      "blog/",
		"kb":        "kb/",
		"portfolio": "portfolio/",
	})

	// Ingestion defaults
	viper.SetDefault("ingest.chunk_size", 2000)
	viper.SetDefault("ingest.chunk_overlap", 200)
	viper.SetDefault("ingest.embed_batch_size", 100)
	viper.SetDefault("ingest.doc_timeout_sec", 120)

	// Retrieval defaults
	viper.SetDefault("retrieval.metric", "cosine")
	viper.SetDefault("retrieval.top_k", 5)
	viper.SetDefault("retrieval.min_similarity", 0.35)
	viper.SetDefault("retrieval.token_budget", 3000)
}

// bindEnvVariables binds sensitive environment variables explicitly.
func bindEnvVariables() {
	// Secrets only; everything else comes from the config file or defaults.
	_ = viper.BindEnv("postgres_password", "LOREKEEP_POSTGRES_PASSWORD")
	_ = viper.BindEnv("doc_store.password", "LOREKEEP_DOCSTORE_PASSWORD")
	_ = viper.BindEnv("doc_store.username", "LOREKEEP_DOCSTORE_USERNAME")
	_ = viper.BindEnv("doc_store.base_url", "LOREKEEP_DOCSTORE_URL")
}
