package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/dkellner/chunksmith/pkg/types"
)

// Store backend names accepted in the "store.backend" setting.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendWeaviate = "weaviate"
)

// Config is the full application configuration, loadable from a YAML
// file with environment-variable overrides.
type Config struct {
	LogLevel  string               `mapstructure:"log_level"`
	Workers   int                  `mapstructure:"workers"`
	Embedding EmbeddingConfig      `mapstructure:"embedding"`
	Store     StoreConfig          `mapstructure:"store"`
	Chunking  types.ChunkingConfig `mapstructure:"chunking"`
	Retrieval RetrievalConfig      `mapstructure:"retrieval"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"` // openai, ollama, mock
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"OPENAI_API_KEY"`
	CacheSize int    `mapstructure:"cache_size"`
	CachePath string `mapstructure:"cache_path"` // optional on-disk cache
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Backend        string `mapstructure:"backend"`
	SQLitePath     string `mapstructure:"sqlite_path"`
	PostgresURL    string `mapstructure:"postgres_url"`
	WeaviateHost   string `mapstructure:"weaviate_host"`
	WeaviateAPIKey string `mapstructure:"WEAVIATE_APIKEY"`
	Dimension      int    `mapstructure:"dimension"` // pgvector column width
}

// RetrievalConfig holds default retrieval parameters applied when a
// request leaves them unset.
type RetrievalConfig struct {
	MaxResults          int           `mapstructure:"max_results"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
}

// LoadConfig reads configPath (YAML) and environment variables into a
// Config. A missing file is not an error when configPath is empty;
// defaults and environment variables still apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.BindEnv("embedding.OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("embedding.provider", "CHUNKSMITH_EMBEDDING_PROVIDER")
	v.BindEnv("store.WEAVIATE_APIKEY", "WEAVIATE_APIKEY")
	v.BindEnv("store.backend", "CHUNKSMITH_STORE_BACKEND")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("workers", 0) // 0 means runtime.NumCPU()

	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.cache_size", 10000)

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.sqlite_path", defaultSQLitePath())
	v.SetDefault("store.dimension", 1536)

	chunking := types.DefaultChunkingConfig()
	v.SetDefault("chunking.min_chunk_size", chunking.MinChunkSize)
	v.SetDefault("chunking.max_chunk_size", chunking.MaxChunkSize)
	v.SetDefault("chunking.target_chunk_size", chunking.TargetChunkSize)
	v.SetDefault("chunking.overlap_percentage", chunking.OverlapPercentage)
	v.SetDefault("chunking.prefer_semantic_boundaries", chunking.PreferSemanticBoundaries)
	v.SetDefault("chunking.respect_section_boundaries", chunking.RespectSectionBoundaries)
	v.SetDefault("chunking.include_heading_context", chunking.IncludeHeadingContext)

	v.SetDefault("retrieval.max_results", 10)
	v.SetDefault("retrieval.similarity_threshold", 0.0)
	v.SetDefault("retrieval.cache_ttl", time.Hour)
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chunksmith.db"
	}
	return filepath.Join(home, ".chunksmith", "chunksmith.db")
}

// Validate reports obviously unusable settings before any backend is
// dialed.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendWeaviate:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Store.Backend == BackendPostgres && c.Store.PostgresURL == "" {
		return fmt.Errorf("store backend %q requires postgres_url", BackendPostgres)
	}
	if c.Store.Backend == BackendWeaviate && c.Store.WeaviateHost == "" {
		return fmt.Errorf("store backend %q requires weaviate_host", BackendWeaviate)
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLitePath == "" {
		return fmt.Errorf("store backend %q requires sqlite_path", BackendSQLite)
	}

	if c.Chunking.MinChunkSize > 0 && c.Chunking.MaxChunkSize > 0 &&
		c.Chunking.MinChunkSize > c.Chunking.MaxChunkSize {
		return fmt.Errorf("chunking min_chunk_size %d exceeds max_chunk_size %d",
			c.Chunking.MinChunkSize, c.Chunking.MaxChunkSize)
	}

	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval similarity_threshold %f out of range [0,1]",
			c.Retrieval.SimilarityThreshold)
	}
	return nil
}
