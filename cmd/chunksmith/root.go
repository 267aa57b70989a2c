package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkellner/chunksmith/internal/config"
	"github.com/dkellner/chunksmith/internal/embedder"
	"github.com/dkellner/chunksmith/internal/index"
)

var (
	cfgFile   string
	projectID string
)

var rootCmd = &cobra.Command{
	Use:   "chunksmith",
	Short: "Structure-aware document chunking and retrieval",
	Long: `Chunksmith parses markdown and HTML documents into a heading tree,
splits them into size-bounded chunks that respect section boundaries,
and indexes the chunks in a vector store for semantic, hierarchical,
hybrid, contextual and keyword retrieval.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", "default", "project the documents belong to")
}

// loadConfig reads the config file (if any) and sets up logging.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

// Log to stderr; stdout carries command output.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openIndex wires the configured embedding provider and vector store
// into a ChunkIndex. The caller must Close it.
func openIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*index.ChunkIndex, error) {
	var emb embedder.Embedder
	var err error
	if cfg.Embedding.Provider == "" {
		emb, err = embedder.NewFromEnv()
	} else {
		emb, err = embedder.New(embedder.Config{
			Provider:  cfg.Embedding.Provider,
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			CacheSize: cfg.Embedding.CacheSize,
			CachePath: cfg.Embedding.CachePath,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	logger.Debug("index ready",
		"provider", emb.Provider(),
		"model", emb.Model(),
		"backend", cfg.Store.Backend)
	return index.NewChunkIndex(emb, store, logger), nil
}

func openStore(ctx context.Context, cfg *config.Config) (index.VectorStore, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return index.NewMemoryStore(), nil
	case config.BackendSQLite:
		return index.NewSQLiteStore(cfg.Store.SQLitePath)
	case config.BackendPostgres:
		return index.NewPostgresStore(ctx, cfg.Store.PostgresURL, cfg.Store.Dimension)
	case config.BackendWeaviate:
		return index.NewWeaviateStore(index.WeaviateConfig{
			Host:   cfg.Store.WeaviateHost,
			APIKey: cfg.Store.WeaviateAPIKey,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
