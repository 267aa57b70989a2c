package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	CacheSize int
	CachePath string // Optional: persistent on-disk cache location
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. CHUNKSMITH_EMBEDDING_PROVIDER (openai, ollama, mock)
// 2. OPENAI_API_KEY present -> openai
// 3. Default to ollama
func NewFromEnv() (Embedder, error) {
	provider := os.Getenv("CHUNKSMITH_EMBEDDING_PROVIDER")
	openaiKey := os.Getenv(EnvOpenAIAPIKey)

	cache := NewCache(10000)

	if provider != "" {
		return New(Config{Provider: provider, APIKey: openaiKey, CacheSize: 10000})
	}

	if openaiKey != "" {
		return NewOpenAIProvider(openaiKey, cache)
	}

	return NewOllamaProvider("", cache)
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	var emb Embedder
	var err error
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		emb, err = NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderOllama:
		emb, err = NewOllamaProvider(cfg.Model, cache)
	case ProviderMock:
		emb, err = NewMockProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CachePath != "" {
		disk, err := OpenBoltCache(cfg.CachePath)
		if err != nil {
			emb.Close()
			return nil, err
		}
		return NewCachedEmbedder(emb, disk), nil
	}

	return emb, nil
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	if provider := os.Getenv("CHUNKSMITH_EMBEDDING_PROVIDER"); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderOllama
}
