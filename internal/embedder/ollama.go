package embedder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	ollama "github.com/jmorganca/ollama/api"

	"github.com/dkellner/chunksmith/pkg/types"
)

// EnvOllamaHost selects the Ollama server address (default http://127.0.0.1:11434)
const EnvOllamaHost = "OLLAMA_HOST"

// OllamaProvider implements Embedder using a local Ollama server
type OllamaProvider struct {
	client *ollama.Client
	model  string
	cache  *Cache
}

// NewOllamaProvider creates an embedder backed by a local Ollama instance
func NewOllamaProvider(model string, cache *Cache) (*OllamaProvider, error) {
	if model == "" {
		model = DefaultOllamaModel
	}

	host := os.Getenv(EnvOllamaHost)
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", EnvOllamaHost, err)
	}

	return &OllamaProvider{
		client: ollama.NewClient(base, http.DefaultClient),
		model:  model,
		cache:  cache,
	}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, req Request) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if p.cache != nil {
		if emb, ok := p.cache.Get(hash); ok {
			return emb, nil
		}
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	config := DefaultRetryConfig()
	emb, err := retryWithBackoff(ctx, config, func() (*Embedding, error) {
		return p.callAPI(ctx, req.Text, model, hash)
	})
	if err != nil {
		return nil, &types.EmbeddingServiceError{
			Provider: ProviderOllama,
			Op:       "embed",
			Err:      fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, MaxRetries, err),
		}
	}

	if p.cache != nil {
		p.cache.Set(hash, emb)
	}

	return emb, nil
}

// EmbedBatch embeds each text sequentially; the Ollama embeddings endpoint
// accepts a single prompt per call.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := p.Embed(ctx, Request{Text: text, Model: model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchResponse{
		Embeddings: embeddings,
		Provider:   ProviderOllama,
		Model:      model,
	}, nil
}

func (p *OllamaProvider) callAPI(ctx context.Context, text, model, hash string) (*Embedding, error) {
	resp, err := p.client.Embeddings(ctx, &ollama.EmbeddingRequest{
		Model:  model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}

	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrProviderFailed)
	}

	vector := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vector[i] = float32(v)
	}

	return &Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Provider:  ProviderOllama,
		Model:     model,
		Hash:      hash,
	}, nil
}

func (p *OllamaProvider) Dimension() int {
	return OllamaDimension
}

func (p *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (p *OllamaProvider) Model() string {
	return p.model
}

func (p *OllamaProvider) Close() error {
	return nil
}
