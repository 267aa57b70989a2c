package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// MockProvider produces deterministic embeddings derived from a content hash.
// It needs no network and is used in tests and for offline dry runs.
type MockProvider struct {
	model string
	cache *Cache
}

// NewMockProvider creates a deterministic offline embedder
func NewMockProvider(cache *Cache) (*MockProvider, error) {
	return &MockProvider{
		model: "mock-embeddings",
		cache: cache,
	}, nil
}

func (m *MockProvider) Embed(ctx context.Context, req Request) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if m.cache != nil {
		if emb, ok := m.cache.Get(hash); ok {
			return emb, nil
		}
	}

	// Tile the SHA-256 digest across the vector so distinct texts get
	// distinct, repeatable directions.
	digest := sha256.Sum256([]byte(req.Text))
	vector := make([]float32, MockDimension)
	for i := range vector {
		vector[i] = float32(digest[i%len(digest)])/255.0 - 0.5
	}
	vector = NormalizeVector(vector)

	emb := &Embedding{
		Vector:    vector,
		Dimension: MockDimension,
		Provider:  ProviderMock,
		Model:     m.model,
		Hash:      hash,
	}

	if m.cache != nil {
		m.cache.Set(hash, emb)
	}

	return emb, nil
}

func (m *MockProvider) EmbedBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := m.Embed(ctx, Request{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchResponse{
		Embeddings: embeddings,
		Provider:   ProviderMock,
		Model:      m.model,
	}, nil
}

func (m *MockProvider) Dimension() int {
	return MockDimension
}

func (m *MockProvider) Provider() string {
	return ProviderMock
}

func (m *MockProvider) Model() string {
	return m.model
}

func (m *MockProvider) Close() error {
	return nil
}
