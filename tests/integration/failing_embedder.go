package integration

import (
	"context"
	"errors"

	"github.com/dkellner/chunksmith/internal/embedder"
	"github.com/dkellner/chunksmith/pkg/types"
)

// failingEmbedder simulates an unreachable embedding provider
type failingEmbedder struct{}

var errProviderDown = &types.EmbeddingServiceError{
	Provider: "test", Op: "embed", Err: errors.New("connection refused"),
}

func (f *failingEmbedder) Embed(ctx context.Context, req embedder.Request) (*embedder.Embedding, error) {
	return nil, errProviderDown
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, req embedder.BatchRequest) (*embedder.BatchResponse, error) {
	return nil, errProviderDown
}

func (f *failingEmbedder) Dimension() int   { return 4 }
func (f *failingEmbedder) Provider() string { return "failing" }
func (f *failingEmbedder) Model() string    { return "failing" }
func (f *failingEmbedder) Close() error     { return nil }
