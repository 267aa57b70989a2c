package index

import (
	"context"
	"errors"

	"github.com/dkellner/chunksmith/pkg/types"
)

// Common errors
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyBatch        = errors.New("no records to upsert")
)

// Record pairs a chunk with its embedding vector for storage
type Record struct {
	Chunk  *types.Chunk
	Vector []float32
}

// Candidate is a chunk returned from similarity search
type Candidate struct {
	Chunk      *types.Chunk
	Similarity float64
}

// VectorStore persists chunks with their embedding vectors, scoped by project.
// Query returns candidates ordered by similarity descending; similarity is
// cosine similarity in [-1, 1], normalized from whatever distance metric the
// backend natively reports.
type VectorStore interface {
	// Upsert inserts or replaces records; a chunk is keyed by (project, chunk ID)
	Upsert(ctx context.Context, projectID string, records []Record) error

	// Query returns up to limit candidates ranked by cosine similarity
	Query(ctx context.Context, projectID string, vector []float32, limit int) ([]Candidate, error)

	// GetChunk returns a single chunk, or types.ErrNotFound
	GetChunk(ctx context.Context, projectID, chunkID string) (*types.Chunk, error)

	// GetVector returns the stored embedding for a chunk, or types.ErrNotFound
	GetVector(ctx context.Context, projectID, chunkID string) ([]float32, error)

	// GetByDocument returns all chunks of a document ordered by position
	GetByDocument(ctx context.Context, projectID, documentID string) ([]*types.Chunk, error)

	// GetByProject returns all chunks in a project ordered by document then position
	GetByProject(ctx context.Context, projectID string) ([]*types.Chunk, error)

	// DeleteByDocument removes all chunks of a document
	DeleteByDocument(ctx context.Context, projectID, documentID string) error

	// DeleteProject removes all chunks in a project
	DeleteProject(ctx context.Context, projectID string) error

	// Close releases backend resources
	Close() error
}
