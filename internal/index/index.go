package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dkellner/chunksmith/internal/embedder"
	"github.com/dkellner/chunksmith/pkg/types"
)

// ChunkIndex ties an embedding provider to a vector store. Indexing a
// document is all-or-nothing: every chunk is embedded before anything is
// written, and a failed write removes whatever part of the document
// already landed.
type ChunkIndex struct {
	embedder embedder.Embedder
	store    VectorStore
	logger   *slog.Logger
}

// NewChunkIndex creates an index over the given embedder and store
func NewChunkIndex(emb embedder.Embedder, store VectorStore, logger *slog.Logger) *ChunkIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkIndex{
		embedder: emb,
		store:    store,
		logger:   logger,
	}
}

// Store exposes the underlying vector store for read-side consumers
func (ix *ChunkIndex) Store() VectorStore {
	return ix.store
}

// Embedder exposes the underlying embedding provider
func (ix *ChunkIndex) Embedder() embedder.Embedder {
	return ix.embedder
}

// IndexDocument embeds and stores all chunks of a single document.
// Chunks must share the same document ID. Re-indexing a document first
// replaces its previous chunks.
func (ix *ChunkIndex) IndexDocument(ctx context.Context, projectID string, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	documentID := chunks[0].DocumentID
	for _, chunk := range chunks {
		if chunk.DocumentID != documentID {
			return &types.VectorStoreError{
				Op: "index_document", ProjectID: projectID, DocumentID: documentID,
				Err: fmt.Errorf("chunk %s belongs to document %s", chunk.ID, chunk.DocumentID),
			}
		}
	}

	// Embed everything before touching the store so a provider failure
	// leaves previously indexed data intact.
	records := make([]Record, len(chunks))
	for i := 0; i < len(chunks); i += embedder.DefaultBatchSize {
		end := i + embedder.DefaultBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-i)
		for _, chunk := range chunks[i:end] {
			texts = append(texts, chunk.Content)
		}

		resp, err := ix.embedder.EmbedBatch(ctx, embedder.BatchRequest{Texts: texts})
		if err != nil {
			return fmt.Errorf("embedding document %s: %w", documentID, err)
		}
		for j, emb := range resp.Embeddings {
			records[i+j] = Record{Chunk: chunks[i+j], Vector: emb.Vector}
		}
	}

	// Replace any previous version of the document
	if err := ix.store.DeleteByDocument(ctx, projectID, documentID); err != nil {
		return err
	}

	if err := ix.store.Upsert(ctx, projectID, records); err != nil {
		// Roll back a partial write so the document is either fully
		// indexed or absent.
		if cleanupErr := ix.store.DeleteByDocument(ctx, projectID, documentID); cleanupErr != nil {
			ix.logger.Error("cleanup after failed upsert",
				"project_id", projectID,
				"document_id", documentID,
				"error", cleanupErr)
		}
		return err
	}

	ix.logger.Debug("indexed document",
		"project_id", projectID,
		"document_id", documentID,
		"chunks", len(chunks))
	return nil
}

// DeleteDocument removes all chunks of a document from the store
func (ix *ChunkIndex) DeleteDocument(ctx context.Context, projectID, documentID string) error {
	return ix.store.DeleteByDocument(ctx, projectID, documentID)
}

// EmbedQuery embeds free text for retrieval
func (ix *ChunkIndex) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	emb, err := ix.embedder.Embed(ctx, embedder.Request{Text: text})
	if err != nil {
		return nil, err
	}
	return emb.Vector, nil
}

// Query embeds the text and runs similarity search
func (ix *ChunkIndex) Query(ctx context.Context, projectID, text string, limit int) ([]Candidate, error) {
	vector, err := ix.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return ix.store.Query(ctx, projectID, vector, limit)
}

// Close releases the embedder and store
func (ix *ChunkIndex) Close() error {
	embErr := ix.embedder.Close()
	storeErr := ix.store.Close()
	if embErr != nil {
		return embErr
	}
	return storeErr
}
