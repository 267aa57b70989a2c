package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/chunksmith/internal/embedder"
	"github.com/dkellner/chunksmith/internal/index"
	"github.com/dkellner/chunksmith/internal/processor"
	"github.com/dkellner/chunksmith/internal/retriever"
	"github.com/dkellner/chunksmith/pkg/types"
)

func fixturesDir(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Join(filepath.Dir(wd), "testdata", "fixtures")
}

// ingestFixtures runs the full pipeline over the fixture documents and
// returns the wired components for follow-up queries.
func ingestFixtures(t *testing.T, store index.VectorStore) (*index.ChunkIndex, *processor.Statistics) {
	t.Helper()

	emb, err := embedder.NewMockProvider(nil)
	require.NoError(t, err)

	ix := index.NewChunkIndex(emb, store, nil)
	p := processor.New(ix, nil)

	stats, err := p.ProcessDirectory(context.Background(), "proj", fixturesDir(t), nil)
	require.NoError(t, err)
	return ix, stats
}

func TestPipeline_IngestFixtures(t *testing.T) {
	store := index.NewMemoryStore()
	_, stats := ingestFixtures(t, store)

	assert.Equal(t, 3, stats.DocumentsProcessed)
	assert.Zero(t, stats.DocumentsFailed)
	assert.Positive(t, stats.ChunksCreated)
	assert.Positive(t, stats.TokensProcessed)

	chunks, err := store.GetByProject(context.Background(), "proj")
	require.NoError(t, err)
	assert.Len(t, chunks, stats.ChunksCreated)

	documents := map[string]bool{}
	for _, chunk := range chunks {
		documents[chunk.DocumentID] = true
		assert.NotEmpty(t, chunk.Content)
		assert.Positive(t, chunk.Tokens)
	}
	assert.Len(t, documents, 3)
}

func TestPipeline_SemanticRetrieval(t *testing.T) {
	store := index.NewMemoryStore()
	ix, _ := ingestFixtures(t, store)
	ctx := context.Background()

	chunks, err := store.GetByProject(ctx, "proj")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// querying with a chunk's exact content must rank that chunk first
	target := chunks[len(chunks)/2]
	r := retriever.New(ix, nil)
	result, err := r.Retrieve(ctx, "proj", target.Content, types.StrategySemantic, types.RetrievalOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, target.ID, result.Chunks[0].Chunk.ID)
	assert.Greater(t, result.Chunks[0].SimilarityScore, 0.99)
	assert.Equal(t, types.StrategySemantic, result.StrategyUsed)
	assert.False(t, result.Degraded)
}

func TestPipeline_HierarchicalRetrieval(t *testing.T) {
	store := index.NewMemoryStore()
	ix, _ := ingestFixtures(t, store)

	r := retriever.New(ix, nil)
	result, err := r.Retrieve(context.Background(), "proj", "monitoring", types.StrategyHierarchical, types.RetrievalOptions{
		FilterByHeading: "monitoring",
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	for _, hit := range result.Chunks {
		matched := false
		for _, heading := range hit.Chunk.HeadingPath {
			if heading == "Monitoring" || heading == "Common Alerts" {
				matched = true
			}
		}
		assert.True(t, matched, "chunk %s has heading path %v", hit.Chunk.ID, hit.Chunk.HeadingPath)
	}
}

func TestPipeline_KeywordRetrieval(t *testing.T) {
	store := index.NewMemoryStore()
	ix, _ := ingestFixtures(t, store)

	r := retriever.New(ix, nil)
	result, err := r.Retrieve(context.Background(), "proj", "ivfflat postgres latency", types.StrategyKeyword, types.RetrievalOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	for _, hit := range result.Chunks {
		assert.Positive(t, hit.SimilarityScore)
	}
}

func TestPipeline_ContextualRetrieval(t *testing.T) {
	store := index.NewMemoryStore()
	ix, _ := ingestFixtures(t, store)
	ctx := context.Background()

	chunks, err := store.GetByDocument(ctx, "proj", "handbook.md")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	r := retriever.New(ix, nil)
	result, err := r.Retrieve(ctx, "proj", chunks[1].Content, types.StrategyContextual, types.RetrievalOptions{
		MaxResults:    1,
		ContextWindow: 1,
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	assert.NotEmpty(t, result.Chunks[0].ContextChunks)
}

func TestPipeline_DegradesWithoutEmbeddingProvider(t *testing.T) {
	store := index.NewMemoryStore()
	ingestFixtures(t, store)

	// same store, but every embedding call fails
	broken := index.NewChunkIndex(&failingEmbedder{}, store, nil)
	r := retriever.New(broken, nil)

	result, err := r.Retrieve(context.Background(), "proj", "incident response", types.StrategySemantic, types.RetrievalOptions{})
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, types.StrategyKeyword, result.StrategyUsed)
	assert.NotEmpty(t, result.Chunks)
}

func TestPipeline_ReindexReplacesChunks(t *testing.T) {
	store := index.NewMemoryStore()
	ix, _ := ingestFixtures(t, store)
	ctx := context.Background()

	before, err := store.GetByDocument(ctx, "proj", "handbook.md")
	require.NoError(t, err)
	require.NotEmpty(t, before)

	data, err := os.ReadFile(filepath.Join(fixturesDir(t), "handbook.md"))
	require.NoError(t, err)

	p := processor.New(ix, nil)
	_, err = p.ProcessDocument(ctx, "proj", processor.Document{
		ID:       "handbook.md",
		FileName: "handbook.md",
		Text:     string(data),
	}, types.DefaultChunkingConfig())
	require.NoError(t, err)

	after, err := store.GetByDocument(ctx, "proj", "handbook.md")
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestPipeline_DeleteDocument(t *testing.T) {
	store := index.NewMemoryStore()
	ix, _ := ingestFixtures(t, store)
	ctx := context.Background()

	require.NoError(t, ix.DeleteDocument(ctx, "proj", "faq.html"))

	remaining, err := store.GetByDocument(ctx, "proj", "faq.html")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	others, err := store.GetByDocument(ctx, "proj", "handbook.md")
	require.NoError(t, err)
	assert.NotEmpty(t, others)
}

func TestPipeline_BrowseStructure(t *testing.T) {
	store := index.NewMemoryStore()
	ix, _ := ingestFixtures(t, store)

	r := retriever.New(ix, nil)
	entries, err := r.BrowseStructure(context.Background(), "proj", 0, true)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	titles := map[string]*types.StructureEntry{}
	for _, entry := range entries {
		titles[entry.Title] = entry
	}

	handbook, ok := titles["Operations Handbook"]
	require.True(t, ok, "missing top-level handbook entry, got %v", titles)
	assert.Positive(t, handbook.ChunkCount)
	assert.NotEmpty(t, handbook.Children)

	_, ok = titles["Frequently Asked Questions"]
	assert.True(t, ok)
}

func TestPipeline_SQLiteBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chunks.db")
	store, err := index.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ix, stats := ingestFixtures(t, store)
	assert.Equal(t, 3, stats.DocumentsProcessed)
	ctx := context.Background()

	chunks, err := store.GetByDocument(ctx, "proj", "architecture.md")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	r := retriever.New(ix, nil)
	result, err := r.Retrieve(ctx, "proj", chunks[0].Content, types.StrategySemantic, types.RetrievalOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, chunks[0].ID, result.Chunks[0].Chunk.ID)
}
