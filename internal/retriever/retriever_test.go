package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/chunksmith/internal/embedder"
	"github.com/dkellner/chunksmith/internal/index"
	"github.com/dkellner/chunksmith/pkg/types"
)

func makeChunk(id, documentID string, position int, path []string, content string, kind types.ChunkType) *types.Chunk {
	return &types.Chunk{
		ID:             id,
		DocumentID:     documentID,
		Content:        content,
		Tokens:         20,
		Position:       position,
		HeadingPath:    path,
		HierarchyLevel: len(path),
		ChunkType:      kind,
		CreatedAt:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

// corpus builds a retriever over a small indexed document set:
//
//	guide: Intro (level 1) > Setup, Usage (level 2)
//	notes: a single paragraph about databases
func corpus(t *testing.T) (*Retriever, *index.ChunkIndex) {
	t.Helper()

	emb, err := embedder.NewMockProvider(nil)
	require.NoError(t, err)
	ix := index.NewChunkIndex(emb, index.NewMemoryStore(), nil)

	ctx := context.Background()

	intro := makeChunk("g0", "guide", 0, []string{"Intro"}, "welcome to the installation guide overview", types.ChunkHeading)
	setup := makeChunk("g1", "guide", 1, []string{"Intro", "Setup"}, "install the binary and configure the server endpoint", types.ChunkParagraph)
	usage := makeChunk("g2", "guide", 2, []string{"Intro", "Usage"}, "run queries against the endpoint with the client", types.ChunkParagraph)
	setup.SiblingChunkIDs = []string{"g2"}
	usage.SiblingChunkIDs = []string{"g1"}
	intro.ChildChunkIDs = []string{"g1", "g2"}
	setup.TopicKeywords = []string{"install", "configure", "server"}
	usage.TopicKeywords = []string{"queries", "client"}

	require.NoError(t, ix.IndexDocument(ctx, "proj", []*types.Chunk{intro, setup, usage}))

	notes := makeChunk("n0", "notes", 0, []string{"Databases"}, "postgres stores relational tuples on disk pages", types.ChunkParagraph)
	notes.TopicKeywords = []string{"postgres", "relational"}
	require.NoError(t, ix.IndexDocument(ctx, "proj", []*types.Chunk{notes}))

	return New(ix, nil), ix
}

func TestRetrieve_EmptyQueryFails(t *testing.T) {
	r, _ := corpus(t)

	_, err := r.Retrieve(context.Background(), "proj", "", types.StrategySemantic, types.RetrievalOptions{})

	var valErr *types.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "query", valErr.Field)
}

func TestRetrieve_UnknownStrategyFails(t *testing.T) {
	r, _ := corpus(t)

	_, err := r.Retrieve(context.Background(), "proj", "anything", types.RetrievalStrategy("sideways"), types.RetrievalOptions{})

	var valErr *types.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "strategy", valErr.Field)
}

func TestRetrieve_SemanticExactContentRanksFirst(t *testing.T) {
	r, _ := corpus(t)

	result, err := r.Retrieve(context.Background(), "proj",
		"install the binary and configure the server endpoint",
		types.StrategySemantic, types.RetrievalOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "g1", result.Chunks[0].Chunk.ID)
	assert.InDelta(t, 1.0, result.Chunks[0].SimilarityScore, 0.0001)
	assert.Equal(t, types.StrategySemantic, result.StrategyUsed)
	assert.False(t, result.Degraded)
}

func TestRetrieve_SemanticThresholdEnforced(t *testing.T) {
	r, _ := corpus(t)

	result, err := r.Retrieve(context.Background(), "proj",
		"completely unrelated gibberish zanzibar xylophone",
		types.StrategySemantic, types.RetrievalOptions{SimilarityThreshold: 0.99})
	require.NoError(t, err)

	assert.Empty(t, result.Chunks)
	assert.Zero(t, result.TotalFound)
}

func TestRetrieve_HierarchicalFiltersByLevel(t *testing.T) {
	r, _ := corpus(t)

	level := 2
	result, err := r.Retrieve(context.Background(), "proj", "ignored",
		types.StrategyHierarchical, types.RetrievalOptions{HierarchyLevel: &level})
	require.NoError(t, err)

	require.Len(t, result.Chunks, 2)
	for _, hit := range result.Chunks {
		assert.Equal(t, 2, hit.Chunk.HierarchyLevel)
	}
	// ordered by position within the document
	assert.Equal(t, "g1", result.Chunks[0].Chunk.ID)
	assert.Equal(t, "g2", result.Chunks[1].Chunk.ID)
}

func TestRetrieve_HierarchicalHeadingFilter(t *testing.T) {
	r, _ := corpus(t)

	result, err := r.Retrieve(context.Background(), "proj", "ignored",
		types.StrategyHierarchical, types.RetrievalOptions{FilterByHeading: "setup"})
	require.NoError(t, err)

	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "g1", result.Chunks[0].Chunk.ID)
}

func TestRetrieve_KeywordMatchesWithoutEmbedder(t *testing.T) {
	_, ix := corpus(t)
	// A retriever over a broken embedder: keyword must still work
	broken := index.NewChunkIndex(&failingEmbedder{}, ix.Store(), nil)
	r := New(broken, nil)

	result, err := r.Retrieve(context.Background(), "proj", "postgres relational",
		types.StrategyKeyword, types.RetrievalOptions{})
	require.NoError(t, err)

	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "n0", result.Chunks[0].Chunk.ID)
	assert.InDelta(t, 1.0, result.Chunks[0].SimilarityScore, 0.0001)
}

func TestRetrieve_DegradesToKeywordOnEmbedderFailure(t *testing.T) {
	_, ix := corpus(t)
	broken := index.NewChunkIndex(&failingEmbedder{}, ix.Store(), nil)
	r := New(broken, nil)

	result, err := r.Retrieve(context.Background(), "proj", "postgres relational",
		types.StrategySemantic, types.RetrievalOptions{})
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, types.StrategyKeyword, result.StrategyUsed)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "n0", result.Chunks[0].Chunk.ID)
}

func TestRetrieve_FilterByDocument(t *testing.T) {
	r, _ := corpus(t)

	result, err := r.Retrieve(context.Background(), "proj", "endpoint",
		types.StrategyKeyword, types.RetrievalOptions{FilterByDocument: "guide"})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	for _, hit := range result.Chunks {
		assert.Equal(t, "guide", hit.Chunk.DocumentID)
	}
}

func TestRetrieve_FilterByType(t *testing.T) {
	r, _ := corpus(t)

	result, err := r.Retrieve(context.Background(), "proj", "ignored",
		types.StrategyHierarchical, types.RetrievalOptions{FilterByType: types.ChunkHeading})
	require.NoError(t, err)

	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "g0", result.Chunks[0].Chunk.ID)
}

func TestRetrieve_ContextualAttachesNeighbors(t *testing.T) {
	r, _ := corpus(t)

	result, err := r.Retrieve(context.Background(), "proj",
		"install the binary and configure the server endpoint",
		types.StrategyContextual, types.RetrievalOptions{
			MaxResults:     1,
			IncludeContext: true,
			ContextWindow:  1,
		})
	require.NoError(t, err)

	require.Len(t, result.Chunks, 1)
	hit := result.Chunks[0]
	assert.Equal(t, "g1", hit.Chunk.ID)

	ids := make([]string, 0, len(hit.ContextChunks))
	for _, c := range hit.ContextChunks {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"g0", "g2"}, ids)
}

func TestRetrieve_TruncatesToMaxResults(t *testing.T) {
	r, _ := corpus(t)

	result, err := r.Retrieve(context.Background(), "proj", "the",
		types.StrategyHierarchical, types.RetrievalOptions{MaxResults: 2})
	require.NoError(t, err)

	assert.Len(t, result.Chunks, 2)
	assert.Equal(t, 4, result.TotalFound)
}

func TestRetrieve_AggregatedMetadata(t *testing.T) {
	r, _ := corpus(t)

	result, err := r.Retrieve(context.Background(), "proj", "ignored",
		types.StrategyHierarchical, types.RetrievalOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"guide", "notes"}, result.AggregatedMetadata.Documents)
}

func TestRetrieve_CachedQueryIsStable(t *testing.T) {
	r, _ := corpus(t)
	opts := types.RetrievalOptions{UseCache: true}

	first, err := r.Retrieve(context.Background(), "proj", "endpoint queries", types.StrategyKeyword, opts)
	require.NoError(t, err)
	second, err := r.Retrieve(context.Background(), "proj", "endpoint queries", types.StrategyKeyword, opts)
	require.NoError(t, err)

	require.Equal(t, len(first.Chunks), len(second.Chunks))
	for i := range first.Chunks {
		assert.Equal(t, first.Chunks[i].Chunk.ID, second.Chunks[i].Chunk.ID)
	}

	r.InvalidateCache()
	third, err := r.Retrieve(context.Background(), "proj", "endpoint queries", types.StrategyKeyword, opts)
	require.NoError(t, err)
	assert.Equal(t, len(first.Chunks), len(third.Chunks))
}

func TestRelated_ExcludesSelfAndSharesParent(t *testing.T) {
	r, _ := corpus(t)

	related, err := r.Related(context.Background(), "proj", "g1", types.RelatedOptions{
		IncludeSiblings: true,
	})
	require.NoError(t, err)

	require.NotEmpty(t, related)
	for _, chunk := range related {
		assert.NotEqual(t, "g1", chunk.ID)
	}

	// Siblings must share the parent heading path prefix
	for _, chunk := range related {
		if chunk.ID == "g2" {
			assert.Equal(t, []string{"Intro"}, chunk.ParentPath())
		}
	}
}

func TestRelated_ParentAndChildren(t *testing.T) {
	r, _ := corpus(t)

	related, err := r.Related(context.Background(), "proj", "g1", types.RelatedOptions{
		IncludeParentChildren: true,
		SimilarityThreshold:   1.1, // exclude pure similarity candidates
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(related))
	for _, chunk := range related {
		ids = append(ids, chunk.ID)
	}
	assert.Contains(t, ids, "g0", "parent chunk expected")
}

func TestBrowseStructure(t *testing.T) {
	r, _ := corpus(t)

	outline, err := r.BrowseStructure(context.Background(), "proj", 0, true)
	require.NoError(t, err)

	require.Len(t, outline, 2) // Intro, Databases

	var intro *types.StructureEntry
	for _, entry := range outline {
		if entry.Title == "Intro" {
			intro = entry
		}
	}
	require.NotNil(t, intro)
	assert.Equal(t, 1, intro.Level)
	assert.Equal(t, 3, intro.ChunkCount)
	assert.Len(t, intro.Children, 2)
	assert.NotEmpty(t, intro.Preview)
}

func TestBrowseStructure_MaxDepth(t *testing.T) {
	r, _ := corpus(t)

	outline, err := r.BrowseStructure(context.Background(), "proj", 1, false)
	require.NoError(t, err)

	for _, entry := range outline {
		assert.Empty(t, entry.Children)
	}
}

func TestStructuralRelevance(t *testing.T) {
	chunk := makeChunk("c", "d", 0, []string{"Installation Guide"}, "text", types.ChunkParagraph)
	chunk.TopicKeywords = []string{"server"}

	assert.InDelta(t, 1.0, structuralRelevance(chunk, []string{"installation", "server"}), 0.0001)
	assert.InDelta(t, 0.5, structuralRelevance(chunk, []string{"installation", "missing"}), 0.0001)
	assert.Zero(t, structuralRelevance(chunk, []string{"missing"}))
}

func TestBoostRecent_PrefersNewerChunks(t *testing.T) {
	older := makeChunk("old", "d", 0, nil, "same words here", types.ChunkParagraph)
	newer := makeChunk("new", "d", 1, nil, "same words here", types.ChunkParagraph)
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	hits := []types.ScoredChunk{
		{Chunk: older, SimilarityScore: 0.5},
		{Chunk: newer, SimilarityScore: 0.5},
	}
	hits = applyPostFilters(hits, types.RetrievalOptions{BoostRecent: true})

	require.Len(t, hits, 2)
	assert.Equal(t, "new", hits[0].Chunk.ID)
}

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
