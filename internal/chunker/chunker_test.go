package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/chunksmith/internal/parser"
	"github.com/dkellner/chunksmith/pkg/types"
)

func testConfig() types.ChunkingConfig {
	return types.ChunkingConfig{
		MinChunkSize:             50,
		MaxChunkSize:             200,
		TargetChunkSize:          120,
		OverlapPercentage:        10,
		PreferSemanticBoundaries: true,
		RespectSectionBoundaries: true,
	}
}

// wordBlock generates n space-separated distinct words (~1.33n tokens).
func wordBlock(n int) string {
	return taggedBlock("word", n)
}

func taggedBlock(tag string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", tag, i)
	}
	return strings.Join(words, " ")
}

func chunkText(t *testing.T, input string, cfg types.ChunkingConfig) ([]*types.Chunk, *types.ChunkingResult) {
	t.Helper()
	tree := parser.New().Parse(input)
	chunks, result, err := New().Chunk(tree, Request{DocumentID: "doc-1"}, cfg)
	require.NoError(t, err)
	return chunks, result
}

func TestChunk_EmptyInput(t *testing.T) {
	chunks, result := chunkText(t, "", testConfig())
	assert.Empty(t, chunks)
	assert.Equal(t, 0, result.TotalChunks)
	assert.Equal(t, 0, result.TotalTokens)
	assert.Zero(t, result.AverageChunkSize)
	assert.Zero(t, result.SemanticCoherence)
}

func TestChunk_InvalidConfigFailsFast(t *testing.T) {
	cfg := testConfig()
	cfg.TargetChunkSize = cfg.MaxChunkSize + 100

	tree := parser.New().Parse("# A\n\ntext\n")
	_, _, err := New().Chunk(tree, Request{DocumentID: "doc-1"}, cfg)

	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "max_chunk_size", verr.Field)
}

func TestChunk_TokenizationErrorIsFatal(t *testing.T) {
	tree := &types.DocumentNode{
		Kind: types.NodeMixed,
		Children: []*types.DocumentNode{
			{Kind: types.NodeParagraph, Text: string([]byte{0xff, 0xfe, 0xfd}), Position: 1},
		},
	}

	_, _, err := New().Chunk(tree, Request{DocumentID: "doc-1"}, testConfig())

	var terr *types.TokenizationError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "doc-1", terr.DocumentID)
}

func TestChunk_TwoSectionScenario(t *testing.T) {
	input := fmt.Sprintf("# T\n\n## A\n\n%s\n\n## B\n\n%s\n", taggedBlock("alpha", 90), taggedBlock("beta", 90))

	chunks, _ := chunkText(t, input, testConfig())
	require.Len(t, chunks, 2)

	assert.Equal(t, []string{"T", "A"}, chunks[0].HeadingPath)
	assert.Equal(t, []string{"T", "B"}, chunks[1].HeadingPath)

	assert.False(t, chunks[0].HasOverlapPrevious)
	assert.True(t, chunks[0].HasOverlapNext)
	assert.True(t, chunks[1].HasOverlapPrevious)
	assert.NotEmpty(t, chunks[1].OverlapText)
	assert.Empty(t, chunks[0].OverlapText)

	// Overlap text stays out of content: content still starts with the
	// section heading, not the previous chunk's tail.
	assert.NotContains(t, chunks[1].Content, chunks[1].OverlapText)
}

func TestChunk_SizeBounds(t *testing.T) {
	var sections []string
	for i := 0; i < 6; i++ {
		sections = append(sections, fmt.Sprintf("## S%d\n\n%s", i, wordBlock(100)))
	}
	input := "# Doc\n\n" + strings.Join(sections, "\n\n")

	cfg := testConfig()
	cfg.OverlapPercentage = 0
	chunks, _ := chunkText(t, input, cfg)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		if ch.OversizeAtomic {
			continue
		}
		assert.LessOrEqual(t, ch.Tokens, cfg.MaxChunkSize, "chunk %d over max", i)
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, ch.Tokens, cfg.MinChunkSize, "chunk %d under min", i)
		}
	}
}

func TestChunk_PositionsContiguous(t *testing.T) {
	input := "# Doc\n\n" + wordBlock(400)

	chunks, _ := chunkText(t, input, testConfig())
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
		assert.Equal(t, "doc-1", ch.DocumentID)
	}
}

func TestChunk_SequentialLinksConsistent(t *testing.T) {
	input := "# Doc\n\n" + wordBlock(500)

	chunks, _ := chunkText(t, input, testConfig())
	require.Greater(t, len(chunks), 2)

	assert.Empty(t, chunks[0].PreviousChunkID)
	assert.Empty(t, chunks[len(chunks)-1].NextChunkID)
	for i := 0; i < len(chunks)-1; i++ {
		assert.Equal(t, chunks[i+1].ID, chunks[i].NextChunkID)
		assert.Equal(t, chunks[i].ID, chunks[i+1].PreviousChunkID)
	}
}

func TestChunk_SiblingAndChildLinks(t *testing.T) {
	input := fmt.Sprintf("# T\n\n## A\n\n%s\n\n## B\n\n%s\n\n## C\n\n%s\n",
		wordBlock(90), wordBlock(90), wordBlock(90))

	chunks, _ := chunkText(t, input, testConfig())
	require.GreaterOrEqual(t, len(chunks), 3)

	byPath := make(map[string]*types.Chunk)
	for _, ch := range chunks {
		byPath[ch.HeadingPathKey()] = ch
	}

	a := byPath["T > A"]
	b := byPath["T > B"]
	require.NotNil(t, a)
	require.NotNil(t, b)

	// A and B share the parent heading T.
	assert.Contains(t, a.SiblingChunkIDs, b.ID)
	assert.Contains(t, b.SiblingChunkIDs, a.ID)
	assert.NotContains(t, a.SiblingChunkIDs, a.ID)
}

func TestChunk_ChildLinksExtendPath(t *testing.T) {
	input := fmt.Sprintf("# T\n\n%s\n\n## A\n\n%s\n",
		wordBlock(80), wordBlock(80))

	cfg := testConfig()
	cfg.TargetChunkSize = 100
	cfg.MaxChunkSize = 150
	chunks, _ := chunkText(t, input, cfg)
	require.GreaterOrEqual(t, len(chunks), 2)

	var parent, child *types.Chunk
	for _, ch := range chunks {
		switch ch.HeadingPathKey() {
		case "T":
			parent = ch
		case "T > A":
			child = ch
		}
	}
	require.NotNil(t, parent)
	require.NotNil(t, child)
	assert.Contains(t, parent.ChildChunkIDs, child.ID)
}

func TestChunk_DeterministicBoundaries(t *testing.T) {
	input := fmt.Sprintf("# T\n\n## A\n\n%s\n\n## B\n\n- one\n- two\n\n%s\n",
		wordBlock(150), wordBlock(60))

	first, firstResult := chunkText(t, input, testConfig())
	second, secondResult := chunkText(t, input, testConfig())

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].Tokens, second[i].Tokens)
		assert.Equal(t, first[i].HeadingPath, second[i].HeadingPath)
		assert.Equal(t, first[i].ChunkType, second[i].ChunkType)
		assert.Equal(t, first[i].TopicKeywords, second[i].TopicKeywords)
	}
	assert.Equal(t, firstResult, secondResult)
}

func TestChunk_HeadingPathsExistInTree(t *testing.T) {
	input := fmt.Sprintf("# T\n\n## A\n\n### Deep\n\n%s\n\n## B\n\n%s\n",
		wordBlock(120), wordBlock(120))

	tree := parser.New().Parse(input)
	chunks, _, err := New().Chunk(tree, Request{DocumentID: "doc-1"}, testConfig())
	require.NoError(t, err)

	valid := headingChains(tree)
	for _, ch := range chunks {
		if len(ch.HeadingPath) == 0 {
			continue
		}
		assert.True(t, valid[ch.HeadingPathKey()], "fabricated path %q", ch.HeadingPathKey())
	}
}

func TestChunk_MalformedInputStillChunks(t *testing.T) {
	input := "#### H4\n\n" + wordBlock(40)

	chunks, result := chunkText(t, input, testConfig())
	require.NotEmpty(t, chunks)
	assert.Equal(t, []string{"H4"}, chunks[0].HeadingPath)
	assert.Greater(t, result.TotalTokens, 0)
}

func TestChunk_SingleSmallNodeUnderflows(t *testing.T) {
	chunks, _ := chunkText(t, "tiny paragraph only", testConfig())
	require.Len(t, chunks, 1)
	assert.Less(t, chunks[0].Tokens, testConfig().MinChunkSize)
}

func TestChunk_OversizedAtomicCodeBlockFlagged(t *testing.T) {
	code := "```go\n"
	for i := 0; i < 300; i++ {
		code += fmt.Sprintf("line%d := compute(%d)\n", i, i)
	}
	code += "```"
	input := "# Code\n\n" + code + "\n"

	chunks, _ := chunkText(t, input, testConfig())
	require.NotEmpty(t, chunks)

	var flagged *types.Chunk
	for _, ch := range chunks {
		if ch.OversizeAtomic {
			flagged = ch
		}
	}
	require.NotNil(t, flagged, "oversized code block must be flagged")
	assert.Equal(t, types.ChunkCode, flagged.ChunkType)
	assert.Greater(t, flagged.Tokens, testConfig().MaxChunkSize)
}

func TestChunk_HeadingContextPrefix(t *testing.T) {
	input := "# Guide\n\n## Install\n\n" + wordBlock(60)

	cfg := testConfig()
	cfg.IncludeHeadingContext = true
	withCtx, _ := chunkText(t, input, cfg)

	cfg.IncludeHeadingContext = false
	withoutCtx, _ := chunkText(t, input, cfg)

	require.Len(t, withCtx, 1)
	require.Len(t, withoutCtx, 1)
	assert.True(t, strings.HasPrefix(withCtx[0].Content, "Guide > Install"))
	assert.False(t, strings.HasPrefix(withoutCtx[0].Content, "Guide > Install"))
	assert.Greater(t, withCtx[0].Tokens, withoutCtx[0].Tokens)
}

func TestChunk_TopicKeywordsAndDensity(t *testing.T) {
	input := "# Topic\n\nkubernetes cluster scheduling kubernetes cluster nodes workloads scheduling kubernetes\n"

	chunks, result := chunkText(t, input, testConfig())
	require.Len(t, chunks, 1)

	assert.Contains(t, chunks[0].TopicKeywords, "kubernetes")
	assert.Greater(t, chunks[0].SemanticDensity, 0.0)
	assert.LessOrEqual(t, chunks[0].SemanticDensity, 1.0)
	assert.InDelta(t, chunks[0].SemanticDensity, result.SemanticCoherence, 1e-9)
}

func TestChunk_OverlapDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.OverlapPercentage = 0

	input := "# Doc\n\n" + wordBlock(400)
	chunks, result := chunkText(t, input, cfg)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.False(t, ch.HasOverlapPrevious)
		assert.False(t, ch.HasOverlapNext)
		assert.Empty(t, ch.OverlapText)
	}
	assert.Equal(t, 1.0, result.OverlapEfficiency)
}

func TestChunk_RespectSectionBoundaries(t *testing.T) {
	// Two top-level sections, each comfortably over min. A cut must land
	// on the section boundary even though both would fit in one chunk.
	input := fmt.Sprintf("# First\n\n%s\n\n# Second\n\n%s\n", wordBlock(50), wordBlock(50))

	cfg := testConfig()
	cfg.TargetChunkSize = 190
	cfg.MaxChunkSize = 400
	cfg.MinChunkSize = 40
	chunks, _ := chunkText(t, input, cfg)

	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"First"}, chunks[0].HeadingPath)
	assert.Equal(t, []string{"Second"}, chunks[1].HeadingPath)
}

// sentenceBlock generates n distinct ten-word sentences so mid-piece
// splitting has sentence boundaries to cut at.
func sentenceBlock(tag string, n int) string {
	sentences := make([]string, n)
	for i := range sentences {
		sentences[i] = taggedBlock(fmt.Sprintf("%s%dw", tag, i), 10) + "."
	}
	return strings.Join(sentences, " ")
}

func TestChunk_UndersizedBufferSplitsNextPiece(t *testing.T) {
	// A short opening under min followed by a paragraph too big to join it
	// whole. The cut must move into the paragraph rather than emit the
	// undersized opening as its own chunk, even with semantic boundaries
	// preferred.
	input := fmt.Sprintf("# Doc\n\n%s\n\n%s\n\n%s\n",
		wordBlock(20), sentenceBlock("long", 13), wordBlock(30))

	cfg := testConfig()
	cfg.OverlapPercentage = 0
	require.True(t, cfg.PreferSemanticBoundaries)
	chunks, _ := chunkText(t, input, cfg)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		if ch.OversizeAtomic {
			continue
		}
		assert.LessOrEqual(t, ch.Tokens, cfg.MaxChunkSize, "chunk %d over max", i)
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, ch.Tokens, cfg.MinChunkSize, "chunk %d under min", i)
		}
	}
	// The opening stayed with the start of the split paragraph.
	assert.Contains(t, chunks[0].Content, "word0")
	assert.Contains(t, chunks[0].Content, "long0w0")
}

func TestChunk_HeadingContextStaysWithinMax(t *testing.T) {
	// Long heading titles make the context prefix expensive; the prefix
	// budget must be reserved while packing so finished chunks still land
	// under the hard max.
	input := fmt.Sprintf("# %s\n\n## %s\n\n### %s\n\n%s\n",
		taggedBlock("title", 10), taggedBlock("section", 10), taggedBlock("topic", 10),
		sentenceBlock("body", 40))

	cfg := testConfig()
	cfg.IncludeHeadingContext = true
	cfg.OverlapPercentage = 0
	chunks, _ := chunkText(t, input, cfg)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		if ch.OversizeAtomic {
			continue
		}
		assert.LessOrEqual(t, ch.Tokens, cfg.MaxChunkSize, "chunk %d over max", i)
	}
}

func TestChunk_TinySectionMergesAcrossBoundary(t *testing.T) {
	// The first section is below min; the section cut is skipped so no
	// tiny chunk is emitted.
	input := fmt.Sprintf("# First\n\n%s\n\n# Second\n\n%s\n", wordBlock(10), wordBlock(50))

	cfg := testConfig()
	cfg.MinChunkSize = 40
	cfg.TargetChunkSize = 190
	cfg.MaxChunkSize = 400
	chunks, _ := chunkText(t, input, cfg)

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "# First")
	assert.Contains(t, chunks[0].Content, "# Second")
}
