package retriever

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/dkellner/chunksmith/pkg/types"
)

// relatedTopK is how many similarity neighbors are considered for Related
const relatedTopK = 20

// Related returns chunks connected to the source chunk: its siblings,
// its parent and children, and its nearest vector-space neighbors, minus
// the source itself. Results are ranked by similarity to the source, with
// positional proximity breaking ties.
func (r *Retriever) Related(ctx context.Context, projectID, chunkID string, opts types.RelatedOptions) ([]*types.Chunk, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}

	store := r.index.Store()
	source, err := store.GetChunk(ctx, projectID, chunkID)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]*types.Chunk)
	similarity := make(map[string]float64)

	collect := func(ids []string) error {
		for _, id := range ids {
			if id == chunkID || candidates[id] != nil {
				continue
			}
			chunk, err := store.GetChunk(ctx, projectID, id)
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return err
			}
			candidates[id] = chunk
		}
		return nil
	}

	if opts.IncludeSiblings {
		if err := collect(source.SiblingChunkIDs); err != nil {
			return nil, err
		}
	}
	if opts.IncludeParentChildren {
		if err := collect(source.ChildChunkIDs); err != nil {
			return nil, err
		}
		parent, err := r.findParent(ctx, projectID, source)
		if err != nil {
			return nil, err
		}
		if parent != nil && parent.ID != chunkID {
			candidates[parent.ID] = parent
		}
	}

	// Vector-space neighborhood of the source chunk's own embedding
	vector, err := store.GetVector(ctx, projectID, chunkID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if vector != nil {
		neighbors, err := store.Query(ctx, projectID, vector, relatedTopK)
		if err != nil {
			return nil, err
		}
		for _, neighbor := range neighbors {
			if neighbor.Chunk.ID == chunkID {
				continue
			}
			similarity[neighbor.Chunk.ID] = neighbor.Similarity
			if neighbor.Similarity >= opts.SimilarityThreshold && candidates[neighbor.Chunk.ID] == nil {
				candidates[neighbor.Chunk.ID] = neighbor.Chunk
			}
		}
	}

	ranked := make([]*types.Chunk, 0, len(candidates))
	for _, chunk := range candidates {
		ranked = append(ranked, chunk)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := similarity[ranked[i].ID], similarity[ranked[j].ID]
		if si != sj {
			return si > sj
		}
		return positionDistance(source, ranked[i]) < positionDistance(source, ranked[j])
	})

	if len(ranked) > opts.MaxResults {
		ranked = ranked[:opts.MaxResults]
	}
	return ranked, nil
}

// findParent locates the chunk whose heading path equals the source's
// parent path, closest before the source in document order.
func (r *Retriever) findParent(ctx context.Context, projectID string, source *types.Chunk) (*types.Chunk, error) {
	parentPath := source.ParentPath()
	if len(parentPath) == 0 {
		return nil, nil
	}
	parentKey := strings.Join(parentPath, " > ")

	siblings, err := r.index.Store().GetByDocument(ctx, projectID, source.DocumentID)
	if err != nil {
		return nil, err
	}

	var parent *types.Chunk
	for _, chunk := range siblings {
		if chunk.Position >= source.Position {
			break
		}
		if chunk.HeadingPathKey() == parentKey {
			parent = chunk
		}
	}
	return parent, nil
}

// positionDistance is structural proximity for ranking: chunks from other
// documents sort after everything in the source's document.
func positionDistance(source, other *types.Chunk) int {
	if source.DocumentID != other.DocumentID {
		return 1 << 30
	}
	d := other.Position - source.Position
	if d < 0 {
		return -d
	}
	return d
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}

// BrowseStructure rebuilds a heading outline for a project from stored
// chunk metadata, up to maxDepth levels. Each entry carries the number of
// chunks under that heading subtree and, when includeContent is set, a
// short preview of the first chunk's content.
func (r *Retriever) BrowseStructure(ctx context.Context, projectID string, maxDepth int, includeContent bool) ([]*types.StructureEntry, error) {
	if maxDepth <= 0 {
		maxDepth = 6 // full heading depth
	}

	chunks, err := r.index.Store().GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var roots []*types.StructureEntry
	byPath := make(map[string]*types.StructureEntry)

	for _, chunk := range chunks {
		depth := len(chunk.HeadingPath)
		if depth > maxDepth {
			depth = maxDepth
		}

		var parentKey string
		for level := 1; level <= depth; level++ {
			key := strings.Join(chunk.HeadingPath[:level], " > ")
			entry, ok := byPath[key]
			if !ok {
				entry = &types.StructureEntry{
					Title: chunk.HeadingPath[level-1],
					Level: level,
				}
				byPath[key] = entry
				if level == 1 {
					roots = append(roots, entry)
				} else {
					parent := byPath[parentKey]
					parent.Children = append(parent.Children, entry)
				}
			}
			entry.ChunkCount++
			if includeContent && entry.Preview == "" {
				entry.Preview = contentPreview(chunk.Content)
			}
			parentKey = key
		}
	}

	return roots, nil
}

const previewLength = 120

func contentPreview(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= previewLength {
		return content
	}
	cut := previewLength
	for cut > 0 && !isSpaceByte(content[cut]) {
		cut--
	}
	if cut == 0 {
		cut = previewLength
	}
	return strings.TrimSpace(content[:cut]) + "..."
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}
