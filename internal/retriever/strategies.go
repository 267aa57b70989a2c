package retriever

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/dkellner/chunksmith/pkg/types"
)

// Hybrid ranking weights: similarity dominates, structure breaks near-ties
const (
	hybridSimilarityWeight = 0.7
	hybridStructuralWeight = 0.3

	// recencyBoostWeight is the maximum additive score for the newest chunk
	// when boost_recent is set
	recencyBoostWeight = 0.1
)

// semantic embeds the query, runs similarity search, and keeps candidates
// at or above the similarity threshold, sorted by score descending with
// lower position winning ties.
func (r *Retriever) semantic(ctx context.Context, projectID, query string, opts types.RetrievalOptions) ([]types.ScoredChunk, error) {
	candidates, err := r.index.Query(ctx, projectID, query, opts.MaxResults*candidateMultiplier)
	if err != nil {
		return nil, err
	}

	hits := make([]types.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity < opts.SimilarityThreshold {
			continue
		}
		hits = append(hits, types.ScoredChunk{Chunk: c.Chunk, SimilarityScore: c.Similarity})
	}
	sortHits(hits)
	return hits, nil
}

// hierarchical ignores vector similarity entirely: chunks are filtered by
// heading and hierarchy level and ordered by position.
func (r *Retriever) hierarchical(ctx context.Context, projectID string, opts types.RetrievalOptions) ([]types.ScoredChunk, error) {
	chunks, err := r.index.Store().GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	hits := make([]types.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if opts.FilterByHeading != "" && !headingMatches(chunk, opts.FilterByHeading) {
			continue
		}
		if opts.HierarchyLevel != nil && chunk.HierarchyLevel != *opts.HierarchyLevel {
			continue
		}
		hits = append(hits, types.ScoredChunk{Chunk: chunk})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i].Chunk, hits[j].Chunk
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Position < b.Position
	})
	return hits, nil
}

// hybrid reranks semantic candidates by a weighted blend of vector
// similarity and structural relevance. Structural relevance is the share
// of query terms found in the chunk's heading path or topic keywords.
func (r *Retriever) hybrid(ctx context.Context, projectID, query string, opts types.RetrievalOptions) ([]types.ScoredChunk, error) {
	hits, err := r.semantic(ctx, projectID, query, opts)
	if err != nil {
		return nil, err
	}

	terms := queryTerms(query)
	for i := range hits {
		structural := structuralRelevance(hits[i].Chunk, terms)
		hits[i].SimilarityScore = hybridSimilarityWeight*hits[i].SimilarityScore +
			hybridStructuralWeight*structural
	}
	sortHits(hits)
	return hits, nil
}

// keyword scores chunks by lexical overlap between query terms and the
// chunk's topic keywords and content. It makes no embedding call and is
// the designated degraded-mode fallback.
func (r *Retriever) keyword(ctx context.Context, projectID, query string, opts types.RetrievalOptions) ([]types.ScoredChunk, error) {
	chunks, err := r.index.Store().GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	hits := make([]types.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		score := keywordScore(chunk, terms)
		if score <= 0 {
			continue
		}
		hits = append(hits, types.ScoredChunk{Chunk: chunk, SimilarityScore: score})
	}
	sortHits(hits)
	return hits, nil
}

// applyPostFilters narrows hits by document and type and applies the
// recency boost. Runs on every strategy's output before truncation.
func applyPostFilters(hits []types.ScoredChunk, opts types.RetrievalOptions) []types.ScoredChunk {
	filtered := hits[:0]
	for _, hit := range hits {
		if opts.FilterByDocument != "" && hit.Chunk.DocumentID != opts.FilterByDocument {
			continue
		}
		if opts.FilterByType != "" && hit.Chunk.ChunkType != opts.FilterByType {
			continue
		}
		filtered = append(filtered, hit)
	}

	if opts.BoostRecent && len(filtered) > 1 {
		boostRecent(filtered)
		sortHits(filtered)
	}
	return filtered
}

// boostRecent adds a monotonic score term proportional to how recent the
// chunk is relative to the oldest and newest in the candidate set.
func boostRecent(hits []types.ScoredChunk) {
	oldest, newest := hits[0].Chunk.CreatedAt, hits[0].Chunk.CreatedAt
	for _, hit := range hits[1:] {
		if hit.Chunk.CreatedAt.Before(oldest) {
			oldest = hit.Chunk.CreatedAt
		}
		if hit.Chunk.CreatedAt.After(newest) {
			newest = hit.Chunk.CreatedAt
		}
	}

	span := newest.Sub(oldest)
	if span <= 0 {
		return
	}
	for i := range hits {
		age := hits[i].Chunk.CreatedAt.Sub(oldest)
		hits[i].SimilarityScore += recencyBoostWeight * float64(age) / float64(span)
	}
}

// sortHits orders by score descending; lower position wins ties
func sortHits(hits []types.ScoredChunk) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].SimilarityScore != hits[j].SimilarityScore {
			return hits[i].SimilarityScore > hits[j].SimilarityScore
		}
		return hits[i].Chunk.Position < hits[j].Chunk.Position
	})
}

// headingMatches reports whether the filter matches any element of the
// chunk's heading path, case-insensitively.
func headingMatches(chunk *types.Chunk, filter string) bool {
	needle := strings.ToLower(filter)
	for _, title := range chunk.HeadingPath {
		if strings.Contains(strings.ToLower(title), needle) {
			return true
		}
	}
	return false
}

// queryTerms lowercases and splits a query into content-bearing terms
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) < 2 || seen[field] {
			continue
		}
		seen[field] = true
		terms = append(terms, field)
	}
	return terms
}

// structuralRelevance is the fraction of query terms appearing in the
// chunk's heading path or topic keywords.
func structuralRelevance(chunk *types.Chunk, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}

	haystack := make(map[string]bool)
	for _, title := range chunk.HeadingPath {
		for _, term := range queryTerms(title) {
			haystack[term] = true
		}
	}
	for _, kw := range chunk.TopicKeywords {
		haystack[strings.ToLower(kw)] = true
	}

	matched := 0
	for _, term := range terms {
		if haystack[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// keywordScore is the fraction of query terms found in the chunk's topic
// keywords or content text.
func keywordScore(chunk *types.Chunk, terms []string) float64 {
	haystack := make(map[string]bool)
	for _, kw := range chunk.TopicKeywords {
		haystack[strings.ToLower(kw)] = true
	}
	for _, term := range queryTerms(chunk.Content) {
		haystack[term] = true
	}

	matched := 0
	for _, term := range terms {
		if haystack[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}
