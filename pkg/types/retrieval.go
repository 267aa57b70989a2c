package types

import "time"

// RetrievalStrategy selects how candidates are scored and filtered.
type RetrievalStrategy string

const (
	StrategySemantic     RetrievalStrategy = "semantic"
	StrategyHierarchical RetrievalStrategy = "hierarchical"
	StrategyHybrid       RetrievalStrategy = "hybrid"
	StrategyContextual   RetrievalStrategy = "contextual"
	StrategyKeyword      RetrievalStrategy = "keyword"
)

// ValidStrategy reports whether s is one of the five known strategies.
func ValidStrategy(s RetrievalStrategy) bool {
	switch s {
	case StrategySemantic, StrategyHierarchical, StrategyHybrid, StrategyContextual, StrategyKeyword:
		return true
	}
	return false
}

// RetrievalOptions narrows and shapes a retrieval request. The zero value
// is usable; Retrieve applies defaults for unset fields.
type RetrievalOptions struct {
	MaxResults          int       `json:"max_results"`
	SimilarityThreshold float64   `json:"similarity_threshold"`
	FilterByDocument    string    `json:"filter_by_document,omitempty"`
	FilterByHeading     string    `json:"filter_by_heading,omitempty"`
	FilterByType        ChunkType `json:"filter_by_type,omitempty"`
	HierarchyLevel      *int      `json:"hierarchy_level,omitempty"`
	IncludeContext      bool      `json:"include_context"`
	ContextWindow       int       `json:"context_window"` // 0-5 neighbors on each side
	BoostRecent         bool      `json:"boost_recent"`

	// Timeout bounds the whole retrieval call. On expiry the retriever
	// returns the keyword-fallback result marked as degraded instead of
	// blocking indefinitely.
	Timeout  time.Duration `json:"-"`
	UseCache bool          `json:"-"`
}

// RelatedOptions shapes a Related call.
type RelatedOptions struct {
	IncludeSiblings       bool    `json:"include_siblings"`
	IncludeParentChildren bool    `json:"include_parent_children"`
	MaxResults            int     `json:"max_results"`
	SimilarityThreshold   float64 `json:"similarity_threshold"`
}

// ScoredChunk annotates a chunk with its retrieval score and optional
// context expansion.
type ScoredChunk struct {
	Chunk           *Chunk   `json:"chunk"`
	SimilarityScore float64  `json:"similarity_score"`
	ContextChunks   []*Chunk `json:"context_chunks,omitempty"`
	RelatedChunks   []*Chunk `json:"related_chunks,omitempty"`
}

// RetrievalMetadata aggregates scoring information across a result set.
type RetrievalMetadata struct {
	AverageSimilarity float64  `json:"average_similarity"`
	Documents         []string `json:"documents,omitempty"`
}

// RetrievalResult is a ranked, context-expanded answer to one query.
type RetrievalResult struct {
	Chunks             []ScoredChunk     `json:"chunks"`
	TotalFound         int               `json:"total_found"`
	ProcessingTimeMS   int64             `json:"processing_time_ms"`
	StrategyUsed       RetrievalStrategy `json:"strategy_used"`
	Degraded           bool              `json:"degraded,omitempty"`
	AggregatedMetadata RetrievalMetadata `json:"aggregated_metadata"`
}

// StructureEntry is one heading in a browsable document outline.
type StructureEntry struct {
	Title      string            `json:"title"`
	Level      int               `json:"level"`
	ChunkCount int               `json:"chunk_count"`
	Preview    string            `json:"preview,omitempty"`
	Children   []*StructureEntry `json:"children,omitempty"`
}
