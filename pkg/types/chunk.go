package types

import (
	"strings"
	"time"
)

// ChunkType labels the dominant structural content of a chunk.
type ChunkType string

const (
	ChunkParagraph ChunkType = "paragraph"
	ChunkList      ChunkType = "list"
	ChunkTable     ChunkType = "table"
	ChunkCode      ChunkType = "code"
	ChunkHeading   ChunkType = "heading"
	ChunkMixed     ChunkType = "mixed"
)

// ChunkingConfig enumerates every recognized chunking option. Token sizes
// are estimated counts, not exact model tokens.
type ChunkingConfig struct {
	MinChunkSize             int  `json:"min_chunk_size" mapstructure:"min_chunk_size"`
	MaxChunkSize             int  `json:"max_chunk_size" mapstructure:"max_chunk_size"`
	TargetChunkSize          int  `json:"target_chunk_size" mapstructure:"target_chunk_size"`
	OverlapPercentage        int  `json:"overlap_percentage" mapstructure:"overlap_percentage"`
	PreferSemanticBoundaries bool `json:"prefer_semantic_boundaries" mapstructure:"prefer_semantic_boundaries"`
	RespectSectionBoundaries bool `json:"respect_section_boundaries" mapstructure:"respect_section_boundaries"`
	IncludeHeadingContext    bool `json:"include_heading_context" mapstructure:"include_heading_context"`
}

// DefaultChunkingConfig returns the defaults used when no configuration is
// supplied.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		MinChunkSize:             50,
		MaxChunkSize:             800,
		TargetChunkSize:          400,
		OverlapPercentage:        10,
		PreferSemanticBoundaries: true,
		RespectSectionBoundaries: true,
		IncludeHeadingContext:    true,
	}
}

// Validate checks the size invariant min <= target <= max and the overlap
// range. An invalid configuration is rejected before any traversal begins.
func (c ChunkingConfig) Validate() error {
	if c.MinChunkSize <= 0 {
		return &ValidationError{Field: "min_chunk_size", Reason: "must be positive"}
	}
	if c.TargetChunkSize < c.MinChunkSize {
		return &ValidationError{Field: "target_chunk_size", Reason: "must be >= min_chunk_size"}
	}
	if c.MaxChunkSize < c.TargetChunkSize {
		return &ValidationError{Field: "max_chunk_size", Reason: "must be >= target_chunk_size"}
	}
	if c.OverlapPercentage < 0 || c.OverlapPercentage > 100 {
		return &ValidationError{Field: "overlap_percentage", Reason: "must be in [0,100]"}
	}
	return nil
}

// Chunk is a bounded, retrievable passage derived from one document.
// Chunks are created in a batch per document, linked after the full ordered
// set is known, and never mutated afterward.
type Chunk struct {
	// Identification
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	SourceFileID string `json:"source_file_id,omitempty"`
	FileName     string `json:"file_name,omitempty"`

	// Content
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`

	// Structure
	Position       int       `json:"position"` // 0-based, contiguous per document
	HeadingPath    []string  `json:"heading_path,omitempty"`
	HierarchyLevel int       `json:"hierarchy_level"`
	ChunkType      ChunkType `json:"chunk_type"`

	// Derived semantics
	SemanticDensity float64  `json:"semantic_density"`
	TopicKeywords   []string `json:"topic_keywords,omitempty"`

	// Overlap with sequential neighbors. OverlapText is the tail of the
	// previous chunk, stored separately so content fields alone still
	// reassemble the document.
	HasOverlapPrevious bool   `json:"has_overlap_previous"`
	HasOverlapNext     bool   `json:"has_overlap_next"`
	OverlapText        string `json:"overlap_text,omitempty"`

	// A single atomic node (table or code block) larger than max_chunk_size
	// is emitted whole and flagged instead of silently violating the bound.
	OversizeAtomic bool `json:"oversize_atomic,omitempty"`

	// Relationship links, computed once over the complete ordered set.
	PreviousChunkID string   `json:"previous_chunk_id,omitempty"`
	NextChunkID     string   `json:"next_chunk_id,omitempty"`
	SiblingChunkIDs []string `json:"sibling_chunk_ids,omitempty"`
	ChildChunkIDs   []string `json:"child_chunk_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ParentPath returns the heading path minus its last element, the path of
// the chunk's immediate parent heading.
func (c *Chunk) ParentPath() []string {
	if len(c.HeadingPath) == 0 {
		return nil
	}
	return c.HeadingPath[:len(c.HeadingPath)-1]
}

// HeadingPathKey joins the heading path into a stable string key.
// Titles are joined with a separator unlikely to appear in headings.
func (c *Chunk) HeadingPathKey() string {
	return strings.Join(c.HeadingPath, " > ")
}

// Validate performs basic integrity checks on a finalized chunk.
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if c.DocumentID == "" {
		return &ValidationError{Field: "document_id", Reason: "must not be empty"}
	}
	if c.Content == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if c.Position < 0 {
		return &ValidationError{Field: "position", Reason: "must be >= 0"}
	}
	if c.HierarchyLevel != len(c.HeadingPath) {
		return &ValidationError{Field: "hierarchy_level", Reason: "must equal heading path depth"}
	}
	return nil
}

// ChunkingResult aggregates quality metrics over one document's chunks.
// It is recomputed on every run and never persisted on its own.
type ChunkingResult struct {
	TotalChunks           int     `json:"total_chunks"`
	TotalTokens           int     `json:"total_tokens"`
	AverageChunkSize      float64 `json:"average_chunk_size"`
	SemanticCoherence     float64 `json:"semantic_coherence"`
	HierarchyPreservation float64 `json:"hierarchy_preservation"`
	OverlapEfficiency     float64 `json:"overlap_efficiency"`
}
