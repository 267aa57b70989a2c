// Package types provides shared type definitions for chunksmith.
//
// This package defines the domain types used across components: document
// nodes, chunks, chunking configuration and metrics, retrieval requests and
// results, and the error taxonomy.
//
// # Core Types
//
// DocumentNode represents a structural unit recovered from raw text by the
// structure parser:
//
//	node := &types.DocumentNode{
//	    Kind:  types.NodeHeading,
//	    Level: 2,
//	    Text:  "Installation",
//	}
//
// Chunk is the retrievable unit produced by the semantic chunker. It carries
// content, a token count, the heading path leading to it, and relationship
// links to its sequential, sibling, and child chunks:
//
//	chunk := &types.Chunk{
//	    DocumentID:  docID,
//	    Content:     passage,
//	    HeadingPath: []string{"Guide", "Installation"},
//	    ChunkType:   types.ChunkParagraph,
//	}
//
// # Validation
//
// ChunkingConfig enumerates every recognized chunking option and is validated
// at construction; an invalid configuration fails fast with a
// *ValidationError before any work is done:
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Retrieval
//
// RetrievalResult combines ranked chunks with scoring and timing metadata.
// Similarity scores are normalized to [0, 1], higher is better. The result
// reports the strategy that actually produced it, which may differ from the
// requested one when the retriever degrades to keyword search.
package types
