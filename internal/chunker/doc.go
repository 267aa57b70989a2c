// Package chunker converts parsed document trees into retrievable,
// size-bounded chunks.
//
// The chunker walks the tree in source order, packing node text greedily
// under a token budget. Cuts happen at structural boundaries: top-level
// section starts (when respect_section_boundaries is set), node boundaries
// once the buffer passes the target size, and hard-max overflows. Tables
// and code blocks are atomic; one that alone exceeds the maximum is emitted
// whole and flagged rather than split or dropped.
//
// # Basic Usage
//
//	c := chunker.New()
//	chunks, result, err := c.Chunk(tree, chunker.Request{DocumentID: docID}, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d chunks, coherence %.2f\n", result.TotalChunks, result.SemanticCoherence)
//
// # Relationships
//
// After packing, chunks are linked over the complete ordered set:
// previous/next follow sequence order, siblings share the same immediate
// parent heading, and children extend a chunk's heading path by exactly one
// level. Adjacent chunks additionally share an overlap tail, stored on the
// successor's OverlapText rather than merged into content, so the original
// document reassembles from content fields alone.
//
// # Determinism
//
// Chunking the same (text, config) pair twice yields identical boundaries,
// content, and metrics. Chunk IDs are opaque and freshly generated per run.
package chunker
