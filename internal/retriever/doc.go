// Package retriever ranks and filters stored chunks against a query.
//
// Five strategies are supported:
//
//   - semantic: vector similarity with a hard threshold
//   - hierarchical: structural filtering by heading and level, no vectors
//   - hybrid: similarity blended with heading/keyword structural relevance
//   - contextual: semantic hits expanded with positional neighbors
//   - keyword: lexical overlap only, usable without the embedding provider
//
// When the embedding or vector-store path fails (or a request times out),
// embedding-dependent strategies degrade to keyword matching and the
// result is marked accordingly. Query results are cached in an LRU with
// TTL expiry; the cache is purged on reindexing.
//
// Related walks a chunk's structural links (siblings, parent, children)
// and its vector neighborhood; BrowseStructure rebuilds a heading outline
// from stored chunk metadata.
package retriever
