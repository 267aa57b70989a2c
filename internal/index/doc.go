// Package index stores chunk embeddings and serves similarity search.
//
// Four VectorStore backends are provided: SQLite (default, with an
// optional sqlite-vec build for SQL-side distance computation),
// PostgreSQL with pgvector, Weaviate, and an in-memory store for tests.
// All backends report cosine similarity regardless of their native
// distance metric.
//
// ChunkIndex combines an embedding provider with a store and keeps
// document indexing atomic: chunks are embedded before any write, and
// partial writes are rolled back.
package index
