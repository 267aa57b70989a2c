// Package processor drives the ingestion pipeline: parse raw document
// text into a structure tree, chunk it, and index the chunks.
//
// ChunkDocument is the synchronous, network-free entry point for parsing
// and chunking alone. ProcessProject fans documents out across a bounded
// worker pool; each document is an atomic unit of indexing work, and
// individual failures are recorded without aborting the batch.
package processor
