// Package embedder generates vector embeddings for chunk content.
//
// Three providers are available: OpenAI (text-embedding-3-small), a
// local Ollama server (nomic-embed-text), and a deterministic mock for
// tests and offline runs. All providers share an in-memory LRU cache
// keyed by content hash, and can be wrapped with a persistent bbolt
// cache so re-indexing unchanged documents makes no API calls.
//
// API calls are retried with exponential backoff; exhausted retries
// surface as *types.EmbeddingServiceError.
package embedder
