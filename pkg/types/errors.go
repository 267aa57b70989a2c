package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports bad configuration or input. Validation fails fast;
// no partial work is performed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TokenizationError reports a failure to count tokens. It is fatal for the
// chunking call, since size accounting is meaningless without token counts.
type TokenizationError struct {
	DocumentID string
	Err        error
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("tokenization failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *TokenizationError) Unwrap() error { return e.Err }

// EmbeddingServiceError reports a failure of the external embedding provider
// (auth, quota, network) after bounded retries were exhausted.
type EmbeddingServiceError struct {
	Provider string
	Op       string
	Err      error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// VectorStoreError reports a failure of the vector store, with enough
// context for the caller to retry or degrade.
type VectorStoreError struct {
	Op         string
	ProjectID  string
	DocumentID string
	Err        error
}

func (e *VectorStoreError) Error() string {
	if e.DocumentID != "" {
		return fmt.Sprintf("vector store %s (project %s, document %s): %v", e.Op, e.ProjectID, e.DocumentID, e.Err)
	}
	return fmt.Sprintf("vector store %s (project %s): %v", e.Op, e.ProjectID, e.Err)
}

func (e *VectorStoreError) Unwrap() error { return e.Err }

// RetrievalServiceError wraps an embedding or store failure encountered
// while serving a query.
type RetrievalServiceError struct {
	Strategy  RetrievalStrategy
	ProjectID string
	Err       error
}

func (e *RetrievalServiceError) Error() string {
	return fmt.Sprintf("retrieval (strategy %s, project %s): %v", e.Strategy, e.ProjectID, e.Err)
}

func (e *RetrievalServiceError) Unwrap() error { return e.Err }
