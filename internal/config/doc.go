// Package config loads application configuration from a YAML file and
// environment variables, with sensible defaults for every setting. It
// selects the embedding provider and vector store backend and carries
// the chunking and retrieval defaults used when a request does not
// override them.
package config
