package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkellner/chunksmith/pkg/types"
)

// PostgresStore implements VectorStore on PostgreSQL with the pgvector
// extension. Similarity search runs at the database layer using the
// cosine distance operator.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewPostgresStore connects to PostgreSQL and ensures the chunks table
// and ivfflat index exist. dimension fixes the vector column width and
// must match the embedding provider.
func NewPostgresStore(ctx context.Context, connStr string, dimension int) (*PostgresStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dimension)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool, dimension: dimension}
	if err := store.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (p *PostgresStore) initialize(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunks (
			project_id  TEXT NOT NULL,
			chunk_id    TEXT NOT NULL,
			document_id TEXT NOT NULL,
			position    INTEGER NOT NULL,
			payload     JSONB NOT NULL,
			embedding   vector(%d) NOT NULL,
			PRIMARY KEY (project_id, chunk_id)
		)
	`, p.dimension))
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks (project_id, document_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create document index: %w", err)
	}

	return nil
}

// vectorLiteral renders a vector in pgvector text form: [v1,v2,...]
func vectorLiteral(vector []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func parseVectorLiteral(s string) []float32 {
	s = strings.Trim(s, "[]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			continue
		}
		vector = append(vector, float32(v))
	}
	return vector
}

func (p *PostgresStore) Upsert(ctx context.Context, projectID string, records []Record) error {
	if len(records) == 0 {
		return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: ErrEmptyBatch}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rec := range records {
		if len(rec.Vector) != p.dimension {
			return &types.VectorStoreError{
				Op: "upsert", ProjectID: projectID, DocumentID: rec.Chunk.DocumentID,
				Err: fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(rec.Vector), p.dimension),
			}
		}
		payload, err := json.Marshal(rec.Chunk)
		if err != nil {
			return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, DocumentID: rec.Chunk.DocumentID, Err: err}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO chunks (project_id, chunk_id, document_id, position, payload, embedding)
			VALUES ($1, $2, $3, $4, $5, $6::vector)
			ON CONFLICT (project_id, chunk_id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				position = EXCLUDED.position,
				payload = EXCLUDED.payload,
				embedding = EXCLUDED.embedding
		`, projectID, rec.Chunk.ID, rec.Chunk.DocumentID, rec.Chunk.Position,
			string(payload), vectorLiteral(rec.Vector))
		if err != nil {
			return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, DocumentID: rec.Chunk.DocumentID, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: err}
	}
	return nil
}

func (p *PostgresStore) Query(ctx context.Context, projectID string, vector []float32, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return []Candidate{}, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT payload, 1 - (embedding <=> $1::vector) AS similarity
		FROM chunks
		WHERE project_id = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, vectorLiteral(vector), projectID, limit)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
	}
	defer rows.Close()

	results := make([]Candidate, 0, limit)
	for rows.Next() {
		var payload []byte
		var similarity float64
		if err := rows.Scan(&payload, &similarity); err != nil {
			return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
		}
		chunk, err := decodeChunk(string(payload))
		if err != nil {
			return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
		}
		results = append(results, Candidate{Chunk: chunk, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
	}
	return results, nil
}

func (p *PostgresStore) GetChunk(ctx context.Context, projectID, chunkID string) (*types.Chunk, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, `
		SELECT payload FROM chunks WHERE project_id = $1 AND chunk_id = $2
	`, projectID, chunkID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: types.ErrNotFound}
	}
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: err}
	}
	chunk, err := decodeChunk(string(payload))
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: err}
	}
	return chunk, nil
}

func (p *PostgresStore) GetVector(ctx context.Context, projectID, chunkID string) ([]float32, error) {
	var literal string
	err := p.pool.QueryRow(ctx, `
		SELECT embedding::text FROM chunks WHERE project_id = $1 AND chunk_id = $2
	`, projectID, chunkID).Scan(&literal)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &types.VectorStoreError{Op: "get_vector", ProjectID: projectID, Err: types.ErrNotFound}
	}
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_vector", ProjectID: projectID, Err: err}
	}
	return parseVectorLiteral(literal), nil
}

func (p *PostgresStore) GetByDocument(ctx context.Context, projectID, documentID string) ([]*types.Chunk, error) {
	return p.collectChunks(ctx, projectID, `
		SELECT payload FROM chunks
		WHERE project_id = $1 AND document_id = $2
		ORDER BY position ASC
	`, projectID, documentID)
}

func (p *PostgresStore) GetByProject(ctx context.Context, projectID string) ([]*types.Chunk, error) {
	return p.collectChunks(ctx, projectID, `
		SELECT payload FROM chunks
		WHERE project_id = $1
		ORDER BY document_id ASC, position ASC
	`, projectID)
}

func (p *PostgresStore) collectChunks(ctx context.Context, projectID, query string, args ...interface{}) ([]*types.Chunk, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunks", ProjectID: projectID, Err: err}
	}
	defer rows.Close()

	var chunks []*types.Chunk
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, &types.VectorStoreError{Op: "get_chunks", ProjectID: projectID, Err: err}
		}
		chunk, err := decodeChunk(string(payload))
		if err != nil {
			return nil, &types.VectorStoreError{Op: "get_chunks", ProjectID: projectID, Err: err}
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunks", ProjectID: projectID, Err: err}
	}
	return chunks, nil
}

func (p *PostgresStore) DeleteByDocument(ctx context.Context, projectID, documentID string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM chunks WHERE project_id = $1 AND document_id = $2
	`, projectID, documentID)
	if err != nil {
		return &types.VectorStoreError{Op: "delete_document", ProjectID: projectID, DocumentID: documentID, Err: err}
	}
	return nil
}

func (p *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM chunks WHERE project_id = $1`, projectID)
	if err != nil {
		return &types.VectorStoreError{Op: "delete_project", ProjectID: projectID, Err: err}
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
