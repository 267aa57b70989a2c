package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkellner/chunksmith/pkg/types"
)

// SQLiteStore implements VectorStore on a local SQLite file. Chunk metadata
// is stored as JSON; vectors are stored as little-endian float32 blobs.
// With the sqlite_vec build tag similarity is computed in SQL, otherwise
// candidates are scanned and scored in Go.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	project_id  TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	document_id TEXT NOT NULL,
	position    INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	vector      BLOB NOT NULL,
	PRIMARY KEY (project_id, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(project_id, document_id);
`

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (or creates) a SQLite-backed vector store at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, projectID string, records []Record) error {
	if len(records) == 0 {
		return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: ErrEmptyBatch}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (project_id, chunk_id, document_id, position, payload, vector)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			position = excluded.position,
			payload = excluded.payload,
			vector = excluded.vector
	`)
	if err != nil {
		return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		payload, err := json.Marshal(rec.Chunk)
		if err != nil {
			return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, DocumentID: rec.Chunk.DocumentID, Err: err}
		}
		_, err = stmt.ExecContext(ctx,
			projectID, rec.Chunk.ID, rec.Chunk.DocumentID, rec.Chunk.Position,
			string(payload), serializeVector(rec.Vector))
		if err != nil {
			return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, DocumentID: rec.Chunk.DocumentID, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, projectID string, vector []float32, limit int) ([]Candidate, error) {
	if VectorExtensionAvailable {
		return s.queryOptimized(ctx, projectID, vector, limit)
	}
	return s.queryFallback(ctx, projectID, vector, limit)
}

// queryOptimized computes cosine distance at the database layer via sqlite-vec.
// vec_distance_cosine returns distance; similarity is 1 - distance.
func (s *SQLiteStore) queryOptimized(ctx context.Context, projectID string, vector []float32, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return []Candidate{}, nil
	}

	blob := serializeVector(vector)
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload, 1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM chunks
		WHERE project_id = ?
		ORDER BY similarity DESC, chunk_id ASC
		LIMIT ?
	`, blob, projectID, limit)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	results := make([]Candidate, 0, limit)
	for rows.Next() {
		var payload string
		var similarity float64
		if err := rows.Scan(&payload, &similarity); err != nil {
			return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
		}
		chunk, err := decodeChunk(payload)
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

// queryFallback scans all project vectors and scores them in Go.
// Used for purego builds where sqlite-vec is unavailable.
func (s *SQLiteStore) queryFallback(ctx context.Context, projectID string, vector []float32, limit int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, vector FROM chunks WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]scored, 0, 1000)
	for rows.Next() {
		var chunkID string
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
		}
		stored := deserializeVector(blob)
		if len(stored) != len(vector) {
			continue // dimension mismatch, skip
		}
		candidates = append(candidates, scored{chunkID: chunkID, score: CosineSimilarity(vector, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
	}

	sortScored(candidates)
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]Candidate, 0, limit)
	for _, c := range candidates[:limit] {
		chunk, err := s.GetChunk(ctx, projectID, c.chunkID)
		if err != nil {
			return nil, err
		}
		results = append(results, Candidate{Chunk: chunk, Similarity: c.score})
	}
	return results, nil
}

func (s *SQLiteStore) GetChunk(ctx context.Context, projectID, chunkID string) (*types.Chunk, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM chunks WHERE project_id = ? AND chunk_id = ?
	`, projectID, chunkID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: types.ErrNotFound}
	}
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: err}
	}
	chunk, err := decodeChunk(payload)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: err}
	}
	return chunk, nil
}

func (s *SQLiteStore) GetVector(ctx context.Context, projectID, chunkID string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT vector FROM chunks WHERE project_id = ? AND chunk_id = ?
	`, projectID, chunkID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.VectorStoreError{Op: "get_vector", ProjectID: projectID, Err: types.ErrNotFound}
	}
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_vector", ProjectID: projectID, Err: err}
	}
	return deserializeVector(blob), nil
}

func (s *SQLiteStore) GetByDocument(ctx context.Context, projectID, documentID string) ([]*types.Chunk, error) {
	return s.collectChunks(ctx, projectID, `
		SELECT payload FROM chunks
		WHERE project_id = ? AND document_id = ?
		ORDER BY position ASC
	`, projectID, documentID)
}

func (s *SQLiteStore) GetByProject(ctx context.Context, projectID string) ([]*types.Chunk, error) {
	return s.collectChunks(ctx, projectID, `
		SELECT payload FROM chunks
		WHERE project_id = ?
		ORDER BY document_id ASC, position ASC
	`, projectID)
}

func (s *SQLiteStore) collectChunks(ctx context.Context, projectID, query string, args ...interface{}) ([]*types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunks", ProjectID: projectID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var chunks []*types.Chunk
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, &types.VectorStoreError{Op: "get_chunks", ProjectID: projectID, Err: err}
		}
		chunk, err := decodeChunk(payload)
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

func (s *SQLiteStore) DeleteByDocument(ctx context.Context, projectID, documentID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM chunks WHERE project_id = ? AND document_id = ?
	`, projectID, documentID)
	if err != nil {
		return &types.VectorStoreError{Op: "delete_document", ProjectID: projectID, DocumentID: documentID, Err: err}
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE project_id = ?`, projectID)
	if err != nil {
		return &types.VectorStoreError{Op: "delete_project", ProjectID: projectID, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeChunk(payload string) (*types.Chunk, error) {
	var chunk types.Chunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, fmt.Errorf("decode chunk payload: %w", err)
	}
	return &chunk, nil
}
