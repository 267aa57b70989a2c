package index

import (
	"context"
	"sort"
	"sync"

	"github.com/dkellner/chunksmith/pkg/types"
)

// MemoryStore is an in-process VectorStore used in tests and dry runs.
// All data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]map[string]Record // projectID -> chunkID -> record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]map[string]Record),
	}
}

func (m *MemoryStore) Upsert(ctx context.Context, projectID string, records []Record) error {
	if len(records) == 0 {
		return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: ErrEmptyBatch}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	proj, ok := m.projects[projectID]
	if !ok {
		proj = make(map[string]Record)
		m.projects[projectID] = proj
	}

	for _, rec := range records {
		vec := make([]float32, len(rec.Vector))
		copy(vec, rec.Vector)
		ch := *rec.Chunk
		proj[rec.Chunk.ID] = Record{Chunk: &ch, Vector: vec}
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, projectID string, vector []float32, limit int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	proj := m.projects[projectID]
	candidates := make([]scored, 0, len(proj))
	for id, rec := range proj {
		if len(rec.Vector) != len(vector) {
			continue
		}
		candidates = append(candidates, scored{chunkID: id, score: CosineSimilarity(vector, rec.Vector)})
	}
	sortScored(candidates)

	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]Candidate, 0, limit)
	for _, c := range candidates[:limit] {
		rec := proj[c.chunkID]
		ch := *rec.Chunk
		results = append(results, Candidate{Chunk: &ch, Similarity: c.score})
	}
	return results, nil
}

func (m *MemoryStore) GetChunk(ctx context.Context, projectID, chunkID string) (*types.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.projects[projectID][chunkID]
	if !ok {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: types.ErrNotFound}
	}
	ch := *rec.Chunk
	return &ch, nil
}

func (m *MemoryStore) GetVector(ctx context.Context, projectID, chunkID string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.projects[projectID][chunkID]
	if !ok {
		return nil, &types.VectorStoreError{Op: "get_vector", ProjectID: projectID, Err: types.ErrNotFound}
	}
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	return vec, nil
}

func (m *MemoryStore) GetByDocument(ctx context.Context, projectID, documentID string) ([]*types.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chunks []*types.Chunk
	for _, rec := range m.projects[projectID] {
		if rec.Chunk.DocumentID == documentID {
			ch := *rec.Chunk
			chunks = append(chunks, &ch)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks, nil
}

func (m *MemoryStore) GetByProject(ctx context.Context, projectID string) ([]*types.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chunks []*types.Chunk
	for _, rec := range m.projects[projectID] {
		ch := *rec.Chunk
		chunks = append(chunks, &ch)
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].Position < chunks[j].Position
	})
	return chunks, nil
}

func (m *MemoryStore) DeleteByDocument(ctx context.Context, projectID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.projects[projectID] {
		if rec.Chunk.DocumentID == documentID {
			delete(m.projects[projectID], id)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteProject(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.projects, projectID)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
