package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/dkellner/chunksmith/pkg/types"
)

const (
	weaviateClass     = "DocumentChunk"
	weaviateBatchSize = 200
	weaviateMaxFetch  = 10000
)

var weaviateClassObject = &models.Class{
	Class: weaviateClass,
	Properties: []*models.Property{
		{Name: "projectId", DataType: []string{"text"}},
		{Name: "documentId", DataType: []string{"text"}},
		{Name: "position", DataType: []string{"int"}},
		{Name: "payload", DataType: []string{"text"}},
	},
	Vectorizer:      "none",
	VectorIndexType: "hnsw",
}

// WeaviateConfig configures the Weaviate-backed vector store
type WeaviateConfig struct {
	Host   string // e.g. http://localhost:8080
	APIKey string // optional
}

// WeaviateStore implements VectorStore against a Weaviate instance.
// Vectors are provided externally (vectorizer "none"); chunk metadata
// travels as a JSON payload property.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore connects to Weaviate and ensures the chunk class exists
func NewWeaviateStore(cfg WeaviateConfig) (*WeaviateStore, error) {
	scheme := "http"
	if strings.HasPrefix(cfg.Host, "https") {
		scheme = "https"
	}
	host := strings.TrimPrefix(strings.TrimPrefix(cfg.Host, scheme+"://"), "://")

	wcfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}

	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	schema, err := client.Schema().Getter().Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}

	hasClass := false
	for _, class := range schema.Classes {
		if class.Class == weaviateClass {
			hasClass = true
			break
		}
	}
	if !hasClass {
		if err := client.Schema().ClassCreator().WithClass(weaviateClassObject).Do(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create %s class: %w", weaviateClass, err)
		}
	}

	return &WeaviateStore{client: client}, nil
}

func (w *WeaviateStore) Upsert(ctx context.Context, projectID string, records []Record) error {
	if len(records) == 0 {
		return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: ErrEmptyBatch}
	}

	for i := 0; i < len(records); i += weaviateBatchSize {
		end := i + weaviateBatchSize
		if end > len(records) {
			end = len(records)
		}

		batcher := w.client.Batch().ObjectsBatcher()
		for _, rec := range records[i:end] {
			payload, err := json.Marshal(rec.Chunk)
			if err != nil {
				return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, DocumentID: rec.Chunk.DocumentID, Err: err}
			}
			// Batch import with an explicit ID overwrites existing objects,
			// giving upsert semantics.
			batcher = batcher.WithObjects(&models.Object{
				ID:    strfmt.UUID(rec.Chunk.ID),
				Class: weaviateClass,
				Properties: map[string]interface{}{
					"projectId":  projectID,
					"documentId": rec.Chunk.DocumentID,
					"position":   rec.Chunk.Position,
					"payload":    string(payload),
				},
				Vector: rec.Vector,
			})
		}

		if _, err := batcher.Do(ctx); err != nil {
			return &types.VectorStoreError{Op: "upsert", ProjectID: projectID, Err: fmt.Errorf("batch %d-%d: %w", i, end, err)}
		}
	}
	return nil
}

func (w *WeaviateStore) Query(ctx context.Context, projectID string, vector []float32, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return []Candidate{}, nil
	}

	fields := []graphql.Field{
		{Name: "payload"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}, {Name: "id"}}},
	}
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	where := filters.Where().
		WithPath([]string{"projectId"}).
		WithOperator(filters.Equal).
		WithValueText(projectID)

	result, err := w.client.GraphQL().Get().
		WithClassName(weaviateClass).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
	}
	if len(result.Errors) > 0 {
		return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: fmt.Errorf("graphql: %s", result.Errors[0].Message)}
	}

	var candidates []Candidate
	for _, item := range w.classItems(result.Data) {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		payload, _ := obj["payload"].(string)
		chunk, err := decodeChunk(payload)
		if err != nil {
			return nil, &types.VectorStoreError{Op: "query", ProjectID: projectID, Err: err}
		}
		similarity := 0.0
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				// Weaviate reports cosine distance; similarity is 1 - distance
				similarity = 1.0 - distance
			}
		}
		candidates = append(candidates, Candidate{Chunk: chunk, Similarity: similarity})
	}
	return candidates, nil
}

func (w *WeaviateStore) GetChunk(ctx context.Context, projectID, chunkID string) (*types.Chunk, error) {
	objects, err := w.client.Data().ObjectsGetter().
		WithClassName(weaviateClass).
		WithID(chunkID).
		Do(ctx)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: err}
	}
	if len(objects) == 0 {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: types.ErrNotFound}
	}

	props, _ := objects[0].Properties.(map[string]interface{})
	if props == nil || props["projectId"] != projectID {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: types.ErrNotFound}
	}
	payload, _ := props["payload"].(string)
	chunk, err := decodeChunk(payload)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunk", ProjectID: projectID, Err: err}
	}
	return chunk, nil
}

func (w *WeaviateStore) GetVector(ctx context.Context, projectID, chunkID string) ([]float32, error) {
	objects, err := w.client.Data().ObjectsGetter().
		WithClassName(weaviateClass).
		WithID(chunkID).
		WithVector().
		Do(ctx)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_vector", ProjectID: projectID, Err: err}
	}
	if len(objects) == 0 {
		return nil, &types.VectorStoreError{Op: "get_vector", ProjectID: projectID, Err: types.ErrNotFound}
	}

	props, _ := objects[0].Properties.(map[string]interface{})
	if props == nil || props["projectId"] != projectID {
		return nil, &types.VectorStoreError{Op: "get_vector", ProjectID: projectID, Err: types.ErrNotFound}
	}
	return objects[0].Vector, nil
}

func (w *WeaviateStore) GetByDocument(ctx context.Context, projectID, documentID string) ([]*types.Chunk, error) {
	where := filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
		filters.Where().WithPath([]string{"projectId"}).WithOperator(filters.Equal).WithValueText(projectID),
		filters.Where().WithPath([]string{"documentId"}).WithOperator(filters.Equal).WithValueText(documentID),
	})
	return w.fetchChunks(ctx, projectID, where)
}

func (w *WeaviateStore) GetByProject(ctx context.Context, projectID string) ([]*types.Chunk, error) {
	where := filters.Where().
		WithPath([]string{"projectId"}).
		WithOperator(filters.Equal).
		WithValueText(projectID)
	return w.fetchChunks(ctx, projectID, where)
}

func (w *WeaviateStore) fetchChunks(ctx context.Context, projectID string, where *filters.WhereBuilder) ([]*types.Chunk, error) {
	result, err := w.client.GraphQL().Get().
		WithClassName(weaviateClass).
		WithFields(graphql.Field{Name: "payload"}).
		WithWhere(where).
		WithLimit(weaviateMaxFetch).
		Do(ctx)
	if err != nil {
		return nil, &types.VectorStoreError{Op: "get_chunks", ProjectID: projectID, Err: err}
	}
	if len(result.Errors) > 0 {
		return nil, &types.VectorStoreError{Op: "get_chunks", ProjectID: projectID, Err: fmt.Errorf("graphql: %s", result.Errors[0].Message)}
	}

	var chunks []*types.Chunk
	for _, item := range w.classItems(result.Data) {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		payload, _ := obj["payload"].(string)
		chunk, err := decodeChunk(payload)
		if err != nil {
			return nil, &types.VectorStoreError{Op: "get_chunks", ProjectID: projectID, Err: err}
		}
		chunks = append(chunks, chunk)
	}

	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].Position < chunks[j].Position
	})
	return chunks, nil
}

func (w *WeaviateStore) DeleteByDocument(ctx context.Context, projectID, documentID string) error {
	where := filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
		filters.Where().WithPath([]string{"projectId"}).WithOperator(filters.Equal).WithValueText(projectID),
		filters.Where().WithPath([]string{"documentId"}).WithOperator(filters.Equal).WithValueText(documentID),
	})

	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(weaviateClass).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return &types.VectorStoreError{Op: "delete_document", ProjectID: projectID, DocumentID: documentID, Err: err}
	}
	return nil
}

func (w *WeaviateStore) DeleteProject(ctx context.Context, projectID string) error {
	where := filters.Where().
		WithPath([]string{"projectId"}).
		WithOperator(filters.Equal).
		WithValueText(projectID)

	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(weaviateClass).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return &types.VectorStoreError{Op: "delete_project", ProjectID: projectID, Err: err}
	}
	return nil
}

func (w *WeaviateStore) Close() error {
	return nil
}

func (w *WeaviateStore) classItems(data map[string]models.JSONObject) []interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, _ := get[weaviateClass].([]interface{})
	return items
}
