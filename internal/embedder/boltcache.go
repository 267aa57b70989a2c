package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("embeddings")

// BoltCache persists embeddings across runs keyed by content hash.
// It fronts the API providers so re-indexing unchanged documents costs nothing.
type BoltCache struct {
	db *bolt.DB
}

// OpenBoltCache opens (or creates) the on-disk embedding cache at path
func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}

	return &BoltCache{db: db}, nil
}

// Get retrieves a cached embedding by content hash
func (b *BoltCache) Get(hash string) (*Embedding, bool) {
	var emb *Embedding
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(hash))
		if raw == nil {
			return nil
		}
		var decoded Embedding
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		emb = &decoded
		return nil
	})
	if err != nil || emb == nil {
		return nil, false
	}
	return emb, true
}

// Set stores an embedding under its content hash
func (b *BoltCache) Set(hash string, emb *Embedding) error {
	raw, err := json.Marshal(emb)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(hash), raw)
	})
}

// Size returns the number of cached embeddings
func (b *BoltCache) Size() int {
	var n int
	_ = b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(boltBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the underlying database
func (b *BoltCache) Close() error {
	return b.db.Close()
}

// CachedEmbedder wraps an Embedder with a persistent BoltCache.
// Single lookups hit the disk cache first; batches consult the cache
// per text and only send misses to the wrapped provider.
type CachedEmbedder struct {
	inner Embedder
	disk  *BoltCache
}

// NewCachedEmbedder layers a persistent cache over inner
func NewCachedEmbedder(inner Embedder, disk *BoltCache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, disk: disk}
}

func (c *CachedEmbedder) Embed(ctx context.Context, req Request) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if emb, ok := c.disk.Get(hash); ok {
		return emb, nil
	}

	emb, err := c.inner.Embed(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.disk.Set(hash, emb); err != nil {
		return nil, err
	}
	return emb, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var missTexts []string
	var missIdx []int

	for i, text := range req.Texts {
		if emb, ok := c.disk.Get(ComputeHash(text)); ok {
			embeddings[i] = emb
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		resp, err := c.inner.EmbedBatch(ctx, BatchRequest{Texts: missTexts, Model: req.Model})
		if err != nil {
			return nil, err
		}
		for j, emb := range resp.Embeddings {
			embeddings[missIdx[j]] = emb
			if err := c.disk.Set(emb.Hash, emb); err != nil {
				return nil, err
			}
		}
	}

	return &BatchResponse{
		Embeddings: embeddings,
		Provider:   c.inner.Provider(),
		Model:      c.inner.Model(),
	}, nil
}

func (c *CachedEmbedder) Dimension() int   { return c.inner.Dimension() }
func (c *CachedEmbedder) Provider() string { return c.inner.Provider() }
func (c *CachedEmbedder) Model() string    { return c.inner.Model() }

func (c *CachedEmbedder) Close() error {
	if err := c.disk.Close(); err != nil {
		c.inner.Close()
		return err
	}
	return c.inner.Close()
}
