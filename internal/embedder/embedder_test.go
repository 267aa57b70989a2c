package embedder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash_Deterministic(t *testing.T) {
	h1 := ComputeHash("hello world")
	h2 := ComputeHash("hello world")
	h3 := ComputeHash("hello there")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestCache_GetReturnsCopy(t *testing.T) {
	cache := NewCache(10)
	emb := &Embedding{
		Vector:    []float32{1, 2, 3},
		Dimension: 3,
		Provider:  ProviderMock,
		Hash:      "abc",
	}
	cache.Set("abc", emb)

	got, ok := cache.Get("abc")
	require.True(t, ok)
	got.Vector[0] = 99

	again, ok := cache.Get("abc")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])
}

func TestCache_EvictsAtCapacity(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", &Embedding{Hash: "a"})
	cache.Set("b", &Embedding{Hash: "b"})
	cache.Set("c", &Embedding{Hash: "c"})

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
}

func TestValidateRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateRequest(Request{}), ErrEmptyText)
	assert.NoError(t, ValidateRequest(Request{Text: "ok"}))
}

func TestValidateBatchRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateBatchRequest(BatchRequest{}), ErrInvalidInput)
	assert.ErrorIs(t, ValidateBatchRequest(BatchRequest{Texts: []string{"a", ""}}), ErrInvalidInput)
	assert.NoError(t, ValidateBatchRequest(BatchRequest{Texts: []string{"a", "b"}}))
}

func TestMockProvider_Deterministic(t *testing.T) {
	p, err := NewMockProvider(nil)
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	e1, err := p.Embed(ctx, Request{Text: "same text"})
	require.NoError(t, err)
	e2, err := p.Embed(ctx, Request{Text: "same text"})
	require.NoError(t, err)
	e3, err := p.Embed(ctx, Request{Text: "other text"})
	require.NoError(t, err)

	assert.Equal(t, e1.Vector, e2.Vector)
	assert.NotEqual(t, e1.Vector, e3.Vector)
	assert.Equal(t, MockDimension, e1.Dimension)
	assert.Len(t, e1.Vector, MockDimension)
}

func TestMockProvider_Batch(t *testing.T) {
	p, err := NewMockProvider(NewCache(100))
	require.NoError(t, err)
	defer p.Close()

	resp, err := p.EmbedBatch(context.Background(), BatchRequest{
		Texts: []string{"one", "two", "three"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, ProviderMock, resp.Provider)
	for _, emb := range resp.Embeddings {
		assert.Len(t, emb.Vector, MockDimension)
		assert.NotEmpty(t, emb.Hash)
	}
}

func TestMockProvider_NormalizedVectors(t *testing.T) {
	p, err := NewMockProvider(nil)
	require.NoError(t, err)
	defer p.Close()

	emb, err := p.Embed(context.Background(), Request{Text: "unit length"})
	require.NoError(t, err)

	var sum float64
	for _, v := range emb.Vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 0.001)
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}

	attempts := 0
	result, err := retryWithBackoff(context.Background(), config, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		Multiplier: 1.0,
	}

	wantErr := errors.New("permanent")
	_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
		return 0, wantErr
	})

	assert.ErrorIs(t, err, wantErr)
}

func TestRetryWithBackoff_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	config := DefaultRetryConfig()
	_, err := retryWithBackoff(ctx, config, func() (int, error) {
		return 0, errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBoltCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	disk, err := OpenBoltCache(path)
	require.NoError(t, err)
	defer disk.Close()

	emb := &Embedding{
		Vector:    []float32{0.1, 0.2, 0.3},
		Dimension: 3,
		Provider:  ProviderMock,
		Model:     "mock-embeddings",
		Hash:      "h1",
	}
	require.NoError(t, disk.Set("h1", emb))

	got, ok := disk.Get("h1")
	require.True(t, ok)
	assert.Equal(t, emb.Vector, got.Vector)
	assert.Equal(t, 1, disk.Size())

	_, ok = disk.Get("missing")
	assert.False(t, ok)
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	disk, err := OpenBoltCache(path)
	require.NoError(t, err)

	inner, err := NewMockProvider(nil)
	require.NoError(t, err)

	cached := NewCachedEmbedder(inner, disk)
	defer cached.Close()

	ctx := context.Background()
	first, err := cached.Embed(ctx, Request{Text: "alpha"})
	require.NoError(t, err)

	resp, err := cached.EmbedBatch(ctx, BatchRequest{Texts: []string{"alpha", "beta"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, first.Vector, resp.Embeddings[0].Vector)
	assert.Equal(t, 2, disk.Size())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "does-not-exist"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestNew_MockProvider(t *testing.T) {
	emb, err := New(Config{Provider: ProviderMock, CacheSize: 10})
	require.NoError(t, err)
	defer emb.Close()

	assert.Equal(t, ProviderMock, emb.Provider())
	assert.Equal(t, MockDimension, emb.Dimension())
}
