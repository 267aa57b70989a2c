package retriever

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dkellner/chunksmith/internal/index"
	"github.com/dkellner/chunksmith/pkg/types"
)

const (
	// DefaultMaxResults caps a result set when the caller does not ask for one
	DefaultMaxResults = 10
	// MaxMaxResults is the hard upper bound on max_results
	MaxMaxResults = 100
	// MaxContextWindow bounds context expansion on each side of a hit
	MaxContextWindow = 5
	// DefaultCacheTTL is how long cached query results stay valid
	DefaultCacheTTL = 1 * time.Hour

	// candidateMultiplier over-fetches similarity candidates so threshold
	// and post-filters still leave enough results to fill max_results
	candidateMultiplier = 3
)

// cacheEntry is a cached retrieval result with expiration time
type cacheEntry struct {
	result    *types.RetrievalResult
	expiresAt time.Time
}

// Retriever ranks and filters chunks against a query using one of five
// strategies. Embedding-dependent strategies degrade to keyword matching
// when the embedding or vector-store path is unavailable.
type Retriever struct {
	index    *index.ChunkIndex
	logger   *slog.Logger
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
	cacheTTL time.Duration
}

// New creates a Retriever over the given chunk index
func New(ix *index.ChunkIndex, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[[32]byte, *cacheEntry](1000)
	if err != nil {
		// Cannot happen with a positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Retriever{
		index:    ix,
		logger:   logger,
		cache:    cache,
		cacheTTL: DefaultCacheTTL,
	}
}

// SetCacheTTL overrides how long cached query results stay valid.
// Non-positive values are ignored.
func (r *Retriever) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		r.cacheTTL = ttl
	}
}

// Retrieve runs one query against a project and returns a ranked,
// optionally context-expanded result. The strategy actually used is
// reported in the result; it differs from the requested one only when
// the retriever degraded to the keyword fallback.
func (r *Retriever) Retrieve(ctx context.Context, projectID, query string, strategy types.RetrievalStrategy, opts types.RetrievalOptions) (*types.RetrievalResult, error) {
	startTime := time.Now()

	if query == "" {
		return nil, &types.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if strategy == "" {
		strategy = types.StrategySemantic
	}
	if !types.ValidStrategy(strategy) {
		return nil, &types.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", strategy)}
	}
	normalizeOptions(&opts)
	if strategy == types.StrategyContextual {
		// contextual always expands neighbors
		opts.IncludeContext = true
		if opts.ContextWindow == 0 {
			opts.ContextWindow = 1
		}
	}

	if opts.UseCache {
		if cached := r.checkCache(projectID, query, strategy, opts); cached != nil {
			cached.ProcessingTimeMS = time.Since(startTime).Milliseconds()
			return cached, nil
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	hits, err := r.runStrategy(runCtx, projectID, query, strategy, opts)
	used := strategy
	degraded := false

	if err != nil && strategy != types.StrategyKeyword && shouldDegrade(err) {
		r.logger.Warn("degrading to keyword strategy",
			"project_id", projectID,
			"strategy", string(strategy),
			"error", err)
		// The fallback must run even when the original context timed out
		hits, err = r.keyword(context.WithoutCancel(ctx), projectID, query, opts)
		used = types.StrategyKeyword
		degraded = true
	}
	if err != nil {
		return nil, &types.RetrievalServiceError{Strategy: strategy, ProjectID: projectID, Err: err}
	}

	hits = applyPostFilters(hits, opts)
	totalFound := len(hits)
	if len(hits) > opts.MaxResults {
		hits = hits[:opts.MaxResults]
	}

	if opts.IncludeContext && opts.ContextWindow > 0 {
		if err := r.attachContext(context.WithoutCancel(ctx), projectID, hits, opts.ContextWindow); err != nil {
			return nil, &types.RetrievalServiceError{Strategy: strategy, ProjectID: projectID, Err: err}
		}
	}

	result := &types.RetrievalResult{
		Chunks:             hits,
		TotalFound:         totalFound,
		ProcessingTimeMS:   time.Since(startTime).Milliseconds(),
		StrategyUsed:       used,
		Degraded:           degraded,
		AggregatedMetadata: aggregateMetadata(hits),
	}

	if opts.UseCache && len(result.Chunks) > 0 {
		r.storeInCache(projectID, query, strategy, opts, result)
	}

	return result, nil
}

func (r *Retriever) runStrategy(ctx context.Context, projectID, query string, strategy types.RetrievalStrategy, opts types.RetrievalOptions) ([]types.ScoredChunk, error) {
	switch strategy {
	case types.StrategySemantic:
		return r.semantic(ctx, projectID, query, opts)
	case types.StrategyHierarchical:
		return r.hierarchical(ctx, projectID, opts)
	case types.StrategyHybrid:
		return r.hybrid(ctx, projectID, query, opts)
	case types.StrategyContextual:
		// Context attachment happens after truncation; candidate scoring
		// is the semantic path.
		return r.semantic(ctx, projectID, query, opts)
	case types.StrategyKeyword:
		return r.keyword(ctx, projectID, query, opts)
	default:
		return nil, fmt.Errorf("unsupported strategy: %s", strategy)
	}
}

// normalizeOptions applies defaults and clamps out-of-range values
func normalizeOptions(opts *types.RetrievalOptions) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MaxResults > MaxMaxResults {
		opts.MaxResults = MaxMaxResults
	}
	if opts.SimilarityThreshold < 0 {
		opts.SimilarityThreshold = 0
	}
	if opts.SimilarityThreshold > 1 {
		opts.SimilarityThreshold = 1
	}
	if opts.ContextWindow < 0 {
		opts.ContextWindow = 0
	}
	if opts.ContextWindow > MaxContextWindow {
		opts.ContextWindow = MaxContextWindow
	}
}

// shouldDegrade reports whether a failure warrants the keyword fallback:
// external service errors and timeouts do, bad input does not.
func shouldDegrade(err error) bool {
	var embErr *types.EmbeddingServiceError
	var storeErr *types.VectorStoreError
	return errors.As(err, &embErr) ||
		errors.As(err, &storeErr) ||
		errors.Is(err, context.DeadlineExceeded)
}

// attachContext loads the context_window neighbors on each side of every
// hit, by position within the hit's own document.
func (r *Retriever) attachContext(ctx context.Context, projectID string, hits []types.ScoredChunk, window int) error {
	byDocument := make(map[string][]*types.Chunk)

	for i := range hits {
		chunk := hits[i].Chunk
		siblings, ok := byDocument[chunk.DocumentID]
		if !ok {
			var err error
			siblings, err = r.index.Store().GetByDocument(ctx, projectID, chunk.DocumentID)
			if err != nil {
				return err
			}
			byDocument[chunk.DocumentID] = siblings
		}

		var neighbors []*types.Chunk
		for _, sibling := range siblings {
			distance := sibling.Position - chunk.Position
			if distance == 0 {
				continue
			}
			if distance >= -window && distance <= window {
				neighbors = append(neighbors, sibling)
			}
		}
		hits[i].ContextChunks = neighbors
	}
	return nil
}

func aggregateMetadata(hits []types.ScoredChunk) types.RetrievalMetadata {
	meta := types.RetrievalMetadata{}
	if len(hits) == 0 {
		return meta
	}

	seen := make(map[string]bool)
	var sum float64
	for _, hit := range hits {
		sum += hit.SimilarityScore
		if !seen[hit.Chunk.DocumentID] {
			seen[hit.Chunk.DocumentID] = true
			meta.Documents = append(meta.Documents, hit.Chunk.DocumentID)
		}
	}
	meta.AverageSimilarity = sum / float64(len(hits))
	return meta
}

// checkCache returns a copy of a valid cached result, or nil
func (r *Retriever) checkCache(projectID, query string, strategy types.RetrievalStrategy, opts types.RetrievalOptions) *types.RetrievalResult {
	hash := computeQueryHash(projectID, query, strategy, opts)
	now := time.Now()

	r.cacheMu.RLock()
	entry, found := r.cache.Get(hash)
	if !found {
		r.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		r.cacheMu.RUnlock()
		r.cacheMu.Lock()
		r.cache.Remove(hash)
		r.cacheMu.Unlock()
		return nil
	}
	result := copyResult(entry.result)
	r.cacheMu.RUnlock()
	return result
}

func (r *Retriever) storeInCache(projectID, query string, strategy types.RetrievalStrategy, opts types.RetrievalOptions, result *types.RetrievalResult) {
	hash := computeQueryHash(projectID, query, strategy, opts)
	entry := &cacheEntry{
		result:    copyResult(result),
		expiresAt: time.Now().Add(r.cacheTTL),
	}
	r.cacheMu.Lock()
	r.cache.Add(hash, entry)
	r.cacheMu.Unlock()
}

// InvalidateCache drops all cached query results. Called on reindexing;
// the LRU cache cannot be filtered by project, so the whole cache goes.
func (r *Retriever) InvalidateCache() {
	r.cacheMu.Lock()
	r.cache.Purge()
	r.cacheMu.Unlock()
}

// copyResult copies the result envelope and hit slice. Chunks themselves
// are immutable after creation and are shared.
func copyResult(src *types.RetrievalResult) *types.RetrievalResult {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Chunks = make([]types.ScoredChunk, len(src.Chunks))
	copy(dst.Chunks, src.Chunks)
	dst.AggregatedMetadata.Documents = append([]string(nil), src.AggregatedMetadata.Documents...)
	return &dst
}

// computeQueryHash builds a deterministic cache key for a request
func computeQueryHash(projectID, query string, strategy types.RetrievalStrategy, opts types.RetrievalOptions) [32]byte {
	var data strings.Builder
	data.WriteString(projectID)
	data.WriteString("|")
	data.WriteString(query)
	data.WriteString("|")
	data.WriteString(string(strategy))
	data.WriteString("|")
	fmt.Fprintf(&data, "%d|%.3f|%s|%s|%s",
		opts.MaxResults, opts.SimilarityThreshold,
		opts.FilterByDocument, opts.FilterByHeading, opts.FilterByType)
	if opts.HierarchyLevel != nil {
		fmt.Fprintf(&data, "|level:%d", *opts.HierarchyLevel)
	}
	fmt.Fprintf(&data, "|%t|%d|%t", opts.IncludeContext, opts.ContextWindow, opts.BoostRecent)
	return sha256.Sum256([]byte(data.String()))
}
