package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkellner/chunksmith/internal/chunker"
	"github.com/dkellner/chunksmith/internal/index"
	"github.com/dkellner/chunksmith/internal/parser"
	"github.com/dkellner/chunksmith/pkg/types"
)

// Document is one unit of ingestable text
type Document struct {
	ID           string
	SourceFileID string
	FileName     string
	Text         string
	HTML         bool // parse as HTML instead of markdown
}

// Config contains processor configuration
type Config struct {
	Workers  int                  // Concurrent documents (default: runtime.NumCPU())
	Chunking types.ChunkingConfig // Chunking parameters
}

// Statistics summarizes one project-wide processing run
type Statistics struct {
	DocumentsProcessed int
	DocumentsFailed    int
	ChunksCreated      int
	TokensProcessed    int64
	Duration           time.Duration
	ErrorMessages      []string
}

// Processor coordinates the ingestion pipeline: parse -> chunk -> index.
// Parsing and chunking are synchronous and deterministic; only the
// embedding and store calls block on I/O.
type Processor struct {
	parser  *parser.Parser
	chunker *chunker.Chunker
	index   *index.ChunkIndex
	logger  *slog.Logger
	workers int
}

// New creates a Processor. index may be nil for chunk-only use
// (ChunkDocument never touches it).
func New(ix *index.ChunkIndex, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		parser:  parser.New(),
		chunker: chunker.New(),
		index:   ix,
		logger:  logger,
		workers: runtime.NumCPU(),
	}
}

// ChunkDocument parses and chunks one document synchronously, with no
// network dependency. A nil config uses defaults.
func (p *Processor) ChunkDocument(text, documentID, sourceFileID, fileName string, cfg *types.ChunkingConfig) ([]*types.Chunk, *types.ChunkingResult, error) {
	config := types.DefaultChunkingConfig()
	if cfg != nil {
		config = *cfg
	}

	tree := p.parser.Parse(text)
	return p.chunker.Chunk(tree, chunker.Request{
		DocumentID:   documentID,
		SourceFileID: sourceFileID,
		FileName:     fileName,
	}, config)
}

// ProcessDocument chunks one document and indexes the result. The
// embedding batch for a document is cancellable as a unit; no partial
// chunks are stored.
func (p *Processor) ProcessDocument(ctx context.Context, projectID string, doc Document, cfg types.ChunkingConfig) (*types.ChunkingResult, error) {
	var tree *types.DocumentNode
	if doc.HTML {
		parsed, err := p.parser.ParseHTML(strings.NewReader(doc.Text))
		if err != nil {
			return nil, fmt.Errorf("parsing document %s: %w", doc.ID, err)
		}
		tree = parsed
	} else {
		tree = p.parser.Parse(doc.Text)
	}

	chunks, result, err := p.chunker.Chunk(tree, chunker.Request{
		DocumentID:   doc.ID,
		SourceFileID: doc.SourceFileID,
		FileName:     doc.FileName,
	}, cfg)
	if err != nil {
		return nil, err
	}

	if len(chunks) == 0 {
		p.logger.Debug("document produced no chunks", "document_id", doc.ID)
		return result, nil
	}

	if err := p.index.IndexDocument(ctx, projectID, chunks); err != nil {
		return nil, err
	}

	p.logger.Info("processed document",
		"project_id", projectID,
		"document_id", doc.ID,
		"chunks", result.TotalChunks,
		"tokens", result.TotalTokens)
	return result, nil
}

// ProcessProject processes documents concurrently, bounded by the worker
// limit to respect embedding-provider rate limits. A failed document is
// recorded and skipped; the rest of the batch continues.
func (p *Processor) ProcessProject(ctx context.Context, projectID string, docs []Document, config *Config) (*Statistics, error) {
	if config == nil {
		config = &Config{Chunking: types.DefaultChunkingConfig()}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = p.workers
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	var (
		processed int64
		failed    int64
		chunks    int64
		tokens    int64
		mu        sync.Mutex
	)

	semaphore := make(chan struct{}, workers)
	g, gctx := errgroup.WithContext(ctx)

	for _, doc := range docs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			result, err := p.ProcessDocument(gctx, projectID, doc, config.Chunking)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", doc.ID, err))
				mu.Unlock()
				return nil // continue with other documents
			}

			atomic.AddInt64(&processed, 1)
			atomic.AddInt64(&chunks, int64(result.TotalChunks))
			atomic.AddInt64(&tokens, int64(result.TotalTokens))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.DocumentsProcessed = int(processed)
	stats.DocumentsFailed = int(failed)
	stats.ChunksCreated = int(chunks)
	stats.TokensProcessed = tokens
	stats.Duration = time.Since(startTime)
	return stats, nil
}

// ProcessDirectory discovers ingestable files under rootPath and
// processes them as one project batch. Document IDs are the paths
// relative to rootPath.
func (p *Processor) ProcessDirectory(ctx context.Context, projectID, rootPath string, config *Config) (*Statistics, error) {
	docs, err := discoverDocuments(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to discover documents: %w", err)
	}
	return p.ProcessProject(ctx, projectID, docs, config)
}

// discoverDocuments walks rootPath collecting markdown, HTML, and plain
// text files. Hidden directories are skipped.
func discoverDocuments(rootPath string) ([]Document, error) {
	var docs []Document

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != rootPath {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		var html bool
		switch ext {
		case ".md", ".markdown", ".txt":
			html = false
		case ".html", ".htm":
			html = true
		default:
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}

		docs = append(docs, Document{
			ID:           relPath,
			SourceFileID: relPath,
			FileName:     info.Name(),
			Text:         string(raw),
			HTML:         html,
		})
		return nil
	})

	return docs, err
}

// DeleteDocument removes a document's chunks from the index
func (p *Processor) DeleteDocument(ctx context.Context, projectID, documentID string) error {
	return p.index.DeleteDocument(ctx, projectID, documentID)
}
