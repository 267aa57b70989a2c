package chunker

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dkellner/chunksmith/pkg/types"
)

// Chunker converts a parsed node tree into size-bounded, overlap-aware,
// relationship-linked chunks. Chunking is synchronous, deterministic for a
// given input and config, and needs no network access.
type Chunker struct {
	tokens TokenCounter
}

// New creates a Chunker with the heuristic token counter.
func New() *Chunker {
	return &Chunker{tokens: HeuristicCounter{}}
}

// NewWithCounter creates a Chunker with a custom token counter.
func NewWithCounter(tc TokenCounter) *Chunker {
	return &Chunker{tokens: tc}
}

// Request identifies the document being chunked.
type Request struct {
	DocumentID   string
	SourceFileID string
	FileName     string
}

// piece is one traversal unit: a heading line or a leaf node's text, with
// the heading path in effect where it appears.
type piece struct {
	text         string
	kind         types.NodeKind
	tokens       int
	path         []string
	atomic       bool
	sectionStart bool // heading directly under the document root
}

// draft is a chunk before identity, links, and overlap are assigned.
type draft struct {
	pieces   []piece
	tokens   int
	path     []string
	oversize bool
}

// Chunk walks the tree in source order and packs node text into chunks
// honoring the configured boundary policy. The returned chunks are fully
// linked; the result aggregates quality metrics over them.
//
// An invalid config fails fast with *types.ValidationError. A token
// counting failure aborts the call with *types.TokenizationError. Empty
// input yields zero chunks and zero aggregates with no error.
func (c *Chunker) Chunk(tree *types.DocumentNode, req Request, cfg types.ChunkingConfig) ([]*types.Chunk, *types.ChunkingResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if tree == nil || len(tree.Children) == 0 {
		return []*types.Chunk{}, &types.ChunkingResult{}, nil
	}

	pieces, err := c.collectPieces(tree, req.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	if len(pieces) == 0 {
		return []*types.Chunk{}, &types.ChunkingResult{}, nil
	}

	pieces = c.normalizeOversized(pieces, cfg)
	drafts := pack(pieces, cfg)

	chunks, bodies, err := c.finalize(drafts, req, cfg)
	if err != nil {
		return nil, nil, err
	}

	linkChunks(chunks)
	overlapRatios := applyOverlap(chunks, bodies, cfg)
	result := aggregate(chunks, tree, overlapRatios)

	return chunks, result, nil
}

// collectPieces flattens the tree pre-order into traversal units, tracking
// the heading path. Heading pieces carry the path including themselves.
func (c *Chunker) collectPieces(root *types.DocumentNode, docID string) ([]piece, error) {
	var pieces []piece
	var path []string

	var visit func(n *types.DocumentNode, topLevel bool) error
	visit = func(n *types.DocumentNode, topLevel bool) error {
		if n.Kind == types.NodeHeading {
			path = append(path, n.Text)
			line := headingLine(n)
			tok, err := c.tokens.Count(line)
			if err != nil {
				return &types.TokenizationError{DocumentID: docID, Err: err}
			}
			pieces = append(pieces, piece{
				text:         line,
				kind:         types.NodeHeading,
				tokens:       tok,
				path:         snapshot(path),
				sectionStart: topLevel,
			})
			for _, child := range n.Children {
				if err := visit(child, false); err != nil {
					return err
				}
			}
			path = path[:len(path)-1]
			return nil
		}

		if strings.TrimSpace(n.Text) != "" {
			tok, err := c.tokens.Count(n.Text)
			if err != nil {
				return &types.TokenizationError{DocumentID: docID, Err: err}
			}
			pieces = append(pieces, piece{
				text:   n.Text,
				kind:   n.Kind,
				tokens: tok,
				path:   snapshot(path),
				atomic: n.IsAtomic(),
			})
		}
		for _, child := range n.Children {
			if err := visit(child, false); err != nil {
				return err
			}
		}
		return nil
	}

	for _, child := range root.Children {
		if err := visit(child, child.Kind == types.NodeHeading); err != nil {
			return nil, err
		}
	}
	return pieces, nil
}

// headingReserve is the token cost the heading-context prefix adds when a
// chunk is assembled. Packing budgets against the reduced limit so the
// finished chunk stays within the hard max after the prefix lands.
func headingReserve(path []string, cfg types.ChunkingConfig) int {
	if !cfg.IncludeHeadingContext || len(path) == 0 {
		return 0
	}
	return estimateWords(strings.Join(path, " > "))
}

// packLimit is the effective hard max for a piece's buffer, never below the
// minimum so packing stays possible under pathologically deep paths.
func packLimit(path []string, cfg types.ChunkingConfig) int {
	limit := cfg.MaxChunkSize - headingReserve(path, cfg)
	if limit < cfg.MinChunkSize {
		limit = cfg.MinChunkSize
	}
	return limit
}

// normalizeOversized splits non-atomic pieces larger than their effective
// hard limit into target-sized parts. Atomic pieces (tables, code blocks)
// pass through whole and are flagged later.
func (c *Chunker) normalizeOversized(pieces []piece, cfg types.ChunkingConfig) []piece {
	out := make([]piece, 0, len(pieces))
	for _, p := range pieces {
		limit := packLimit(p.path, cfg)
		if p.tokens <= limit || p.atomic {
			out = append(out, p)
			continue
		}
		for _, part := range splitBySentences(p.text, min(cfg.TargetChunkSize, limit)) {
			out = append(out, piece{
				text:   part,
				kind:   p.kind,
				tokens: estimateWords(part),
				path:   p.path,
			})
		}
	}
	return out
}

// pack runs the greedy cut policy over the normalized piece stream.
//
// Cut precedence, checked before each piece is added:
//  1. a top-level section start forces a cut when respect_section_boundaries
//     is set, unless the buffer is still under min_chunk_size (a tiny chunk
//     is worse than a blurred section edge);
//  2. a piece that would push the buffer past the hard limit (max minus
//     the heading-prefix reserve) cuts at the node boundary; the cut moves
//     mid-piece when semantic boundaries are not preferred, or when a
//     boundary cut would strand the buffer under min_chunk_size;
//  3. a buffer already at or past target_chunk_size cuts eagerly at the
//     next boundary rather than waiting for the hard max.
func pack(pieces []piece, cfg types.ChunkingConfig) []draft {
	var drafts []draft
	var cur draft

	flush := func() {
		if len(cur.pieces) > 0 {
			drafts = append(drafts, cur)
			cur = draft{}
		}
	}
	add := func(p piece) {
		cur.pieces = append(cur.pieces, p)
		cur.tokens += p.tokens
		cur.path = p.path
	}

	queue := make([]piece, len(pieces))
	copy(queue, pieces)

	for i := 0; i < len(queue); i++ {
		p := queue[i]
		limit := packLimit(p.path, cfg)

		// An atomic node alone larger than the hard max becomes its own
		// flagged chunk; it cannot be split.
		if p.tokens > limit {
			flush()
			drafts = append(drafts, draft{
				pieces:   []piece{p},
				tokens:   p.tokens,
				path:     p.path,
				oversize: true,
			})
			continue
		}

		if len(cur.pieces) > 0 {
			switch {
			case cfg.RespectSectionBoundaries && p.sectionStart:
				if cur.tokens >= cfg.MinChunkSize {
					flush()
				}
			case cur.tokens+p.tokens > limit:
				// Splitting mid-piece is allowed when semantic boundaries
				// are not preferred, and forced when cutting at the node
				// boundary would strand the buffer under the minimum.
				if !p.atomic && (!cfg.PreferSemanticBoundaries || cur.tokens < cfg.MinChunkSize) {
					// Fill the buffer mid-piece, re-queue the remainder.
					fill := limit - cur.tokens
					parts := splitBySentences(p.text, fill)
					if len(parts) > 1 {
						rest := make([]piece, 0, len(parts)-1)
						for _, part := range parts[1:] {
							rest = append(rest, piece{
								text:   part,
								kind:   p.kind,
								tokens: estimateWords(part),
								path:   p.path,
							})
						}
						queue = append(queue[:i+1], append(rest, queue[i+1:]...)...)
						p = piece{text: parts[0], kind: p.kind, tokens: estimateWords(parts[0]), path: p.path}
					}
				}
				if cur.tokens+p.tokens > limit {
					flush()
				}
			case cur.tokens >= cfg.TargetChunkSize:
				flush()
			}
		}

		add(p)
	}
	flush()

	return drafts
}

// finalize turns drafts into chunks with identity, content, and derived
// metrics. Returned bodies hold each chunk's content without the heading
// context prefix; overlap tails are taken from them.
func (c *Chunker) finalize(drafts []draft, req Request, cfg types.ChunkingConfig) ([]*types.Chunk, []string, error) {
	now := time.Now().UTC()
	chunks := make([]*types.Chunk, 0, len(drafts))
	bodies := make([]string, 0, len(drafts))

	for i, d := range drafts {
		parts := make([]string, 0, len(d.pieces))
		for _, p := range d.pieces {
			parts = append(parts, p.text)
		}
		body := strings.Join(parts, "\n\n")

		content := body
		tokens := d.tokens
		if cfg.IncludeHeadingContext && len(d.path) > 0 {
			prefix := strings.Join(d.path, " > ")
			content = prefix + "\n\n" + body
			ptok, err := c.tokens.Count(prefix)
			if err != nil {
				return nil, nil, &types.TokenizationError{DocumentID: req.DocumentID, Err: err}
			}
			tokens += ptok
		}

		chunks = append(chunks, &types.Chunk{
			ID:              uuid.NewString(),
			DocumentID:      req.DocumentID,
			SourceFileID:    req.SourceFileID,
			FileName:        req.FileName,
			Content:         content,
			Tokens:          tokens,
			Position:        i,
			HeadingPath:     d.path,
			HierarchyLevel:  len(d.path),
			ChunkType:       dominantKind(d.pieces),
			SemanticDensity: semanticDensity(body),
			TopicKeywords:   topicKeywords(body, TopicKeywordCount),
			OversizeAtomic:  d.oversize,
			CreatedAt:       now,
		})
		bodies = append(bodies, body)
	}

	return chunks, bodies, nil
}

// linkChunks wires prev/next, sibling, and child relationships over the
// complete ordered set. Links are only valid once every chunk exists, which
// is why this runs after packing and never incrementally.
func linkChunks(chunks []*types.Chunk) {
	byParent := make(map[string][]*types.Chunk)
	for _, ch := range chunks {
		key := strings.Join(ch.ParentPath(), " > ")
		byParent[key] = append(byParent[key], ch)
	}

	for i, ch := range chunks {
		if i > 0 {
			ch.PreviousChunkID = chunks[i-1].ID
		}
		if i < len(chunks)-1 {
			ch.NextChunkID = chunks[i+1].ID
		}

		for _, sib := range byParent[strings.Join(ch.ParentPath(), " > ")] {
			if sib.ID != ch.ID {
				ch.SiblingChunkIDs = append(ch.SiblingChunkIDs, sib.ID)
			}
		}

		// Children extend this chunk's heading path by exactly one level.
		for _, other := range chunks {
			if other.HierarchyLevel == ch.HierarchyLevel+1 && pathHasPrefix(other.HeadingPath, ch.HeadingPath) {
				ch.ChildChunkIDs = append(ch.ChildChunkIDs, other.ID)
			}
		}
	}
}

// applyOverlap copies the trailing overlap-sized text of each chunk into
// its successor's OverlapText. The tail stays out of Content so the
// document reassembles from content fields alone. Returns the per-pair
// achieved/requested ratios for the efficiency metric.
func applyOverlap(chunks []*types.Chunk, bodies []string, cfg types.ChunkingConfig) []float64 {
	if len(chunks) < 2 {
		return nil
	}
	requested := cfg.TargetChunkSize * cfg.OverlapPercentage / 100
	if requested <= 0 {
		return nil
	}

	ratios := make([]float64, 0, len(chunks)-1)
	for i := 0; i < len(chunks)-1; i++ {
		tail := tailByTokens(bodies[i], requested)
		actual := estimateWords(tail)
		if tail != "" {
			chunks[i].HasOverlapNext = true
			chunks[i+1].HasOverlapPrevious = true
			chunks[i+1].OverlapText = tail
		}
		ratio := float64(actual) / float64(requested)
		if ratio > 1 {
			ratio = 1
		}
		ratios = append(ratios, ratio)
	}
	return ratios
}

// aggregate computes the document-level metrics over a finished chunk set.
func aggregate(chunks []*types.Chunk, tree *types.DocumentNode, overlapRatios []float64) *types.ChunkingResult {
	result := &types.ChunkingResult{TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		return result
	}

	valid := headingChains(tree)
	var densitySum float64
	preserved := 0
	for _, ch := range chunks {
		result.TotalTokens += ch.Tokens
		densitySum += ch.SemanticDensity
		if len(ch.HeadingPath) == 0 || valid[ch.HeadingPathKey()] {
			preserved++
		}
	}

	result.AverageChunkSize = float64(result.TotalTokens) / float64(len(chunks))
	result.SemanticCoherence = densitySum / float64(len(chunks))
	result.HierarchyPreservation = float64(preserved) / float64(len(chunks))

	if len(overlapRatios) == 0 {
		result.OverlapEfficiency = 1
	} else {
		var sum float64
		for _, r := range overlapRatios {
			sum += r
		}
		result.OverlapEfficiency = sum / float64(len(overlapRatios))
	}
	return result
}

// headingChains collects every ancestor heading chain present in the tree,
// keyed the same way chunks key their heading paths.
func headingChains(tree *types.DocumentNode) map[string]bool {
	chains := make(map[string]bool)
	var path []string
	var visit func(n *types.DocumentNode)
	visit = func(n *types.DocumentNode) {
		if n.Kind == types.NodeHeading {
			path = append(path, n.Text)
			chains[strings.Join(path, " > ")] = true
		}
		for _, child := range n.Children {
			visit(child)
		}
		if n.Kind == types.NodeHeading {
			path = path[:len(path)-1]
		}
	}
	for _, child := range tree.Children {
		visit(child)
	}
	return chains
}

// dominantKind maps the buffer's content to a chunk type. Headings don't
// vote unless the chunk is nothing but headings; a kind must hold a strict
// majority of the remaining tokens, otherwise the chunk is mixed.
func dominantKind(pieces []piece) types.ChunkType {
	tally := make(map[types.NodeKind]int)
	total := 0
	for _, p := range pieces {
		if p.kind == types.NodeHeading {
			continue
		}
		tally[p.kind] += p.tokens
		total += p.tokens
	}
	if total == 0 {
		return types.ChunkHeading
	}

	var best types.NodeKind
	bestTokens := -1
	for kind, tok := range tally {
		if tok > bestTokens || (tok == bestTokens && kind < best) {
			best, bestTokens = kind, tok
		}
	}
	if bestTokens*2 <= total {
		return types.ChunkMixed
	}
	switch best {
	case types.NodeList:
		return types.ChunkList
	case types.NodeTable:
		return types.ChunkTable
	case types.NodeCode:
		return types.ChunkCode
	case types.NodeParagraph:
		return types.ChunkParagraph
	}
	return types.ChunkMixed
}

func headingLine(n *types.DocumentNode) string {
	level := n.Level
	if level < 1 {
		level = 1
	} else if level > 6 {
		level = 6
	}
	return fmt.Sprintf("%s %s", strings.Repeat("#", level), n.Text)
}

func snapshot(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	out := make([]string, len(path))
	copy(out, path)
	return out
}

func pathHasPrefix(path, prefix []string) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}
