// Package rag implements retrieval-augmented generation over the chunk index.
//
// Engine is the pipeline's single entry to the knowledge base: it splits
// documents into chunks, ingests them through knowledge.Store, and assembles
// token-budgeted context strings for agents. Retrieval failures degrade to
// empty results so a flaky index never aborts a pipeline run.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rajarajane97/mastt/internal/chunk"
	"github.com/rajarajane97/mastt/internal/knowledge"
	"github.com/rajarajane97/mastt/internal/log"
)

// Document is one source document to ingest.
type Document struct {
	// Text is the full document content. Empty or whitespace-only text is
	// skipped during ingestion.
	Text string `json:"text"`

	// Source identifies the document (file path, page title). Chunk IDs are
	// derived from it, so re-ingesting the same source replaces its chunks.
	Source string `json:"source"`

	// SourceType categorizes the document (knowledge.SourceType* constants).
	SourceType string `json:"type"`

	// Metadata is carried onto every chunk of the document.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult is one retrieval hit.
type SearchResult struct {
	Text       string
	Source     string
	SourceType string
	Metadata   map[string]string
	Distance   float32
}

// Stats summarizes the index contents.
type Stats struct {
	TotalChunks  int64            `json:"total_chunks"`
	BySourceType map[string]int64 `json:"by_source_type"`
}

// TokenEstimator estimates the token cost of a text for context budgeting.
// Estimates only need to be monotone in text length, not exact.
type TokenEstimator interface {
	Estimate(text string) int
}

// EstimatorFunc adapts a function to the TokenEstimator interface.
type EstimatorFunc func(text string) int

func (f EstimatorFunc) Estimate(text string) int { return f(text) }

// CharEstimator approximates tokens as len/4, the usual bytes-per-token rule
// of thumb for English prose. It is the default when no estimator is set.
var CharEstimator TokenEstimator = EstimatorFunc(func(text string) int {
	return len(text) / 4
})

// candidateCount is how many hits ContextForAgent retrieves before applying
// the token budget.
const candidateCount = 10

// Store is the chunk index the engine runs on. *knowledge.Store satisfies it.
type Store interface {
	Add(ctx context.Context, chunks []knowledge.Chunk) error
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
	DeleteBySource(ctx context.Context, source string) (int64, error)
	Count(ctx context.Context, sourceType string) (int64, error)
	SourceTypeCounts(ctx context.Context) (map[string]int64, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenEstimator replaces the default CharEstimator.
func WithTokenEstimator(e TokenEstimator) Option {
	return func(en *Engine) {
		if e != nil {
			en.estimator = e
		}
	}
}

// Engine ties the splitter and the chunk store into the ingestion and
// retrieval operations the pipeline uses.
type Engine struct {
	store     Store
	splitter  *chunk.Splitter
	estimator TokenEstimator
	logger    log.Logger
}

// New creates an Engine. A nil logger falls back to a no-op logger.
func New(store Store, splitter *chunk.Splitter, logger log.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	e := &Engine{
		store:     store,
		splitter:  splitter,
		estimator: CharEstimator,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddDocuments splits and ingests documents, returning the number of chunks
// indexed. Documents with empty text are skipped. Each document's previous
// chunks are deleted before its new ones are inserted, so re-ingesting a
// shrunken source cannot leave stale chunks behind.
//
// On failure AddDocuments returns 0 and logs the error instead of
// propagating it: ingestion is best-effort and the pipeline continues with
// whatever context the index holds.
func (e *Engine) AddDocuments(ctx context.Context, docs []Document) int {
	var chunks []knowledge.Chunk
	sources := make(map[string]struct{})

	for _, doc := range docs {
		pieces := e.splitter.Split(doc.Text)
		if len(pieces) == 0 {
			e.logger.Warn("skipping empty document", "source", doc.Source)
			continue
		}
		sources[doc.Source] = struct{}{}
		for i, text := range pieces {
			chunks = append(chunks, knowledge.Chunk{
				ID:         fmt.Sprintf("%s_%d", doc.Source, i),
				Content:    text,
				Source:     doc.Source,
				SourceType: doc.SourceType,
				Index:      i,
				Total:      len(pieces),
				Metadata:   doc.Metadata,
			})
		}
	}
	if len(chunks) == 0 {
		return 0
	}

	for source := range sources {
		if _, err := e.store.DeleteBySource(ctx, source); err != nil {
			e.logger.Error("failed to clear previous chunks", "source", source, "error", err)
			return 0
		}
	}

	if err := e.store.Add(ctx, chunks); err != nil {
		e.logger.Error("failed to add documents", "chunks", len(chunks), "error", err)
		return 0
	}

	e.logger.Info("documents indexed", "documents", len(sources), "chunks", len(chunks))
	return len(chunks)
}

// Query retrieves the topK nearest chunks, optionally restricted to one
// source type (empty string = all). Retrieval errors are logged and an empty
// slice is returned; callers never branch on a query failure.
func (e *Engine) Query(ctx context.Context, query string, topK int, sourceType string) []SearchResult {
	opts := []knowledge.SearchOption{knowledge.WithTopK(topK)}
	if sourceType != "" {
		opts = append(opts, knowledge.WithSourceType(sourceType))
	}

	hits, err := e.store.Search(ctx, query, opts...)
	if err != nil {
		e.logger.Error("knowledge query failed", "query", query, "error", err)
		return []SearchResult{}
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{
			Text:       h.Chunk.Content,
			Source:     h.Chunk.Source,
			SourceType: h.Chunk.SourceType,
			Metadata:   h.Chunk.Metadata,
			Distance:   h.Distance,
		}
	}
	return results
}

// ContextForAgent retrieves candidates for query and assembles them into a
// single context string within maxTokens. Results are taken in relevance
// order; a block that would push the estimate past the budget stops
// assembly — blocks are dropped whole, never truncated mid-text.
//
// Each block reads
//
//	[Source: path/to/doc]
//	chunk text
//
// and blocks are joined with a "---" separator line.
func (e *Engine) ContextForAgent(ctx context.Context, query, sourceType string, maxTokens int) string {
	results := e.Query(ctx, query, candidateCount, sourceType)
	if len(results) == 0 {
		return ""
	}

	var blocks []string
	used := 0
	for _, r := range results {
		block := fmt.Sprintf("[Source: %s]\n%s\n", r.Source, r.Text)
		cost := e.estimator.Estimate(block)
		if used+cost > maxTokens {
			break
		}
		blocks = append(blocks, block)
		used += cost
	}

	return strings.Join(blocks, "\n---\n")
}

// Stats reports the current index contents.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	total, err := e.store.Count(ctx, "")
	if err != nil {
		return Stats{}, fmt.Errorf("counting chunks: %w", err)
	}
	byType, err := e.store.SourceTypeCounts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("counting chunks by source type: %w", err)
	}
	return Stats{TotalChunks: total, BySourceType: byType}, nil
}
