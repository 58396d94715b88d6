// Package knowledge implements the persistent vector index for document
// chunks.
//
// Store embeds chunk content through a Genkit ai.Embedder and persists
// vectors in PostgreSQL + pgvector. Retrieval is nearest-neighbor by cosine
// distance, optionally filtered by source type.
//
// Store depends on the consumer-defined Querier interface rather than a
// concrete database, so unit tests run against an in-memory mock and the
// pgx-backed PGQuerier is wired only in production and integration tests.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/rajarajane97/mastt/internal/log"
)

// Row is a chunk with its embedding, ready for persistence.
type Row struct {
	Chunk     Chunk
	Embedding pgvector.Vector
}

// Hit is a search row returned by the Querier. Distance is cosine distance.
type Hit struct {
	Chunk    Chunk
	Distance float32
}

// Querier defines the storage operations Store needs. Interfaces are defined
// by the consumer (like io.Reader, sql.Driver), so Store can be tested with
// a mock and backed by pgx in production.
type Querier interface {
	// UpsertChunks inserts or replaces chunks by id.
	UpsertChunks(ctx context.Context, rows []Row) error

	// SearchChunks returns the limit nearest chunks, optionally restricted
	// to sourceType (empty = unrestricted), ordered by ascending distance.
	SearchChunks(ctx context.Context, embedding pgvector.Vector, sourceType string, limit int) ([]Hit, error)

	// DeleteBySource removes every chunk of one source document.
	DeleteBySource(ctx context.Context, source string) (int64, error)

	// CountChunks counts chunks, optionally restricted to sourceType.
	CountChunks(ctx context.Context, sourceType string) (int64, error)

	// SourceTypeCounts returns the chunk count per source type.
	SourceTypeCounts(ctx context.Context) (map[string]int64, error)
}

const searchTimeout = 10 * time.Second

// DefaultEmbedBatchSize bounds how many chunks go into one embedding request.
const DefaultEmbedBatchSize = 100

// Store manages chunk persistence and vector search. Safe for concurrent use
// as long as the Querier is (pgxpool is).
type Store struct {
	queries    Querier
	embedder   ai.Embedder
	embedBatch int
	logger     log.Logger
}

// New creates a Store with the default embedding batch size. A nil logger
// falls back to a no-op logger.
func New(querier Querier, embedder ai.Embedder, logger log.Logger) *Store {
	return NewWithBatchSize(querier, embedder, DefaultEmbedBatchSize, logger)
}

// NewWithBatchSize creates a Store that embeds at most batchSize chunks per
// embedding request.
func NewWithBatchSize(querier Querier, embedder ai.Embedder, batchSize int, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	if batchSize < 1 {
		batchSize = DefaultEmbedBatchSize
	}
	return &Store{
		queries:    querier,
		embedder:   embedder,
		embedBatch: batchSize,
		logger:     logger,
	}
}

// Add embeds and upserts chunks. Embedding requests are batched to bound
// request size, but the upsert happens in one transaction only after every
// batch embedded successfully, so a failure anywhere leaves the index
// untouched — no partial insert.
func (s *Store) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := contents(chunks)
	vectors := make([]pgvector.Vector, 0, len(texts))
	for start := 0; start < len(texts); start += s.embedBatch {
		end := min(start+s.embedBatch, len(texts))
		batch, err := s.embed(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("embedding chunks %d..%d: %w", start, end-1, err)
		}
		vectors = append(vectors, batch...)
	}

	rows := make([]Row, len(chunks))
	for i, c := range chunks {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		rows[i] = Row{Chunk: c, Embedding: vectors[i]}
	}

	if err := s.queries.UpsertChunks(ctx, rows); err != nil {
		return fmt.Errorf("upserting %d chunks: %w", len(rows), err)
	}

	s.logger.Debug("chunks added", "count", len(rows))
	return nil
}

// Search performs nearest-neighbor search over the index.
//
// Example:
//
//	results, err := store.Search(ctx, "login flow requirements",
//	    knowledge.WithTopK(10),
//	    knowledge.WithSourceType(knowledge.SourceTypeConfluence))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := NewSearchConfig(opts...)

	// Bound vector search so a slow index cannot stall the pipeline.
	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vectors, err := s.embed(queryCtx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.queries.SearchChunks(queryCtx, vectors[0], cfg.SourceType, cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{Chunk: h.Chunk, Distance: h.Distance}
	}
	return results, nil
}

// DeleteBySource removes all chunks belonging to source. Returns the number
// of chunks removed. Used before re-ingesting a source so a shrunken document
// cannot leave stale chunks past its new tail.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	n, err := s.queries.DeleteBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for source %q: %w", source, err)
	}
	if n > 0 {
		s.logger.Debug("chunks deleted", "source", source, "count", n)
	}
	return n, nil
}

// Count returns the number of indexed chunks, optionally restricted to one
// source type (empty string = all).
func (s *Store) Count(ctx context.Context, sourceType string) (int64, error) {
	n, err := s.queries.CountChunks(ctx, sourceType)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// SourceTypeCounts returns the chunk count per source type.
func (s *Store) SourceTypeCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := s.queries.SourceTypeCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting chunks by source type: %w", err)
	}
	return counts, nil
}

// embed converts texts into vectors in one embedder request. The embedder is
// asked for VectorDimension-wide output to match the chunks table schema.
func (s *Store) embed(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: docs,
		Options: &genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr[int32](VectorDimension),
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([]pgvector.Vector, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at position %d", i)
		}
		vectors[i] = pgvector.NewVector(e.Embedding)
	}
	return vectors, nil
}

func contents(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
