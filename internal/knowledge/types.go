package knowledge

import "time"

// Source type constants for indexed chunks. These mirror the document
// categories produced by the collaborators and are used for per-agent
// retrieval filtering.
const (
	// SourceTypeText represents plain text documents.
	SourceTypeText = "text"

	// SourceTypeMarkdown represents markdown documents.
	SourceTypeMarkdown = "markdown"

	// SourceTypeHTML represents HTML documents (stripped to text on ingest).
	SourceTypeHTML = "html"

	// SourceTypeConfluence represents pages fetched from Confluence.
	SourceTypeConfluence = "confluence"

	// SourceTypeCode represents source and config files ingested as
	// reference material (Python, Go, JSON, YAML).
	SourceTypeCode = "code"
)

// VectorDimension is the embedding width of the chunks table. The embedder
// must be configured to produce vectors of exactly this size; see
// db/migrations for the matching column type.
const VectorDimension = 768

// Chunk is the unit of embedding and retrieval: a bounded-length segment of
// a source document. Identity is Source + "_" + Index, so re-ingesting a
// source rewrites its chunks in place. Immutable once added to the index.
type Chunk struct {
	ID         string            // "<source>_<index>"
	Content    string            // chunk text
	Source     string            // originating document identifier
	SourceType string            // one of the SourceType constants
	Index      int               // position within the source document
	Total      int               // total chunks for the source at ingest time
	Metadata   map[string]string // additional document metadata
	CreatedAt  time.Time
}

// Result is a single nearest-neighbor hit. Distance is the index's native
// cosine distance: smaller means closer. It is reported as-is, never
// renormalized.
type Result struct {
	Chunk    Chunk
	Distance float32
}

// DefaultTopK is the result limit when WithTopK is not given.
const DefaultTopK = 5

// SearchOption configures Search via functional options.
type SearchOption func(*SearchConfig)

// SearchConfig is the resolved form of a set of SearchOptions. Exported so
// alternative Store implementations and test doubles can resolve options
// with NewSearchConfig.
type SearchConfig struct {
	TopK       int
	SourceType string
}

// NewSearchConfig resolves options against the defaults.
func NewSearchConfig(opts ...SearchOption) SearchConfig {
	cfg := SearchConfig{TopK: DefaultTopK}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithTopK sets the maximum number of results. Default is DefaultTopK.
func WithTopK(k int) SearchOption {
	return func(c *SearchConfig) {
		c.TopK = k
	}
}

// WithSourceType restricts results to chunks of one source type.
func WithSourceType(t string) SearchOption {
	return func(c *SearchConfig) {
		c.SourceType = t
	}
}
