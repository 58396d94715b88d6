package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGQuerier implements Querier on PostgreSQL + pgvector via pgx. The chunks
// table is created by db/migrations. All statements are parameterized; filter
// values never reach SQL as text.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a PGQuerier over an existing pool.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

// Compile-time interface check.
var _ Querier = (*PGQuerier)(nil)

const upsertChunkSQL = `
INSERT INTO chunks (id, content, source, source_type, chunk_index, total_chunks, metadata, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	content      = EXCLUDED.content,
	source       = EXCLUDED.source,
	source_type  = EXCLUDED.source_type,
	chunk_index  = EXCLUDED.chunk_index,
	total_chunks = EXCLUDED.total_chunks,
	metadata     = EXCLUDED.metadata,
	embedding    = EXCLUDED.embedding,
	created_at   = EXCLUDED.created_at`

// UpsertChunks writes the batch inside one transaction so a failed batch
// leaves the index untouched.
func (q *PGQuerier) UpsertChunks(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, q.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range rows {
			meta, err := json.Marshal(r.Chunk.Metadata)
			if err != nil {
				return fmt.Errorf("marshaling metadata for %q: %w", r.Chunk.ID, err)
			}
			batch.Queue(upsertChunkSQL,
				r.Chunk.ID,
				r.Chunk.Content,
				r.Chunk.Source,
				r.Chunk.SourceType,
				r.Chunk.Index,
				r.Chunk.Total,
				meta,
				r.Embedding,
				r.Chunk.CreatedAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

const searchSQL = `
SELECT id, content, source, source_type, chunk_index, total_chunks, metadata, created_at,
       embedding <=> $1 AS distance
FROM chunks
WHERE ($2 = '' OR source_type = $2)
ORDER BY embedding <=> $1
LIMIT $3`

// SearchChunks returns the limit nearest chunks by cosine distance.
func (q *PGQuerier) SearchChunks(ctx context.Context, embedding pgvector.Vector, sourceType string, limit int) ([]Hit, error) {
	rows, err := q.pool.Query(ctx, searchSQL, embedding, sourceType, limit)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h         Hit
			meta      []byte
			createdAt time.Time
		)
		if err := rows.Scan(
			&h.Chunk.ID,
			&h.Chunk.Content,
			&h.Chunk.Source,
			&h.Chunk.SourceType,
			&h.Chunk.Index,
			&h.Chunk.Total,
			&meta,
			&createdAt,
			&h.Distance,
		); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &h.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata for %q: %w", h.Chunk.ID, err)
			}
		}
		h.Chunk.CreatedAt = createdAt
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// DeleteBySource removes every chunk belonging to source.
func (q *PGQuerier) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tag, err := q.pool.Exec(ctx, `DELETE FROM chunks WHERE source = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountChunks counts chunks, optionally restricted to one source type.
func (q *PGQuerier) CountChunks(ctx context.Context, sourceType string) (int64, error) {
	var n int64
	err := q.pool.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE ($1 = '' OR source_type = $1)`, sourceType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// SourceTypeCounts returns the chunk count per source type.
func (q *PGQuerier) SourceTypeCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := q.pool.Query(ctx, `SELECT source_type, count(*) FROM chunks GROUP BY source_type`)
	if err != nil {
		return nil, fmt.Errorf("counting chunks by source type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			st string
			n  int64
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}
