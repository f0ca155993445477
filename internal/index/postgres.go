package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorDimension is the embedding width of the chunks table.
// The pgvector column is declared with this dimension in the migrations;
// embedder output must match or inserts fail.
const VectorDimension = 768

// queryTimeout bounds vector search so slow queries cannot block callers
// indefinitely.
const queryTimeout = 10 * time.Second

// Postgres is a pgvector-backed Index.
//
// Consistency comes from PostgreSQL itself: each insert is a single
// transactionally applied statement, so concurrent queries never observe a
// partially written chunk. Safe for concurrent use.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Index = (*Postgres)(nil)

// NewPostgres connects to the database at dsn and verifies the connection.
// Run Migrate against the same database before first use.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

// NewPostgresFromPool wraps an existing pool. Close still closes the pool.
func NewPostgresFromPool(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// Insert upserts chunk by ID.
func (p *Postgres) Insert(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("insert: chunk has empty ID")
	}
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("insert chunk %q: %w", chunk.ID, ErrMissingEmbedding)
	}
	if len(chunk.Embedding) != VectorDimension {
		return fmt.Errorf("insert chunk %q: embedding has %d dimensions, table expects %d",
			chunk.ID, len(chunk.Embedding), VectorDimension)
	}

	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for chunk %q: %w", chunk.ID, err)
	}

	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, content, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			ordinal = EXCLUDED.ordinal,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at
	`,
		chunk.ID,
		chunk.DocumentID,
		chunk.Ordinal,
		chunk.Content,
		metadataJSON,
		pgvector.NewVector(chunk.Embedding),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", chunk.ID, err)
	}

	p.logger.Debug("inserted chunk", "id", chunk.ID, "document_id", chunk.DocumentID)
	return nil
}

// Query returns the k nearest chunks by cosine similarity.
func (p *Postgres) Query(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("query with k=%d: %w", k, ErrInvalidTopK)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query: %w", ErrMissingEmbedding)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.pool.Query(queryCtx, `
		SELECT id, document_id, ordinal, content, metadata, created_at,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			c            Chunk
			metadataJSON []byte
			score        float64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &metadataJSON, &c.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
				p.logger.Warn("failed to parse chunk metadata", "id", c.ID, "error", err)
				c.Metadata = nil
			}
		}
		results = append(results, Result{Chunk: c, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}

	if len(results) == 0 {
		n, err := p.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("query: %w", ErrEmptyIndex)
		}
	}

	return results, nil
}

// RemoveDocument deletes all chunks belonging to documentID.
func (p *Postgres) RemoveDocument(ctx context.Context, documentID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("removing document %q: %w", documentID, err)
	}

	p.logger.Debug("removed document", "document_id", documentID, "chunks", tag.RowsAffected())
	return nil
}

// Documents lists the stored documents ordered by ID.
func (p *Postgres) Documents(ctx context.Context) ([]DocumentStat, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT document_id, COALESCE(MIN(metadata->>'source'), ''), COUNT(*)
		FROM chunks
		GROUP BY document_id
		ORDER BY document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var stats []DocumentStat
	for rows.Next() {
		var stat DocumentStat
		if err := rows.Scan(&stat.ID, &stat.Source, &stat.Chunks); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return stats, nil
}

// Count reports the number of stored chunks.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return int(n), nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
