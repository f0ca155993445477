// Package index stores chunk embeddings and answers nearest-neighbor
// queries.
//
// Two implementations are provided: Memory, an in-memory index for tests and
// embedded use, and Postgres, backed by PostgreSQL + pgvector. Both order
// results by descending cosine similarity with a stable tie-break on chunk
// ID, so identical index state and query always produce identical results.
package index

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for index misuse.
var (
	// ErrEmptyIndex is returned when querying an index with no chunks.
	ErrEmptyIndex = errors.New("index is empty")

	// ErrInvalidTopK is returned when query k is not positive.
	ErrInvalidTopK = errors.New("top-k must be positive")

	// ErrMissingEmbedding is returned when inserting a chunk without an
	// embedding or querying with an empty vector.
	ErrMissingEmbedding = errors.New("missing embedding vector")
)

// Chunk is an immutable span of source text with its embedding.
// Chunks are created at ingestion time and superseded, never mutated, on
// re-ingestion of their document.
type Chunk struct {
	ID         string            // stable identifier, unique per chunk
	DocumentID string            // identifies the source document
	Ordinal    int               // position within the document
	Content    string            // chunk text
	Metadata   map[string]string // source reference and friends
	Embedding  []float32         // fixed-length vector
	CreatedAt  time.Time
}

// Result pairs a chunk with its similarity score for one query.
type Result struct {
	Chunk Chunk
	Score float32 // cosine similarity, higher is closer
}

// DocumentStat summarizes one ingested document.
type DocumentStat struct {
	ID     string // document identifier
	Source string // source reference from chunk metadata, may be empty
	Chunks int    // number of stored chunks
}

// Index is the vector index consumed by the ingestor and retriever.
//
// Implementations must allow concurrent Insert and Query calls: a query
// observes a consistent snapshot of fully inserted chunks and never a
// partially written one.
type Index interface {
	// Insert adds a chunk. Idempotent per chunk ID: re-inserting an
	// existing ID replaces that chunk.
	Insert(ctx context.Context, chunk Chunk) error

	// Query returns up to k chunks ordered by descending similarity to
	// embedding. Fails with ErrEmptyIndex when no chunks are stored and
	// ErrInvalidTopK when k <= 0.
	Query(ctx context.Context, embedding []float32, k int) ([]Result, error)

	// RemoveDocument retires every chunk belonging to documentID.
	RemoveDocument(ctx context.Context, documentID string) error

	// Documents lists the stored documents ordered by ID.
	Documents(ctx context.Context) ([]DocumentStat, error)

	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the index.
	Close() error
}
