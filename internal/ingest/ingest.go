// Package ingest turns source documents into embedded chunks in the vector
// index. Ingestion is idempotent: re-ingesting a source supersedes all chunks
// previously stored for it.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ragpipe/ragpipe/internal/chunk"
	"github.com/ragpipe/ragpipe/internal/index"
	"github.com/ragpipe/ragpipe/internal/provider"
)

var (
	// ErrEmptyDocument is returned when a document contains no indexable text
	// after normalization.
	ErrEmptyDocument = errors.New("document has no indexable content")

	// ErrUnsupportedFile is returned for file types the ingestor cannot read.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrEmbeddingFailed wraps embedding provider failures during ingestion.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// IndexStore defines the storage operations the ingestor needs. Both the
// in-memory and the pgvector index satisfy it.
type IndexStore interface {
	Insert(ctx context.Context, c index.Chunk) error
	RemoveDocument(ctx context.Context, documentID string) error
}

// DefaultMaxConcurrent bounds parallel embedding calls so a large document
// does not overwhelm the embedding backend.
const DefaultMaxConcurrent = 3

// Options configures an Ingestor.
type Options struct {
	ChunkSize     int
	ChunkOverlap  int
	MaxConcurrent int
}

// Result reports what an ingestion operation did.
type Result struct {
	DocumentID   string
	ChunksAdded  int
	FilesAdded   int
	FilesSkipped int
	FilesFailed  int
	TotalSize    int64
	Duration     time.Duration
}

// Ingestor chunks, embeds, and stores documents.
type Ingestor struct {
	store               IndexStore
	embedder            provider.Embedder
	chunkOpts           chunk.Options
	maxConcurrent       int
	supportedExtensions map[string]bool
	logger              *slog.Logger
}

// New creates an Ingestor. Zero fields in opts fall back to defaults.
func New(store IndexStore, embedder provider.Embedder, opts Options, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunk.DefaultSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = chunk.DefaultOverlap
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}

	extMap := make(map[string]bool, len(defaultSupportedExtensions))
	for k, v := range defaultSupportedExtensions {
		extMap[k] = v
	}

	return &Ingestor{
		store:               store,
		embedder:            embedder,
		chunkOpts:           chunk.Options{Size: opts.ChunkSize, Overlap: opts.ChunkOverlap},
		maxConcurrent:       opts.MaxConcurrent,
		supportedExtensions: extMap,
		logger:              logger,
	}
}

// IngestText ingests raw text under the given source identifier. Any chunks
// previously stored for the same source are removed first, so the index never
// holds a mix of old and new content for one document.
func (ing *Ingestor) IngestText(ctx context.Context, source, text string, metadata map[string]string) (*Result, error) {
	start := time.Now()

	normalized := chunk.Normalize(text)
	pieces := chunk.Split(normalized, ing.chunkOpts)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("ingesting %q: %w", source, ErrEmptyDocument)
	}

	docID := DocumentID(source)

	embeddings, err := ing.embedAll(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("ingesting %q: %w", source, err)
	}

	if err := ing.store.RemoveDocument(ctx, docID); err != nil {
		return nil, fmt.Errorf("superseding document %q: %w", docID, err)
	}

	now := time.Now()
	for i, piece := range pieces {
		c := index.Chunk{
			ID:         chunkID(docID, i),
			DocumentID: docID,
			Ordinal:    i,
			Content:    piece,
			Metadata:   cloneMetadata(metadata, source),
			Embedding:  embeddings[i],
			CreatedAt:  now,
		}
		if err := ing.store.Insert(ctx, c); err != nil {
			return nil, fmt.Errorf("storing chunk %d of %q: %w", i, docID, err)
		}
	}

	ing.logger.Info("ingested document",
		"source", source, "document_id", docID, "chunks", len(pieces))

	return &Result{
		DocumentID:  docID,
		ChunksAdded: len(pieces),
		TotalSize:   int64(len(text)),
		Duration:    time.Since(start),
	}, nil
}

// embedAll embeds pieces with bounded parallelism. Order is preserved; the
// first error aborts the batch.
func (ing *Ingestor) embedAll(ctx context.Context, pieces []string) ([][]float32, error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, ing.maxConcurrent)
		errChan   = make(chan error, len(pieces))
	)

	embeddings := make([][]float32, len(pieces))

	for i := range pieces {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			embedding, err := ing.embedder.Embed(ctx, pieces[i])
			if err != nil {
				errChan <- fmt.Errorf("%w for chunk %d: %w", ErrEmbeddingFailed, i, err)
				return
			}

			mu.Lock()
			embeddings[i] = embedding
			mu.Unlock()
		}(i)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Remove deletes all chunks stored for the given source identifier.
func (ing *Ingestor) Remove(ctx context.Context, source string) error {
	return ing.store.RemoveDocument(ctx, DocumentID(source))
}

// DocumentID derives a stable document ID from a source identifier, so the
// same source always supersedes itself.
func DocumentID(source string) string {
	sum := sha256.Sum256([]byte(source))
	return "doc_" + hex.EncodeToString(sum[:16])
}

func chunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s_%04d", docID, ordinal)
}

func cloneMetadata(metadata map[string]string, source string) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["source"] = source
	return out
}
