package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-memory Index guarded by a read/write lock.
//
// Inserts take the write lock for the full chunk, queries take the read
// lock, so readers always observe complete chunks and concurrent inserts
// cannot corrupt concurrent reads.
type Memory struct {
	mu     sync.RWMutex
	chunks map[string]Chunk
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{chunks: make(map[string]Chunk)}
}

// Insert stores chunk, replacing any chunk with the same ID.
func (m *Memory) Insert(ctx context.Context, chunk Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if chunk.ID == "" {
		return fmt.Errorf("insert: chunk has empty ID")
	}
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("insert chunk %q: %w", chunk.ID, ErrMissingEmbedding)
	}

	// Copy the embedding so later caller mutations cannot corrupt stored
	// state observed by concurrent readers.
	stored := chunk
	stored.Embedding = append([]float32(nil), chunk.Embedding...)
	if chunk.Metadata != nil {
		stored.Metadata = make(map[string]string, len(chunk.Metadata))
		for k, v := range chunk.Metadata {
			stored.Metadata[k] = v
		}
	}

	m.mu.Lock()
	m.chunks[stored.ID] = stored
	m.mu.Unlock()
	return nil
}

// Query returns the k nearest chunks by cosine similarity.
func (m *Memory) Query(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("query with k=%d: %w", k, ErrInvalidTopK)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query: %w", ErrMissingEmbedding)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.chunks) == 0 {
		return nil, fmt.Errorf("query: %w", ErrEmptyIndex)
	}

	results := make([]Result, 0, len(m.chunks))
	for _, c := range m.chunks {
		score, err := cosineSimilarity(embedding, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("query against chunk %q: %w", c.ID, err)
		}
		results = append(results, Result{Chunk: c, Score: score})
	}

	// Descending score; ties broken by ID so ordering is deterministic.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// RemoveDocument deletes all chunks belonging to documentID.
func (m *Memory) RemoveDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

// Documents lists the stored documents ordered by ID.
func (m *Memory) Documents(ctx context.Context) ([]DocumentStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	byDoc := make(map[string]*DocumentStat)
	for _, c := range m.chunks {
		stat, ok := byDoc[c.DocumentID]
		if !ok {
			stat = &DocumentStat{ID: c.DocumentID}
			byDoc[c.DocumentID] = stat
		}
		stat.Chunks++
		if stat.Source == "" {
			stat.Source = c.Metadata["source"]
		}
	}
	m.mu.RUnlock()

	stats := make([]DocumentStat, 0, len(byDoc))
	for _, stat := range byDoc {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats, nil
}

// Count reports the number of stored chunks.
func (m *Memory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// Close is a no-op for the in-memory index.
func (*Memory) Close() error { return nil }

// cosineSimilarity computes the cosine of the angle between a and b with
// float64 accumulation for stability.
func cosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude vector")
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}
