package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func chunkWithVector(id, docID string, vec []float32) Chunk {
	return Chunk{
		ID:         id,
		DocumentID: docID,
		Content:    "content of " + id,
		Embedding:  vec,
	}
}

func TestMemoryQueryEmptyIndex(t *testing.T) {
	m := NewMemory()
	_, err := m.Query(context.Background(), []float32{1, 0}, 3)
	if !errors.Is(err, ErrEmptyIndex) {
		t.Errorf("error = %v, want ErrEmptyIndex", err)
	}
}

func TestMemoryQueryInvalidTopK(t *testing.T) {
	m := NewMemory()
	if err := m.Insert(context.Background(), chunkWithVector("a", "doc", []float32{1, 0})); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for _, k := range []int{0, -1} {
		if _, err := m.Query(context.Background(), []float32{1, 0}, k); !errors.Is(err, ErrInvalidTopK) {
			t.Errorf("Query(k=%d) error = %v, want ErrInvalidTopK", k, err)
		}
	}
}

func TestMemoryInsertRequiresEmbedding(t *testing.T) {
	m := NewMemory()
	err := m.Insert(context.Background(), Chunk{ID: "a", DocumentID: "doc"})
	if !errors.Is(err, ErrMissingEmbedding) {
		t.Errorf("error = %v, want ErrMissingEmbedding", err)
	}
}

func TestMemoryReflexivity(t *testing.T) {
	// Querying with a chunk's own embedding must return that chunk first.
	m := NewMemory()
	ctx := context.Background()

	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.7, 0.7, 0},
		{0.1, 0.2, 0.9},
	}
	for i, v := range vectors {
		c := chunkWithVector(fmt.Sprintf("c%d", i), "doc", v)
		if err := m.Insert(ctx, c); err != nil {
			t.Fatalf("insert c%d: %v", i, err)
		}
	}

	for i, v := range vectors {
		results, err := m.Query(ctx, v, 1)
		if err != nil {
			t.Fatalf("query c%d: %v", i, err)
		}
		if len(results) != 1 {
			t.Fatalf("query c%d returned %d results", i, len(results))
		}
		if want := fmt.Sprintf("c%d", i); results[0].Chunk.ID != want {
			t.Errorf("top-1 for own embedding = %q, want %q", results[0].Chunk.ID, want)
		}
	}
}

func TestMemoryOrderingDescending(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Insert(ctx, chunkWithVector("close", "doc", []float32{1, 0.1})); err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(ctx, chunkWithVector("far", "doc", []float32{0, 1})); err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(ctx, chunkWithVector("exact", "doc", []float32{1, 0})); err != nil {
		t.Fatal(err)
	}

	results, err := m.Query(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{"exact", "close", "far"}
	for i, want := range wantOrder {
		if results[i].Chunk.ID != want {
			t.Errorf("result[%d] = %q, want %q", i, results[i].Chunk.ID, want)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending at %d: %v > %v", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestMemoryInsertIdempotentPerID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	c := chunkWithVector("a", "doc", []float32{1, 0})
	for range 3 {
		if err := m.Insert(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	n, err := m.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count after repeated insert = %d, want 1", n)
	}
}

func TestMemoryRemoveDocument(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := range 3 {
		if err := m.Insert(ctx, chunkWithVector(fmt.Sprintf("a%d", i), "keep", []float32{1, float32(i)})); err != nil {
			t.Fatal(err)
		}
		if err := m.Insert(ctx, chunkWithVector(fmt.Sprintf("b%d", i), "retire", []float32{1, float32(i)})); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.RemoveDocument(ctx, "retire"); err != nil {
		t.Fatal(err)
	}

	n, err := m.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count after remove = %d, want 3", n)
	}

	results, err := m.Query(ctx, []float32{1, 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Chunk.DocumentID == "retire" {
			t.Errorf("retired chunk %q still returned", r.Chunk.ID)
		}
	}
}

func TestMemoryQueryDimensionMismatch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Insert(ctx, chunkWithVector("a", "doc", []float32{1, 0, 0})); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Query(ctx, []float32{1, 0}, 1); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMemoryConcurrentInsertAndQuery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Seed so queries never hit the empty-index error.
	if err := m.Insert(ctx, chunkWithVector("seed", "doc", []float32{1, 0})); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := range 100 {
				c := chunkWithVector(fmt.Sprintf("w%d-%d", w, i), "doc", []float32{float32(w), float32(i + 1)})
				if err := m.Insert(ctx, c); err != nil {
					t.Errorf("insert: %v", err)
					return
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for range 100 {
				results, err := m.Query(ctx, []float32{1, 1}, 5)
				if err != nil {
					t.Errorf("query: %v", err)
					return
				}
				for _, r := range results {
					// A visible chunk must always be complete.
					if r.Chunk.ID == "" || len(r.Chunk.Embedding) == 0 {
						t.Error("query observed a partially written chunk")
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float32
		wantErr bool
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1, false},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0, false},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1, false},
		{"mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0, true},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cosineSimilarity(tt.a, tt.b)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryDocuments(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	inserts := []Chunk{
		{ID: "a_0", DocumentID: "doc_a", Content: "x", Embedding: []float32{1, 0}, Metadata: map[string]string{"source": "a.txt"}},
		{ID: "a_1", DocumentID: "doc_a", Content: "y", Embedding: []float32{0, 1}, Metadata: map[string]string{"source": "a.txt"}},
		{ID: "b_0", DocumentID: "doc_b", Content: "z", Embedding: []float32{1, 1}, Metadata: map[string]string{"source": "b.txt"}},
	}
	for _, c := range inserts {
		if err := m.Insert(ctx, c); err != nil {
			t.Fatalf("insert %s: %v", c.ID, err)
		}
	}

	stats, err := m.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	want := []DocumentStat{
		{ID: "doc_a", Source: "a.txt", Chunks: 2},
		{ID: "doc_b", Source: "b.txt", Chunks: 1},
	}
	if len(stats) != len(want) {
		t.Fatalf("Documents() returned %d stats, want %d", len(stats), len(want))
	}
	for i := range want {
		if stats[i] != want[i] {
			t.Errorf("stats[%d] = %+v, want %+v", i, stats[i], want[i])
		}
	}

	if err := m.RemoveDocument(ctx, "doc_a"); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	stats, err = m.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents() after removal error = %v", err)
	}
	if len(stats) != 1 || stats[0].ID != "doc_b" {
		t.Errorf("stats after removal = %+v, want only doc_b", stats)
	}
}
