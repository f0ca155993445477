package embedcache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestCache(t *testing.T, model string) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	cache, err := Open(path, model, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := cache.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return cache
}

func TestCacheMissThenHit(t *testing.T) {
	cache := openTestCache(t, "test-model")
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "hello world")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty cache")
	}

	want := []float32{0.1, -0.5, 2.25, 0}
	if err := cache.Put(ctx, "hello world", want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := cache.Get(ctx, "hello world")
	if err != nil {
		t.Fatalf("Get after Put: %v", err)
	}
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(got) != len(want) {
		t.Fatalf("got %d dims, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dim %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestCacheKeyedByModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	a, err := Open(path, "model-a", nil)
	if err != nil {
		t.Fatalf("Open model-a: %v", err)
	}
	defer a.Close()

	b, err := Open(path, "model-b", nil)
	if err != nil {
		t.Fatalf("Open model-b: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := a.Put(ctx, "same text", []float32{1, 2, 3}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, ok, err := b.Get(ctx, "same text")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("entry for model-a must not be served to model-b")
	}
}

func TestCachePutReplaces(t *testing.T) {
	cache := openTestCache(t, "test-model")
	ctx := context.Background()

	if err := cache.Put(ctx, "text", []float32{1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cache.Put(ctx, "text", []float32{2}); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, ok, err := cache.Get(ctx, "text")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got[0] != 2 {
		t.Errorf("got %f, want replaced value 2", got[0])
	}

	n, err := cache.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestCacheRejectsEmptyEmbedding(t *testing.T) {
	cache := openTestCache(t, "test-model")

	if err := cache.Put(context.Background(), "text", nil); err == nil {
		t.Error("expected error caching empty embedding")
	}
}

type countingEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vec, nil
}

func TestCachedEmbedderSkipsRepeatCalls(t *testing.T) {
	cache := openTestCache(t, "test-model")
	inner := &countingEmbedder{vec: []float32{0.5, 0.5}}
	embedder := WrapEmbedder(inner, cache, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := embedder.Embed(ctx, "repeated text")
		if err != nil {
			t.Fatalf("Embed call %d: %v", i, err)
		}
		if len(got) != 2 || got[0] != 0.5 {
			t.Fatalf("Embed call %d returned %v", i, got)
		}
	}

	if inner.calls != 1 {
		t.Errorf("inner embedder called %d times, want 1", inner.calls)
	}
}

func TestCachedEmbedderPropagatesErrors(t *testing.T) {
	cache := openTestCache(t, "test-model")
	wantErr := errors.New("upstream down")
	inner := &countingEmbedder{err: wantErr}
	embedder := WrapEmbedder(inner, cache, nil)

	_, err := embedder.Embed(context.Background(), "text")
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}
