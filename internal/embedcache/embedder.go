package embedcache

import (
	"context"
	"log/slog"

	"github.com/ragpipe/ragpipe/internal/provider"
)

// CachedEmbedder wraps an embedder with the cache. Cache failures degrade to
// the wrapped embedder rather than failing the call.
type CachedEmbedder struct {
	inner  provider.Embedder
	cache  *Cache
	logger *slog.Logger
}

var _ provider.Embedder = (*CachedEmbedder)(nil)

// WrapEmbedder decorates inner with cache lookups.
func WrapEmbedder(inner provider.Embedder, cache *Cache, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, cache: cache, logger: logger}
}

// Embed returns the cached vector when available, otherwise delegates to the
// wrapped embedder and stores the result.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	cached, ok, err := e.cache.Get(ctx, text)
	if err != nil {
		e.logger.Warn("embedding cache read failed", "error", err)
	} else if ok {
		return cached, nil
	}

	embedding, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Put(ctx, text, embedding); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}
	return embedding, nil
}
