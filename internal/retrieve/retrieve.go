// Package retrieve turns a user query into a ranked context set: it embeds
// the query, searches the vector index, filters weak matches, and re-ranks
// the survivors with a keyword-overlap signal.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/ragpipe/ragpipe/internal/index"
	"github.com/ragpipe/ragpipe/internal/provider"
)

// Searcher is the slice of the vector index the retriever needs.
type Searcher interface {
	Query(ctx context.Context, embedding []float32, k int) ([]index.Result, error)
}

const (
	// DefaultTopK is the number of chunks returned when no option overrides it.
	DefaultTopK = 5

	// DefaultMinScore filters out chunks with near-zero similarity to the
	// query. Below this the chunk is almost certainly unrelated.
	DefaultMinScore = 0.25

	// Blend weights for re-ranking. Vector similarity dominates; keyword
	// overlap breaks ties between semantically close chunks.
	vectorWeight  = 0.85
	keywordWeight = 0.15

	// oversampleFactor widens the index query so re-ranking has candidates
	// beyond the final cut.
	oversampleFactor = 2
)

type searchConfig struct {
	topK     int
	minScore float32
}

// Option configures a single Retrieve call.
type Option func(*searchConfig)

// WithTopK overrides the number of results returned.
func WithTopK(k int) Option {
	return func(cfg *searchConfig) {
		cfg.topK = k
	}
}

// WithMinScore overrides the minimum similarity threshold.
func WithMinScore(score float32) Option {
	return func(cfg *searchConfig) {
		cfg.minScore = score
	}
}

// Retriever ranks index chunks against user queries. Deterministic: the same
// index state and query always produce the same ranking.
type Retriever struct {
	index    Searcher
	embedder provider.Embedder
	defaults searchConfig
	logger   *slog.Logger
}

// New creates a Retriever. topK and minScore become the per-call defaults;
// zero values fall back to the package defaults.
func New(idx Searcher, embedder provider.Embedder, topK int, minScore float32, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Retriever{
		index:    idx,
		embedder: embedder,
		defaults: searchConfig{topK: topK, minScore: minScore},
		logger:   logger,
	}
}

// Retrieve returns up to topK chunks relevant to query, ordered by blended
// score descending. An empty result (all candidates below the threshold) is
// not an error; an empty index is.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) ([]index.Result, error) {
	cfg := r.defaults
	for _, opt := range opts {
		opt(&cfg)
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := r.index.Query(ctx, embedding, cfg.topK*oversampleFactor)
	if err != nil {
		return nil, err
	}

	queryTerms := tokenize(query)

	var results []index.Result
	for _, cand := range candidates {
		if cand.Score < cfg.minScore {
			continue
		}
		cand.Score = vectorWeight*cand.Score + keywordWeight*keywordOverlap(queryTerms, cand.Chunk.Content)
		results = append(results, cand)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > cfg.topK {
		results = results[:cfg.topK]
	}

	r.logger.Debug("retrieved context",
		"candidates", len(candidates), "returned", len(results))

	return results, nil
}

// keywordOverlap measures the fraction of query terms appearing in content.
func keywordOverlap(queryTerms []string, content string) float32 {
	if len(queryTerms) == 0 {
		return 0
	}

	contentTerms := make(map[string]bool)
	for _, term := range tokenize(content) {
		contentTerms[term] = true
	}

	matched := 0
	for _, term := range queryTerms {
		if contentTerms[term] {
			matched++
		}
	}
	return float32(matched) / float32(len(queryTerms))
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
