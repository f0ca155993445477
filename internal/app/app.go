// Package app provides application initialization and dependency wiring.
//
// App is the container the CLI commands work against: it turns a validated
// configuration into a connected set of components (provider client, vector
// index, ingestor, retriever, pipeline engine) and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ragpipe/ragpipe/internal/config"
	"github.com/ragpipe/ragpipe/internal/embedcache"
	"github.com/ragpipe/ragpipe/internal/generate"
	"github.com/ragpipe/ragpipe/internal/index"
	"github.com/ragpipe/ragpipe/internal/ingest"
	"github.com/ragpipe/ragpipe/internal/log"
	"github.com/ragpipe/ragpipe/internal/pii"
	"github.com/ragpipe/ragpipe/internal/pipeline"
	"github.com/ragpipe/ragpipe/internal/prompt"
	"github.com/ragpipe/ragpipe/internal/provider"
	"github.com/ragpipe/ragpipe/internal/provider/ollama"
	"github.com/ragpipe/ragpipe/internal/retrieve"
	"github.com/ragpipe/ragpipe/internal/summarize"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Index      index.Index
	Embedder   provider.Embedder
	Generator  *generate.Client
	Ingestor   *ingest.Ingestor
	Retriever  *retrieve.Retriever
	Assembler  *prompt.Assembler
	Engine     *pipeline.Engine
	Summarizer *summarize.Summarizer
	PII        *pii.Detector

	cache *embedcache.Cache
}

// New builds a fully wired App from cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}

	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	embedder, generator, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Embedder: embedder,
	}

	if cfg.CachePath != "" {
		cache, err := embedcache.Open(cfg.CachePath, cfg.EmbedderModel, logger)
		if err != nil {
			return nil, fmt.Errorf("opening embedding cache: %w", err)
		}
		a.cache = cache
		a.Embedder = embedcache.WrapEmbedder(embedder, cache, logger)
	}

	a.Index, err = buildIndex(ctx, cfg, logger)
	if err != nil {
		a.closePartial()
		return nil, err
	}

	a.Generator = generate.New(generator, generate.Config{
		MaxRetries: cfg.MaxRetries,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, logger)

	a.Ingestor = ingest.New(a.Index, a.Embedder, ingest.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}, logger)

	a.Retriever = retrieve.New(a.Index, a.Embedder, cfg.TopK, cfg.MinScore, logger)
	a.Assembler = prompt.New(cfg.SystemInstructions, cfg.TokenBudget, logger)
	a.Engine = pipeline.New(a.Retriever, a.Assembler, a.Generator, logger)
	a.Summarizer = summarize.New(a.Generator, logger)
	a.PII = pii.New(a.Generator, logger)

	logger.Debug("application wired",
		"provider", cfg.Provider,
		"index_backend", cfg.IndexBackend,
		"embedding_cache", cfg.CachePath != "")

	return a, nil
}

// Close releases the index and the embedding cache.
func (a *App) Close() error {
	var firstErr error
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			firstErr = err
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) closePartial() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

// buildProvider creates the embedding and generation backend from config.
// The genkit provider has no self-contained construction path (it needs a
// host-initialized genkit instance), so the CLI supports ollama; hosts that
// embed the core wire genkitai adapters directly.
func buildProvider(cfg *config.Config, logger *slog.Logger) (provider.Embedder, provider.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		client, err := ollama.New(ollama.Config{
			Host:          cfg.OllamaHost,
			EmbedModel:    cfg.EmbedderModel,
			GenerateModel: cfg.ModelName,
			Temperature:   cfg.Temperature,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating ollama client: %w", err)
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q is not constructible from configuration",
			config.ErrInvalidProvider, cfg.Provider)
	}
}

func buildIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (index.Index, error) {
	switch cfg.IndexBackend {
	case config.IndexBackendMemory:
		return index.NewMemory(), nil
	case config.IndexBackendPostgres:
		idx, err := index.NewPostgres(ctx, cfg.PostgresConnectionString(), logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres index: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidIndexBackend, cfg.IndexBackend)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
