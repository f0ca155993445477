// Package ollama adapts a self-hosted Ollama server to the core's
// provider.Embedder and provider.Generator interfaces.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"github.com/ragpipe/ragpipe/internal/provider"
)

// Config configures the Ollama adapter.
type Config struct {
	Host           string // empty = OLLAMA_HOST environment / default
	EmbedModel     string // e.g. "nomic-embed-text"
	GenerateModel  string // e.g. "llama3.1"
	Temperature    float32
	HTTPClient     *http.Client // nil = http.DefaultClient
	Logger         *slog.Logger // nil = slog.Default()
}

// Client talks to one Ollama server for both embeddings and generation.
// Safe for concurrent use.
type Client struct {
	api           *api.Client
	embedModel    string
	generateModel string
	temperature   float32
	logger        *slog.Logger
}

// Compile-time interface checks.
var (
	_ provider.Embedder  = (*Client)(nil)
	_ provider.Generator = (*Client)(nil)
)

// New creates an Ollama client. The host may be empty, in which case the
// OLLAMA_HOST environment variable (or the library default) is used.
func New(cfg Config) (*Client, error) {
	base := envconfig.Host()
	if cfg.Host != "" {
		parsed, err := url.Parse(cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("parsing ollama host %q: %w", cfg.Host, err)
		}
		base = parsed
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		api:           api.NewClient(base, httpClient),
		embedModel:    cfg.EmbedModel,
		generateModel: cfg.GenerateModel,
		temperature:   cfg.Temperature,
		logger:        logger,
	}, nil
}

// Embed computes the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  c.embedModel,
		Prompt: text,
	})
	if err != nil {
		return nil, provider.Classify("ollama.embed", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, provider.Classify("ollama.embed", fmt.Errorf("empty embedding for %d-byte input", len(text)))
	}

	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Generate runs a chat completion against the configured model. When stream
// is non-nil every response increment is forwarded to it before the full
// text is returned.
func (c *Client) Generate(ctx context.Context, req provider.GenerateRequest, stream provider.StreamFunc) (string, error) {
	messages := make([]api.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = api.Message{Role: roleName(m.Role), Content: m.Content}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	streaming := stream != nil
	chatReq := &api.ChatRequest{
		Model:    c.generateModel,
		Messages: messages,
		Stream:   &streaming,
		Options: map[string]any{
			"temperature": temperature,
		},
	}

	var full []byte
	err := c.api.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		full = append(full, resp.Message.Content...)
		if stream != nil {
			return stream(ctx, resp.Message.Content)
		}
		return nil
	})
	if err != nil {
		return "", provider.Classify("ollama.chat", err)
	}

	c.logger.Debug("ollama generation complete",
		"model", c.generateModel,
		"messages", len(messages),
		"response_bytes", len(full),
	)
	return string(full), nil
}

func roleName(r provider.Role) string {
	switch r {
	case provider.RoleSystem:
		return "system"
	case provider.RoleAssistant:
		return "assistant"
	default:
		return "user"
	}
}
