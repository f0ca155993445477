// Package pipeline is the online entry point of the RAG core: given a query
// and conversation history it retrieves context, assembles a prompt, and
// generates an answer. This is the single surface a host application embeds.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ragpipe/ragpipe/internal/index"
	"github.com/ragpipe/ragpipe/internal/prompt"
	"github.com/ragpipe/ragpipe/internal/provider"
	"github.com/ragpipe/ragpipe/internal/retrieve"
)

// ErrEmptyQuery is returned for requests with no query text.
var ErrEmptyQuery = errors.New("query is empty")

// Turn is one prior message of the conversation.
type Turn struct {
	Role    provider.Role
	Content string
}

// Request is one question against the pipeline.
type Request struct {
	Query   string
	History []Turn
}

// Answer is the pipeline's response, with the context that grounded it.
type Answer struct {
	RequestID string
	Text      string
	Context   []index.Result
	Elapsed   time.Duration
}

// Retriever is the slice of the retrieval layer the engine needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts ...retrieve.Option) ([]index.Result, error)
}

// Generator is the slice of the generation client the engine needs.
type Generator interface {
	Generate(ctx context.Context, req provider.GenerateRequest, stream provider.StreamFunc) (string, error)
}

// Engine runs the online query path. Safe for concurrent use; requests share
// no mutable state beyond the index behind the retriever.
type Engine struct {
	retriever Retriever
	assembler *prompt.Assembler
	generator Generator
	logger    *slog.Logger
}

// New creates an Engine.
func New(retriever Retriever, assembler *prompt.Assembler, generator Generator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		logger:    logger,
	}
}

// Answer runs the full pipeline and returns the complete response text.
func (e *Engine) Answer(ctx context.Context, req Request) (*Answer, error) {
	return e.run(ctx, req, nil)
}

// AnswerStream runs the full pipeline, forwarding each text increment to
// stream as it arrives. The returned Answer carries the complete text.
func (e *Engine) AnswerStream(ctx context.Context, req Request, stream provider.StreamFunc) (*Answer, error) {
	return e.run(ctx, req, stream)
}

func (e *Engine) run(ctx context.Context, req Request, stream provider.StreamFunc) (*Answer, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	requestID := uuid.NewString()
	start := time.Now()
	logger := e.logger.With("request_id", requestID)

	results, err := e.retriever.Retrieve(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", requestID, err)
	}
	logger.Debug("context retrieved", "chunks", len(results))

	history := make([]provider.Message, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, provider.Message{Role: turn.Role, Content: turn.Content})
	}

	messages, err := e.assembler.Assemble(req.Query, results, history)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", requestID, err)
	}

	text, err := e.generator.Generate(ctx, provider.GenerateRequest{Messages: messages}, stream)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", requestID, err)
	}

	elapsed := time.Since(start)
	logger.Info("answered query", "elapsed", elapsed, "context_chunks", len(results))

	return &Answer{
		RequestID: requestID,
		Text:      text,
		Context:   results,
		Elapsed:   elapsed,
	}, nil
}
