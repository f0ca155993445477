// Package genkitai adapts a configured Genkit instance to the core's
// provider.Embedder and provider.Generator interfaces.
//
// The Genkit instance and its plugins (model and embedder registration) are
// owned by the caller; this package only bridges the calls, so any provider
// Genkit supports can back the pipeline without the core knowing.
package genkitai

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/ragpipe/ragpipe/internal/provider"
)

// Embedder wraps a Genkit ai.Embedder.
type Embedder struct {
	embedder ai.Embedder
}

var _ provider.Embedder = (*Embedder)(nil)

// NewEmbedder creates an Embedder backed by e.
func NewEmbedder(e ai.Embedder) *Embedder {
	return &Embedder{embedder: e}
}

// Embed computes the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, provider.Classify("genkit.embed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, provider.Classify("genkit.embed", fmt.Errorf("empty embedding returned"))
	}
	return resp.Embeddings[0].Embedding, nil
}

// Generator wraps genkit.Generate for a fixed provider-qualified model name
// (e.g. "googleai/gemini-2.5-flash", "ollama/llama3.3").
type Generator struct {
	g         *genkit.Genkit
	modelName string
}

var _ provider.Generator = (*Generator)(nil)

// NewGenerator creates a Generator for modelName on g.
func NewGenerator(g *genkit.Genkit, modelName string) *Generator {
	return &Generator{g: g, modelName: modelName}
}

// Generate runs the conversation through genkit.Generate, forwarding
// streaming chunks to stream when it is non-nil.
func (gen *Generator) Generate(ctx context.Context, req provider.GenerateRequest, stream provider.StreamFunc) (string, error) {
	messages := make([]*ai.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = &ai.Message{
			Role:    toGenkitRole(m.Role),
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		}
	}

	opts := []ai.GenerateOption{
		ai.WithMessages(messages...),
		ai.WithModelName(gen.modelName),
	}
	if req.Temperature != 0 {
		opts = append(opts, ai.WithConfig(map[string]any{"temperature": req.Temperature}))
	}
	if stream != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			return stream(ctx, text)
		}))
	}

	resp, err := genkit.Generate(ctx, gen.g, opts...)
	if err != nil {
		return "", provider.Classify("genkit.generate", err)
	}
	return resp.Text(), nil
}

func toGenkitRole(r provider.Role) ai.Role {
	switch r {
	case provider.RoleSystem:
		return ai.RoleSystem
	case provider.RoleAssistant:
		return ai.RoleModel
	default:
		return ai.RoleUser
	}
}
