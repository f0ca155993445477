// Package provider defines the narrow interfaces the pipeline core uses to
// talk to embedding and generation backends.
//
// The interfaces are defined here, on the consumer side, so concrete vendor
// adapters (ollama, genkit) can be substituted without changes to the core.
package provider

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a model conversation.
type Message struct {
	Role    Role
	Content string
}

// GenerateRequest carries an assembled conversation to a generation backend.
type GenerateRequest struct {
	Messages    []Message
	Temperature float32
}

// StreamFunc receives one increment of a streaming response.
// Returning an error aborts the stream and fails the generation call.
type StreamFunc func(ctx context.Context, chunk string) error

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces model output for an assembled request.
// When stream is non-nil it is invoked for each increment as it arrives;
// the complete text is returned either way.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest, stream StreamFunc) (string, error)
}
