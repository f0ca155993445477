// Package summarize produces short neutral summaries of document text.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragpipe/ragpipe/internal/chunk"
	"github.com/ragpipe/ragpipe/internal/provider"
)

// ErrEmptyInput is returned when there is no text to summarize.
var ErrEmptyInput = errors.New("no text to summarize")

// Generator is the slice of the generation client the summarizer needs.
type Generator interface {
	Generate(ctx context.Context, req provider.GenerateRequest, stream provider.StreamFunc) (string, error)
}

const systemPrompt = `You are a document and literature analysis assistant specialized in identifying important information in text documents.
Your response should be concise and focused on the most relevant information, and should not include any personal opinions or interpretations.
Your response should be written in a neutral tone, without any bias or subjective language.`

const userPromptTemplate = `### Instruction:
Your task is to analyze the following text and generate a summarization of it, which contains the most important information contained in it.

### Input:
%s

### Response:
Please provide a concise summary of the text above, focusing on the most relevant information.
Your summary should be clear and easy to understand, highlighting key points and important details.
Your summary should have the form of a single paragraph, with no more than 200 words.`

// temperature is kept low so summaries stay close to the source text.
const temperature = 0.1

// Summarizer generates single-paragraph document summaries.
type Summarizer struct {
	generator Generator
	logger    *slog.Logger
}

// New creates a Summarizer.
func New(generator Generator, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{generator: generator, logger: logger}
}

// Summarize returns a neutral single-paragraph summary of text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	normalized := chunk.Normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return "", ErrEmptyInput
	}

	req := provider.GenerateRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: systemPrompt},
			{Role: provider.RoleUser, Content: fmt.Sprintf(userPromptTemplate, normalized)},
		},
		Temperature: temperature,
	}

	summary, err := s.generator.Generate(ctx, req, nil)
	if err != nil {
		return "", fmt.Errorf("summarizing document: %w", err)
	}

	return strings.TrimSpace(summary), nil
}
