// Package pii detects personally identifiable information in text using the
// language model as a GDPR-aware classifier.
package pii

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragpipe/ragpipe/internal/chunk"
	"github.com/ragpipe/ragpipe/internal/provider"
)

var (
	// ErrEmptyInput is returned when there is no text to analyze.
	ErrEmptyInput = errors.New("no text to analyze")

	// ErrMalformedResponse is returned when the model output cannot be
	// parsed as a findings array.
	ErrMalformedResponse = errors.New("model returned malformed findings")
)

// IdentifierType distinguishes direct identifiers (name, email) from
// indirect ones (IP address, location) per GDPR Article 4(1).
type IdentifierType string

const (
	TypeDirect   IdentifierType = "direct"
	TypeIndirect IdentifierType = "indirect"
)

// Finding is one detected PII instance.
type Finding struct {
	Text          string         `json:"text"`
	Category      string         `json:"category"`
	Type          IdentifierType `json:"type"`
	Justification string         `json:"justification"`
}

// Generator is the slice of the generation client the detector needs.
type Generator interface {
	Generate(ctx context.Context, req provider.GenerateRequest, stream provider.StreamFunc) (string, error)
}

const systemPrompt = `You are a GDPR-compliant data privacy assistant. Your role is to detect Personally Identifiable Information (PII) in user-provided text based on the EU's General Data Protection Regulation (GDPR).

PII includes any information relating to an identified or identifiable natural person, either directly (e.g., name, email address, national ID number) or indirectly (e.g., IP address, location data, unique device identifiers, or any data that can identify a person when combined with other information).

When analyzing documents, you must:
1. Identify and extract all PII instances.
2. Categorize each instance.
3. Determine if it is a direct or indirect identifier.
4. Justify the classification based on GDPR definitions.

Output results in structured JSON format, suitable for downstream processing.
Maintain strict compliance with GDPR's definition of personal data as described in Article 4(1).`

const userPromptTemplate = `### Instruction:
Analyze the following document and identify all instances of Personally Identifiable Information (PII) according to the EU's GDPR.

### Input:
%s

### Response:
For each identified PII instance, return the:
- text: The extracted text, exactly as it appears in the document
- category: The PII category (e.g., name, email, phone number, IP address, health data)
- type: The PII identifier type (direct or indirect)
- justification: The justification for PII classification

Format your results as a structured JSON array, where each object represents one PII instance.

Example:
[
    {"text": "John Doe", "category": "name", "type": "direct", "justification": "Identifies an individual directly."},
    {"text": "d.joe@brand.co", "category": "email", "type": "direct", "justification": "Identifies an individual directly through their email address."}
]`

// temperature is kept low so classification stays deterministic.
const temperature = 0.1

// Detector finds PII in text.
type Detector struct {
	generator Generator
	logger    *slog.Logger
}

// New creates a Detector.
func New(generator Generator, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{generator: generator, logger: logger}
}

// Detect returns all PII findings in text. An empty slice means the model
// found none.
func (d *Detector) Detect(ctx context.Context, text string) ([]Finding, error) {
	normalized := chunk.Normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return nil, ErrEmptyInput
	}

	req := provider.GenerateRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: systemPrompt},
			{Role: provider.RoleUser, Content: fmt.Sprintf(userPromptTemplate, normalized)},
		},
		Temperature: temperature,
	}

	response, err := d.generator.Generate(ctx, req, nil)
	if err != nil {
		return nil, fmt.Errorf("detecting PII: %w", err)
	}

	findings, err := parseFindings(response)
	if err != nil {
		d.logger.Warn("unparseable PII response", "error", err)
		return nil, err
	}

	d.logger.Debug("PII detection complete", "findings", len(findings))
	return findings, nil
}

// parseFindings decodes the model's JSON array, tolerating a ```json code
// fence around it.
func parseFindings(response string) ([]Finding, error) {
	content := strings.TrimSpace(response)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var findings []Finding
	if err := json.Unmarshal([]byte(content), &findings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return findings, nil
}
