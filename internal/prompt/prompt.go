// Package prompt assembles system instructions, retrieved context, and the
// user query into generation messages under a token budget.
package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ragpipe/ragpipe/internal/index"
	"github.com/ragpipe/ragpipe/internal/provider"
)

// ErrBudgetExceeded is returned when the system instructions and the user
// query alone do not fit the token budget. Context never triggers it; context
// is dropped instead.
var ErrBudgetExceeded = errors.New("instructions and query exceed token budget")

// DefaultBudget is the token budget used when none is configured.
const DefaultBudget = 8000

const (
	contextHeader = "Use the following context to answer the question. If the context does not contain the answer, say so."
	contextSep    = "\n\n---\n\n"
)

// Assembler builds prompts under a fixed token budget.
type Assembler struct {
	instructions string
	budget       int
	logger       *slog.Logger
}

// New creates an Assembler. A non-positive budget falls back to DefaultBudget.
func New(instructions string, budget int, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Assembler{
		instructions: instructions,
		budget:       budget,
		logger:       logger,
	}
}

// Assemble builds the message sequence for a generation call: system
// instructions, conversation history, then the user query prefixed with as
// much ranked context as the budget allows.
//
// The instructions and query are never truncated. Context is dropped lowest
// rank first, then history oldest first, until the budget holds.
func (a *Assembler) Assemble(query string, context []index.Result, history []provider.Message) ([]provider.Message, error) {
	fixed := estimateTokens(a.instructions) + estimateTokens(query)
	if fixed > a.budget {
		return nil, fmt.Errorf("assembling prompt (%d tokens fixed, budget %d): %w",
			fixed, a.budget, ErrBudgetExceeded)
	}

	remaining := a.budget - fixed

	kept, contextCost := fitContext(context, remaining)
	remaining -= contextCost

	history = truncateHistory(history, remaining)

	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: a.instructions,
	})
	messages = append(messages, history...)
	messages = append(messages, provider.Message{
		Role:    provider.RoleUser,
		Content: renderUserMessage(query, kept),
	})

	if len(kept) < len(context) {
		a.logger.Debug("dropped context to honor budget",
			"kept", len(kept), "dropped", len(context)-len(kept))
	}

	return messages, nil
}

// Budget reports the assembler's token budget.
func (a *Assembler) Budget() int {
	return a.budget
}

// EstimateTokens reports the estimated token count of the assembled messages.
func EstimateTokens(messages []provider.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content)
	}
	return total
}

// fitContext keeps the highest-ranked prefix of results that fits the budget
// and reports the token cost of what it kept. Results arrive ranked best
// first, so dropping the tail drops the lowest ranked chunks. The first kept
// chunk also pays for the context header.
func fitContext(results []index.Result, budget int) ([]index.Result, int) {
	var (
		kept []index.Result
		used int
	)
	for _, r := range results {
		cost := estimateTokens(r.Chunk.Content) + estimateTokens(contextSep)
		if len(kept) == 0 {
			cost += estimateTokens(contextHeader) + estimateTokens(contextSep)
		}
		if used+cost > budget {
			break
		}
		kept = append(kept, r)
		used += cost
	}
	return kept, used
}

// truncateHistory keeps the newest messages that fit the budget, preserving
// chronological order.
func truncateHistory(history []provider.Message, budget int) []provider.Message {
	if len(history) == 0 {
		return nil
	}

	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := estimateTokens(history[i].Content)
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}
	if start == len(history) {
		return nil
	}
	return history[start:]
}

func renderUserMessage(query string, context []index.Result) string {
	if len(context) == 0 {
		return query
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	for _, r := range context {
		b.WriteString(contextSep)
		b.WriteString(r.Chunk.Content)
	}
	b.WriteString(contextSep)
	b.WriteString(query)
	return b.String()
}

// estimateTokens provides a rough token count. Half the rune count, rounded
// up, is a conservative estimate for both English and CJK text.
func estimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 1) / 2
}
