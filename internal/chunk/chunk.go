// Package chunk splits normalized document text into overlapping spans
// suitable as retrieval units.
//
// Splitting is deterministic: the same input and options always produce the
// same spans, which keeps document IDs and re-ingestion stable.
package chunk

import (
	"regexp"
	"strings"
)

// Default splitter parameters.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Options configures the splitter. Zero values fall back to the defaults.
type Options struct {
	Size    int // maximum chunk length in runes
	Overlap int // runes shared between consecutive chunks
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.Size {
		// Overlap must leave forward progress.
		o.Overlap = o.Size - 1
	}
	return o
}

var (
	newlineRuns = regexp.MustCompile(`\n+`)
	spaceRuns   = regexp.MustCompile(` +`)
)

// Normalize collapses whitespace noise in extracted document text:
// runs of newlines become a single newline, tabs become spaces, and runs of
// spaces collapse to one. The result is stable under repeated application.
func Normalize(text string) string {
	text = newlineRuns.ReplaceAllString(text, " \n")
	text = strings.ReplaceAll(text, "\t", " ")
	text = spaceRuns.ReplaceAllString(text, " ")
	return text
}

// Split cuts text into rune-windows of at most opts.Size runes, with
// consecutive windows sharing opts.Overlap runes. Empty or
// whitespace-only input yields no chunks.
//
// Where possible the window end is pulled back to the last whitespace
// boundary inside the window, so words are not cut mid-rune sequence.
func Split(text string, opts Options) []string {
	opts = opts.withDefaults()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= opts.Size {
		return []string{text}
	}

	step := opts.Size - opts.Overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + opts.Size
		last := false
		if end >= len(runes) {
			end = len(runes)
			last = true
		}

		if !last {
			if cut := lastBoundary(runes[start:end]); cut > opts.Overlap {
				end = start + cut
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, piece)
		}

		if last {
			break
		}

		// Recompute step when the boundary moved the end backwards.
		if adv := end - opts.Overlap - start; adv > 0 {
			step = adv
		} else {
			step = 1
		}
	}

	return chunks
}

// lastBoundary returns the index just past the last whitespace rune in the
// window, or 0 when the window contains none.
func lastBoundary(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case ' ', '\n', '\t':
			return i + 1
		}
	}
	return 0
}
