package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/ragpipe/ragpipe/internal/index"
	"github.com/ragpipe/ragpipe/internal/ingest"
	"github.com/ragpipe/ragpipe/internal/prompt"
	"github.com/ragpipe/ragpipe/internal/provider"
	"github.com/ragpipe/ragpipe/internal/retrieve"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// wordEmbedder maps text to a crude bag-of-topics vector so related texts
// land near each other.
type wordEmbedder struct{}

func (wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	topics := []string{"gopher", "pasta", "garden"}
	vec := make([]float32, len(topics)+1)
	vec[len(topics)] = 0.1
	lower := strings.ToLower(text)
	for i, topic := range topics {
		if strings.Contains(lower, topic) {
			vec[i] = 1
		}
	}
	return vec, nil
}

type echoGenerator struct {
	response string
	chunks   []string
	err      error
	lastReq  provider.GenerateRequest
}

func (g *echoGenerator) Generate(ctx context.Context, req provider.GenerateRequest, stream provider.StreamFunc) (string, error) {
	g.lastReq = req
	if g.err != nil {
		return "", g.err
	}
	if stream != nil {
		for _, c := range g.chunks {
			if err := stream(ctx, c); err != nil {
				return "", err
			}
		}
	}
	return g.response, nil
}

// newTestEngine wires an engine over an in-memory index seeded through the
// real ingestor.
func newTestEngine(t *testing.T, gen Generator, docs map[string]string) *Engine {
	t.Helper()

	idx := index.NewMemory()
	embedder := wordEmbedder{}
	ing := ingest.New(idx, embedder, ingest.Options{ChunkSize: 100, ChunkOverlap: 0}, nil)
	for source, text := range docs {
		if _, err := ing.IngestText(context.Background(), source, text, nil); err != nil {
			t.Fatalf("seeding %s: %v", source, err)
		}
	}

	retriever := retrieve.New(idx, embedder, 3, 0.1, nil)
	assembler := prompt.New("Answer from the given context.", 4000, nil)
	return New(retriever, assembler, gen, nil)
}

func TestAnswerEndToEnd(t *testing.T) {
	gen := &echoGenerator{response: "Gophers are Go programmers."}
	e := newTestEngine(t, gen, map[string]string{
		"go.txt":     "A gopher is a mascot of the Go language.",
		"food.txt":   "Pasta is boiled in salted water.",
		"garden.txt": "A garden needs regular watering.",
	})

	answer, err := e.Answer(context.Background(), Request{Query: "what is a gopher"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if answer.Text != "Gophers are Go programmers." {
		t.Errorf("text = %q", answer.Text)
	}
	if answer.RequestID == "" {
		t.Error("missing request ID")
	}
	if len(answer.Context) == 0 {
		t.Fatal("no context retrieved")
	}
	if !strings.Contains(answer.Context[0].Chunk.Content, "gopher") {
		t.Errorf("top context = %q, want the gopher chunk", answer.Context[0].Chunk.Content)
	}

	// The generator must have seen the retrieved context and the query.
	last := gen.lastReq.Messages[len(gen.lastReq.Messages)-1]
	if !strings.Contains(last.Content, "gopher is a mascot") {
		t.Error("retrieved context missing from prompt")
	}
	if !strings.Contains(last.Content, "what is a gopher") {
		t.Error("query missing from prompt")
	}
}

func TestAnswerStreamConcatenatesToFullText(t *testing.T) {
	gen := &echoGenerator{chunks: []string{"Go", "phers ", "code."}, response: "Gophers code."}
	e := newTestEngine(t, gen, map[string]string{
		"go.txt": "A gopher is a mascot of the Go language.",
	})

	var streamed strings.Builder
	answer, err := e.AnswerStream(context.Background(), Request{Query: "gopher?"},
		func(ctx context.Context, chunk string) error {
			streamed.WriteString(chunk)
			return nil
		})
	if err != nil {
		t.Fatalf("AnswerStream: %v", err)
	}

	if streamed.String() != answer.Text {
		t.Errorf("streamed %q != answer text %q", streamed.String(), answer.Text)
	}
}

func TestAnswerIncludesHistory(t *testing.T) {
	gen := &echoGenerator{response: "ok"}
	e := newTestEngine(t, gen, map[string]string{
		"go.txt": "A gopher is a mascot of the Go language.",
	})

	_, err := e.Answer(context.Background(), Request{
		Query: "and what about gophers?",
		History: []Turn{
			{Role: provider.RoleUser, Content: "tell me about mascots"},
			{Role: provider.RoleAssistant, Content: "many languages have mascots"},
		},
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	var found bool
	for _, m := range gen.lastReq.Messages {
		if m.Role == provider.RoleAssistant && m.Content == "many languages have mascots" {
			found = true
		}
	}
	if !found {
		t.Error("history turn missing from generation request")
	}
}

func TestAnswerEmptyQuery(t *testing.T) {
	e := newTestEngine(t, &echoGenerator{}, map[string]string{
		"go.txt": "A gopher is a mascot of the Go language.",
	})

	_, err := e.Answer(context.Background(), Request{Query: ""})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("error = %v, want ErrEmptyQuery", err)
	}
}

func TestAnswerEmptyIndex(t *testing.T) {
	idx := index.NewMemory()
	retriever := retrieve.New(idx, wordEmbedder{}, 3, 0.1, nil)
	assembler := prompt.New("sys", 4000, nil)
	e := New(retriever, assembler, &echoGenerator{}, nil)

	_, err := e.Answer(context.Background(), Request{Query: "anything"})
	if !errors.Is(err, index.ErrEmptyIndex) {
		t.Errorf("error = %v, want ErrEmptyIndex", err)
	}
}

func TestAnswerGenerationFailureLeavesIndexIntact(t *testing.T) {
	genErr := &provider.UpstreamError{Op: "generate", Kind: provider.KindTimeout, Err: context.DeadlineExceeded}

	idx := index.NewMemory()
	embedder := wordEmbedder{}
	ing := ingest.New(idx, embedder, ingest.Options{}, nil)
	if _, err := ing.IngestText(context.Background(), "go.txt", "A gopher is a mascot.", nil); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	before, _ := idx.Count(context.Background())

	retriever := retrieve.New(idx, embedder, 3, 0.1, nil)
	e := New(retriever, prompt.New("sys", 4000, nil), &echoGenerator{err: genErr}, nil)

	_, err := e.Answer(context.Background(), Request{Query: "gopher"})
	var upstream *provider.UpstreamError
	if !errors.As(err, &upstream) || upstream.Kind != provider.KindTimeout {
		t.Errorf("error = %v, want timeout UpstreamError", err)
	}

	after, _ := idx.Count(context.Background())
	if before != after {
		t.Errorf("index size changed across failed generation: %d -> %d", before, after)
	}
}
