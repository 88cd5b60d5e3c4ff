package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/vectorindex"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type fakeIndex struct {
	matches    []vectorindex.Match
	err        error
	lastFilter vectorindex.Filter
	lastK      int
}

func (f *fakeIndex) Insert(ctx context.Context, records []vectorindex.Record) error { return nil }

func (f *fakeIndex) Search(ctx context.Context, vector []float32, filter vectorindex.Filter, k int) ([]vectorindex.Match, error) {
	f.lastFilter, f.lastK = filter, k
	return f.matches, f.err
}

func (f *fakeIndex) Delete(ctx context.Context, filter vectorindex.Filter) (int64, error) {
	return 0, nil
}

func frag(doc string, page int, source, content string) Fragment {
	return Fragment{
		Content: content,
		Metadata: vectorindex.Metadata{
			DocumentID: doc, FileName: doc + ".pdf", Page: page, Source: source,
		},
	}
}

func TestRetrieveScopesAndKeepsOrder(t *testing.T) {
	idx := &fakeIndex{matches: []vectorindex.Match{
		{Content: "first", Similarity: 0.9},
		{Content: "second", Similarity: 0.5},
	}}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, idx, 0)

	got, err := r.Retrieve(context.Background(), "what?", "u1", "s1", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if idx.lastFilter.UserID != "u1" || idx.lastFilter.SessionID != "s1" || idx.lastK != DefaultTopK {
		t.Fatalf("unexpected search call: %+v k=%d", idx.lastFilter, idx.lastK)
	}
	if len(got) != 2 || got[0].Content != "first" || got[1].Similarity != 0.5 {
		t.Fatalf("unexpected fragments: %+v", got)
	}
}

func TestRetrieveDegradesOnEmbeddingFailure(t *testing.T) {
	idx := &fakeIndex{}
	r := NewRetriever(&fakeEmbedder{err: ai.ErrEmbedding}, idx, 5)
	got, err := r.Retrieve(context.Background(), "q", "u1", "s1", 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestRetrieveSurfacesIndexFailure(t *testing.T) {
	idx := &fakeIndex{err: vectorindex.ErrIndexUnavailable}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, idx, 5)
	if _, err := r.Retrieve(context.Background(), "q", "u1", "s1", 5); !errors.Is(err, vectorindex.ErrIndexUnavailable) {
		t.Fatalf("expected index error, got %v", err)
	}
}

func TestFormatContext(t *testing.T) {
	empty := FormatContext(nil)
	if empty.Found || empty.Text != NoContextText {
		t.Fatalf("unexpected empty block: %+v", empty)
	}

	block := FormatContext([]Fragment{
		frag("d1", 1, "pdf_text", "alpha"),
		frag("d2", 3, "image_caption", "beta"),
	})
	want := "1. alpha\n[Source: d1.pdf, Page 1, pdf_text]\n\n2. beta\n[Source: d2.pdf, Page 3, image_caption]"
	if !block.Found || block.Text != want {
		t.Fatalf("got %q", block.Text)
	}
	turn := BuildUserTurn(block, "why?")
	if !strings.HasPrefix(turn, "Context from uploaded documents:\n1. alpha") || !strings.HasSuffix(turn, "\n\nQuestion: why?") {
		t.Fatalf("unexpected user turn %q", turn)
	}
}

func TestBuildConversationWindow(t *testing.T) {
	var history []model.Message
	for i := 0; i < 14; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		history = append(history, model.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}
	history[12].Role = "tool"

	window := BuildConversationWindow(history, 0)
	if window[0].Role != "system" || window[0].Content != SystemPrompt {
		t.Fatalf("system prompt missing")
	}
	// last 10 are m4..m13, m12 is dropped by role.
	if len(window) != 1+9 {
		t.Fatalf("window size = %d", len(window))
	}
	if window[1].Content != "m4" || window[len(window)-1].Content != "m13" {
		t.Fatalf("unexpected window bounds: %q .. %q", window[1].Content, window[len(window)-1].Content)
	}
	for _, m := range window[1:] {
		if m.Content == "m12" {
			t.Fatalf("non user/assistant message kept")
		}
	}
}

func TestExtractSourcesDedup(t *testing.T) {
	sources := ExtractSources([]Fragment{
		frag("d2", 1, "pdf_text", "a"),
		frag("d1", 2, "pdf_text", "b"),
		frag("d2", 1, "pdf_text", "c"),
		frag("d2", 1, "image_caption", "d"),
		frag("d1", 2, "pdf_text", "e"),
	})
	if len(sources) != 3 {
		t.Fatalf("expected 3 unique sources, got %+v", sources)
	}
	if sources[0].DocumentID != "d2" || sources[1].DocumentID != "d1" || sources[2].Source != "image_caption" {
		t.Fatalf("first-seen order not kept: %+v", sources)
	}
}

func TestExtractSourcesKeepsUnderscoreIDsApart(t *testing.T) {
	sources := ExtractSources([]Fragment{
		frag("a_1", 2, "pdf_text", "x"),
		frag("a", 1, "2_pdf_text", "y"),
	})
	if len(sources) != 2 {
		t.Fatalf("distinct sources merged: %+v", sources)
	}
}

type fakeGenerator struct {
	out  string
	err  error
	seen []ai.ChatMessage
}

func (g *fakeGenerator) Generate(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	g.seen = messages
	return g.out, g.err
}

func TestAnswerer(t *testing.T) {
	window := BuildConversationWindow(nil, 10)

	g := &fakeGenerator{out: "\ufeffAnswer\r\nline\x00"}
	got := NewAnswerer(g).Answer(context.Background(), window, "turn")
	if got != "Answer\nline" {
		t.Fatalf("answer not sanitized: %q", got)
	}
	if last := g.seen[len(g.seen)-1]; last.Role != "user" || last.Content != "turn" {
		t.Fatalf("user turn not appended last: %+v", last)
	}

	if got := NewAnswerer(&fakeGenerator{err: ai.ErrGeneration}).Answer(context.Background(), window, "turn"); got != FallbackAnswer {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := NewAnswerer(&fakeGenerator{out: "  "}).Answer(context.Background(), window, "turn"); got != EmptyAnswer {
		t.Fatalf("expected empty answer text, got %q", got)
	}
}
