package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quarrylabs/quarry/internal/llm"
	"github.com/quarrylabs/quarry/internal/memory"
	"github.com/quarrylabs/quarry/internal/vector"
)

// recordingProvider captures the prompt and options it was called with.
type recordingProvider struct {
	lastPrompt *llm.Prompt
	lastOpts   *llm.RequestOptions
	reply      string
	err        error
}

func (r *recordingProvider) Name() string { return "recording" }

func (r *recordingProvider) Complete(_ context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	r.lastPrompt = prompt
	r.lastOpts = opts
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Response{Content: r.reply, Model: "test-model", InputTokens: 10, OutputTokens: 5}, nil
}

func (r *recordingProvider) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func sampleResults() []vector.Result {
	return []vector.Result{
		{ID: "1", Score: 0.95, Payload: vector.Payload{
			Text: "Revenue was $10.5 million in fiscal year 2022.", Source: "annual_report_2022.pdf", Page: 12,
		}},
		{ID: "2", Score: 0.90, Payload: vector.Payload{
			Text: "Operating expenses increased to $6.2 million.", Source: "annual_report_2022.pdf", Page: 14,
		}},
	}
}

func TestAnswerBuildsContext(t *testing.T) {
	p := &recordingProvider{reply: "Revenue grew."}
	g := New(p, Options{HistoryTurns: 5})

	res, err := g.Answer(context.Background(), "How did revenue do?", sampleResults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != "Revenue grew." {
		t.Errorf("unexpected answer: %q", res.Answer)
	}
	if !res.Grounded {
		t.Error("expected grounded result")
	}

	user := p.lastPrompt.Messages[0].Content
	if !strings.Contains(user, "[Document 1 from annual_report_2022.pdf (page 12)]") {
		t.Errorf("context block missing provenance: %q", user)
	}
	if !strings.Contains(user, "Question: How did revenue do?") {
		t.Errorf("question missing: %q", user)
	}
	if p.lastPrompt.SystemPrompt != answerSystemPrompt {
		t.Error("wrong system prompt")
	}
}

func TestAnswerNoContext(t *testing.T) {
	p := &recordingProvider{reply: "should not be called"}
	g := New(p, Options{HistoryTurns: 5})

	res, err := g.Answer(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != noContextAnswer {
		t.Errorf("expected canned no-context answer, got %q", res.Answer)
	}
	if res.Grounded {
		t.Error("expected ungrounded result")
	}
	if p.lastPrompt != nil {
		t.Error("provider must not be called without context")
	}
}

func TestChatAnswerIncludesHistory(t *testing.T) {
	p := &recordingProvider{reply: "As I said, $10.5M."}
	g := New(p, Options{HistoryTurns: 5})

	mem := memory.New(20, 0)
	mem.AppendExchange("What was revenue?", "Revenue was $10.5 million.")

	_, err := g.ChatAnswer(context.Background(), "And expenses?", sampleResults(), mem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	user := p.lastPrompt.Messages[0].Content
	if !strings.Contains(user, "User: What was revenue?") {
		t.Errorf("history missing from prompt: %q", user)
	}
	if !strings.Contains(user, "Latest question: And expenses?") {
		t.Errorf("latest question missing: %q", user)
	}
	if p.lastPrompt.SystemPrompt != chatSystemPrompt {
		t.Error("wrong system prompt")
	}
}

func TestChatAnswerHistoryBounded(t *testing.T) {
	p := &recordingProvider{reply: "ok"}
	g := New(p, Options{HistoryTurns: 2})

	mem := memory.New(40, 0)
	for i := 0; i < 10; i++ {
		mem.AppendExchange("question-"+strings.Repeat("x", i), "answer")
	}

	_, err := g.ChatAnswer(context.Background(), "latest?", sampleResults(), mem)
	if err != nil {
		t.Fatal(err)
	}

	// Only the last 2 exchanges (4 turns) should appear.
	user := p.lastPrompt.Messages[0].Content
	if strings.Count(user, "User: question-") > 2 {
		t.Errorf("history not bounded: %q", user)
	}
}

func TestSummarize(t *testing.T) {
	p := &recordingProvider{reply: "Strong year."}
	g := New(p, Options{HistoryTurns: 5})

	res, err := g.Summarize(context.Background(), sampleResults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != "Strong year." {
		t.Errorf("unexpected summary: %q", res.Answer)
	}
	if p.lastPrompt.SystemPrompt != summarySystemPrompt {
		t.Error("wrong system prompt")
	}
}

func TestSummarizeNoContext(t *testing.T) {
	g := New(&recordingProvider{}, Options{HistoryTurns: 5})

	res, err := g.Summarize(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != noContextSummary {
		t.Errorf("expected canned summary reply, got %q", res.Answer)
	}
}

func TestProviderErrorWrapped(t *testing.T) {
	inner := errors.New("status 500")
	g := New(&recordingProvider{err: inner}, Options{HistoryTurns: 5})

	_, err := g.Answer(context.Background(), "q", sampleResults())
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !errors.Is(err, inner) {
		t.Error("expected wrapped inner error")
	}
}

func TestNoProviderConfigured(t *testing.T) {
	g := New(nil, Options{HistoryTurns: 5})

	_, err := g.Answer(context.Background(), "q", sampleResults())
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestCitationsCarryChunkID(t *testing.T) {
	// Two distinct chunks from the same page each get their own citation.
	results := append(sampleResults(), vector.Result{
		ID: "3", Score: 0.85, Payload: vector.Payload{Text: "more", Source: "annual_report_2022.pdf", Page: 12},
	})

	p := &recordingProvider{reply: "ok"}
	g := New(p, Options{HistoryTurns: 5})
	res, err := g.Answer(context.Background(), "q", results)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Citations) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(res.Citations))
	}
	want := []string{"1", "2", "3"}
	for i, c := range res.Citations {
		if c.ChunkID != want[i] {
			t.Errorf("citation %d: chunk id %q, want %q", i, c.ChunkID, want[i])
		}
	}
}

func TestCitationsDedupedByChunkID(t *testing.T) {
	// The same chunk seen twice collapses into one citation with the
	// best score kept.
	results := append(sampleResults(), vector.Result{
		ID: "1", Score: 0.99, Payload: vector.Payload{
			Text: "Revenue was $10.5 million in fiscal year 2022.", Source: "annual_report_2022.pdf", Page: 12,
		},
	})

	p := &recordingProvider{reply: "ok"}
	g := New(p, Options{HistoryTurns: 5})
	res, err := g.Answer(context.Background(), "q", results)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Citations) != 2 {
		t.Fatalf("expected 2 deduped citations, got %d", len(res.Citations))
	}
	if res.Citations[0].ChunkID != "1" || res.Citations[0].Score != 0.99 {
		t.Errorf("expected chunk 1 with best score 0.99, got %q %v",
			res.Citations[0].ChunkID, res.Citations[0].Score)
	}
}

func TestRequestOptionsCarryTuning(t *testing.T) {
	p := &recordingProvider{reply: "ok"}
	g := New(p, Options{Temperature: 0.7, MaxTokens: 512, HistoryTurns: 5})

	if _, err := g.Answer(context.Background(), "q", sampleResults()); err != nil {
		t.Fatal(err)
	}

	if p.lastOpts == nil || p.lastOpts.Temperature == nil {
		t.Fatal("expected temperature in request options")
	}
	if *p.lastOpts.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", *p.lastOpts.Temperature)
	}
	if p.lastOpts.MaxTokens == nil || *p.lastOpts.MaxTokens != 512 {
		t.Errorf("max tokens not threaded through: %+v", p.lastOpts.MaxTokens)
	}
}

func TestRequestOptionsDefaults(t *testing.T) {
	p := &recordingProvider{reply: "ok"}
	g := New(p, Options{})

	if _, err := g.Answer(context.Background(), "q", sampleResults()); err != nil {
		t.Fatal(err)
	}

	if p.lastOpts.Temperature == nil || *p.lastOpts.Temperature != 0.2 {
		t.Errorf("expected default temperature 0.2, got %+v", p.lastOpts.Temperature)
	}
	if p.lastOpts.MaxTokens != nil {
		t.Error("expected provider-side token limit when MaxTokens unset")
	}
}
