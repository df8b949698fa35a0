// Package generator assembles prompts from retrieved chunks and calls
// the LLM to produce grounded answers with citations.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarrylabs/quarry/internal/llm"
	"github.com/quarrylabs/quarry/internal/memory"
	"github.com/quarrylabs/quarry/internal/vector"
)

// ProviderError wraps an LLM failure during generation.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("generation provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Citation names a source chunk that backed an answer.
type Citation struct {
	Source  string  `json:"source"`
	ChunkID string  `json:"chunk_id,omitempty"`
	Page    int     `json:"page"`
	Score   float32 `json:"score,omitempty"`
}

// Result is a generated answer with the sources it drew from.
type Result struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations,omitempty"`
	Model     string     `json:"model,omitempty"`
	Tokens    int        `json:"tokens,omitempty"`
	Grounded  bool       `json:"grounded"`
}

// Generator produces answers from retrieved context.
type Generator struct {
	provider     llm.Provider
	temperature  float64
	maxTokens    int
	historyTurns int
}

// Options tunes generation. Zero values fall back to defaults:
// temperature 0.2, provider-side token limit, five history turns.
type Options struct {
	Temperature  float64
	MaxTokens    int
	HistoryTurns int
}

// New creates a generator. HistoryTurns bounds how much conversation
// history chat answers carry into the prompt.
func New(provider llm.Provider, opts Options) *Generator {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 5
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.2
	}
	return &Generator{
		provider:     provider,
		temperature:  opts.Temperature,
		maxTokens:    opts.MaxTokens,
		historyTurns: opts.HistoryTurns,
	}
}

// ProviderName returns the configured provider's name, or "none".
func (g *Generator) ProviderName() string {
	if g.provider == nil {
		return "none"
	}
	return g.provider.Name()
}

// Answer generates a one-shot answer to query from the retrieved
// chunks. With no chunks it states that outright instead of guessing.
func (g *Generator) Answer(ctx context.Context, query string, results []vector.Result) (*Result, error) {
	if len(results) == 0 {
		return &Result{Answer: noContextAnswer}, nil
	}

	user := fmt.Sprintf("Context:\n%s\nQuestion: %s", formatContext(results), query)
	return g.complete(ctx, answerSystemPrompt, nil, user, results)
}

// ChatAnswer generates a conversational answer using bounded history.
func (g *Generator) ChatAnswer(ctx context.Context, query string, results []vector.Result, mem *memory.Memory) (*Result, error) {
	if len(results) == 0 {
		return &Result{Answer: noContextAnswer}, nil
	}

	history := ""
	if mem != nil {
		history = mem.ContextString(g.historyTurns * 2)
	}
	user := fmt.Sprintf("Here is the conversation history:\n%s\nRetrieved context:\n%s\nLatest question: %s",
		history, formatContext(results), query)
	return g.complete(ctx, chatSystemPrompt, nil, user, results)
}

// Summarize generates a financial summary from the given chunks.
func (g *Generator) Summarize(ctx context.Context, results []vector.Result) (*Result, error) {
	if len(results) == 0 {
		return &Result{Answer: noContextSummary}, nil
	}

	user := fmt.Sprintf("Context:\n%s\nFinancial Summary:", formatContext(results))
	return g.complete(ctx, summarySystemPrompt, nil, user, results)
}

func (g *Generator) complete(ctx context.Context, system string, history []llm.Message, user string, results []vector.Result) (*Result, error) {
	if g.provider == nil {
		return nil, &ProviderError{Provider: "none", Err: fmt.Errorf("no generation provider configured")}
	}

	temp := g.temperature
	reqOpts := &llm.RequestOptions{Temperature: &temp}
	if g.maxTokens > 0 {
		mt := g.maxTokens
		reqOpts.MaxTokens = &mt
	}
	prompt := &llm.Prompt{
		SystemPrompt: system,
		Messages:     append(history, llm.Message{Role: llm.RoleUser, Content: user}),
	}
	resp, err := g.provider.Complete(ctx, prompt, reqOpts)
	if err != nil {
		return nil, &ProviderError{Provider: g.provider.Name(), Err: err}
	}

	return &Result{
		Answer:    strings.TrimSpace(resp.Content),
		Citations: citations(results),
		Model:     resp.Model,
		Tokens:    resp.InputTokens + resp.OutputTokens,
		Grounded:  true,
	}, nil
}

// formatContext renders chunks as numbered blocks with provenance.
func formatContext(results []vector.Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[Document %d from %s (page %d)]\n%s\n\n", i+1, r.Payload.Source, r.Payload.Page, r.Payload.Text)
	}
	return b.String()
}

// citations dedupes results by chunk id, keeping the best score. Two
// chunks from the same page are distinct citations.
func citations(results []vector.Result) []Citation {
	seen := make(map[string]int)
	var out []Citation
	for _, r := range results {
		if idx, ok := seen[r.ID]; ok {
			if r.Score > out[idx].Score {
				out[idx].Score = r.Score
			}
			continue
		}
		seen[r.ID] = len(out)
		out = append(out, Citation{
			Source:  r.Payload.Source,
			ChunkID: r.ID,
			Page:    r.Payload.Page,
			Score:   r.Score,
		})
	}
	return out
}
