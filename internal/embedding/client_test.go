package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/quarrylabs/quarry/internal/llm"
	"github.com/quarrylabs/quarry/internal/observability"
)

// fakeEmbedder returns a vector encoding the input's position so tests
// can verify ordering survives batching.
type fakeEmbedder struct {
	dim      int
	calls    int64
	failFrom int64
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Complete(_ context.Context, _ *llm.Prompt, _ *llm.RequestOptions) (*llm.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	call := atomic.AddInt64(&f.calls, 1)
	if f.failFrom > 0 && call >= f.failFrom {
		return nil, fmt.Errorf("status 500")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(text))
		out[i] = vec
	}
	return out, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%0*d", i+1, 0) // length encodes position
	}
	return out
}

func TestEmbedAllPreservesOrder(t *testing.T) {
	fake := &fakeEmbedder{dim: 4}
	c := NewClient(fake, 3, 4, 2)

	in := texts(10)
	vecs, err := c.EmbedAll(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 10 {
		t.Fatalf("expected 10 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(len(in[i])) {
			t.Errorf("vector %d out of order: got marker %v, want %v", i, v[0], len(in[i]))
		}
	}
}

func TestEmbedAllBatchCount(t *testing.T) {
	fake := &fakeEmbedder{dim: 2}
	c := NewClient(fake, 4, 2, 1)

	if _, err := c.EmbedAll(context.Background(), texts(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", fake.calls)
	}
}

func TestEmbedAllDimensionMismatch(t *testing.T) {
	fake := &fakeEmbedder{dim: 8}
	c := NewClient(fake, 4, 16, 1)

	_, err := c.EmbedAll(context.Background(), texts(2))
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestEmbedAllProviderFailure(t *testing.T) {
	fake := &fakeEmbedder{dim: 4, failFrom: 2}
	c := NewClient(fake, 2, 4, 2)

	_, err := c.EmbedAll(context.Background(), texts(8))
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Provider != "fake" {
		t.Errorf("expected provider 'fake', got %q", pe.Provider)
	}
}

func TestEmbedAllRecordsBatchMetrics(t *testing.T) {
	m := observability.Metrics()
	batchesBefore := m.EmbedBatchesTotal.Value()
	errorsBefore := m.EmbedErrorsTotal.Value()

	fake := &fakeEmbedder{dim: 2}
	c := NewClient(fake, 4, 2, 1)
	if _, err := c.EmbedAll(context.Background(), texts(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := m.EmbedBatchesTotal.Value() - batchesBefore; got != 3 {
		t.Errorf("expected 3 batches recorded, got %v", got)
	}
	if got := m.EmbedErrorsTotal.Value() - errorsBefore; got != 0 {
		t.Errorf("expected no embed errors recorded, got %v", got)
	}

	failing := &fakeEmbedder{dim: 2, failFrom: 1}
	c = NewClient(failing, 4, 2, 1)
	if _, err := c.EmbedAll(context.Background(), texts(4)); err == nil {
		t.Fatal("expected provider failure")
	}
	if got := m.EmbedErrorsTotal.Value() - errorsBefore; got < 1 {
		t.Errorf("expected failed batch counted, got %v", got)
	}
}

func TestEmbedAllEmptyInput(t *testing.T) {
	c := NewClient(&fakeEmbedder{dim: 4}, 2, 4, 1)
	vecs, err := c.EmbedAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs != nil {
		t.Fatalf("expected nil output, got %v", vecs)
	}
}

func TestEmbedAllNoProvider(t *testing.T) {
	c := NewClient(nil, 2, 4, 1)
	_, err := c.EmbedAll(context.Background(), texts(1))
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestEmbedOne(t *testing.T) {
	c := NewClient(&fakeEmbedder{dim: 4}, 2, 4, 1)
	vec, err := c.EmbedOne(context.Background(), "query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected dim 4, got %d", len(vec))
	}
}
