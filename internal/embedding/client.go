// Package embedding turns chunk text into fixed-dimension vectors,
// batching requests against the configured LLM provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/internal/llm"
	"github.com/quarrylabs/quarry/internal/logger"
	"github.com/quarrylabs/quarry/internal/observability"
)

// ProviderError wraps an upstream embedding failure with the provider
// name and the batch it was working on.
type ProviderError struct {
	Provider string
	Batch    int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: batch %d: %v", e.Provider, e.Batch, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Client batches embedding requests and enforces the index dimension.
type Client struct {
	provider    llm.Provider
	batchSize   int
	dimension   int
	concurrency int
}

// NewClient creates an embedding client. Dimension 0 disables the
// dimension check (useful when the provider decides it).
func NewClient(provider llm.Provider, batchSize, dimension, concurrency int) *Client {
	if batchSize <= 0 {
		batchSize = 32
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{
		provider:    provider,
		batchSize:   batchSize,
		dimension:   dimension,
		concurrency: concurrency,
	}
}

// Dimension returns the expected vector dimension (0 = unchecked).
func (c *Client) Dimension() int { return c.dimension }

// EmbedOne embeds a single text, typically a query.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// embedBatch runs a single provider call under an embed span and
// records the batch metrics.
func (c *Client) embedBatch(ctx context.Context, index int, texts []string) ([][]float32, error) {
	ctx, span := observability.StartEmbedSpan(ctx, c.provider.Name(), len(texts))
	defer span.End()

	m := observability.Metrics()
	start := time.Now()
	vecs, err := c.provider.Embed(ctx, texts)
	m.EmbedBatchesTotal.Inc()
	m.EmbedDuration.ObserveDuration(start)

	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts))
	}
	if err != nil {
		perr := &ProviderError{Provider: c.provider.Name(), Batch: index, Err: err}
		m.EmbedErrorsTotal.Inc()
		observability.RecordError(span, perr)
		return nil, perr
	}
	return vecs, nil
}

// EmbedAll embeds texts in order, splitting them into batches. Batches
// run concurrently up to the configured limit; output order always
// matches input order. The first failed batch aborts the call.
func (c *Client) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.provider == nil {
		return nil, &ProviderError{Provider: "none", Err: fmt.Errorf("no embedding provider configured")}
	}

	type batch struct {
		index int
		start int
		texts []string
	}
	var batches []batch
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{index: len(batches), start: start, texts: texts[start:end]})
	}
	logger.Debug("embedding %d texts in %d batches", len(texts), len(batches))

	out := make([][]float32, len(texts))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, c.concurrency)
	errCh := make(chan error, len(batches))
	var wg sync.WaitGroup

	for _, b := range batches {
		wg.Add(1)
		go func(b batch) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}

			vecs, err := c.embedBatch(ctx, b.index, b.texts)
			if err != nil {
				errCh <- err
				cancel()
				return
			}
			for i, v := range vecs {
				if c.dimension > 0 && len(v) != c.dimension {
					errCh <- &ProviderError{
						Provider: c.provider.Name(),
						Batch:    b.index,
						Err:      fmt.Errorf("vector dimension %d, expected %d", len(v), c.dimension),
					}
					cancel()
					return
				}
				out[b.start+i] = v
			}
		}(b)
	}

	wg.Wait()
	close(errCh)

	// Prefer the provider failure over the cancellations it caused.
	var firstErr error
	for err := range errCh {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
