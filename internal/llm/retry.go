package llm

import (
	"context"
	"time"

	"github.com/quarrylabs/quarry/internal/retry"
)

// RetryProvider wraps a Provider with the shared retry policy. Both
// completions and embeddings go through the same policy so backoff
// behavior is uniform across the pipeline.
type RetryProvider struct {
	inner  Provider
	policy retry.Policy
}

// NewRetryProvider wraps an existing provider with retry logic.
func NewRetryProvider(inner Provider, policy retry.Policy) *RetryProvider {
	return &RetryProvider{inner: inner, policy: policy}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

// Complete sends a prompt with timeout and retry logic.
func (r *RetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	var resp *Response
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = r.inner.Complete(ctx, prompt, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Embed sends an embedding request with timeout and retry logic.
func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = r.inner.Embed(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// WrapWithRetry wraps a provider with retry logic from config.
func WrapWithRetry(provider Provider, cfg ProviderConfig) Provider {
	if provider == nil {
		return nil
	}

	policy := retry.DefaultPolicy()
	if cfg.Timeout > 0 {
		policy.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries + 1
	}
	if cfg.RetryDelay > 0 {
		policy.BaseDelay = cfg.RetryDelay
	}
	if policy.MaxDelay == 0 {
		policy.MaxDelay = 30 * time.Second
	}

	return NewRetryProvider(provider, policy)
}
