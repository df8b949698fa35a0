// Package retriever embeds queries and fetches the most relevant
// chunks from the vector index.
package retriever

import (
	"context"
	"fmt"

	"github.com/quarrylabs/quarry/internal/embedding"
	"github.com/quarrylabs/quarry/internal/logger"
	"github.com/quarrylabs/quarry/internal/vector"
)

// InvalidQueryError indicates a query that cannot be executed, such as
// a non-positive k or empty query text.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

// Retriever performs filtered similarity retrieval.
type Retriever struct {
	embedder *embedding.Client
	index    vector.Index
	defaultK int
}

// New creates a retriever. defaultK is what DefaultK reports to callers
// that want a configured fallback; Retrieve itself takes k as given.
func New(embedder *embedding.Client, index vector.Index, defaultK int) *Retriever {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &Retriever{embedder: embedder, index: index, defaultK: defaultK}
}

// DefaultK returns the configured result count for callers that did not
// ask for a specific k.
func (r *Retriever) DefaultK() int { return r.defaultK }

// Retrieve embeds query and returns up to k matching chunks ordered by
// similarity. k must be positive; resolving "use the default" happens
// at the caller. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter vector.Filter) ([]vector.Result, error) {
	if query == "" {
		return nil, &InvalidQueryError{Reason: "empty query text"}
	}
	if k <= 0 {
		return nil, &InvalidQueryError{Reason: fmt.Sprintf("k must be positive, got %d", k)}
	}

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := r.index.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, err
	}
	logger.Debug("retrieved %d chunks for query (k=%d)", len(results), k)
	return results, nil
}

// Browse returns chunks by filter alone, without similarity ranking.
// Summaries use this to pull a document's chunks directly.
func (r *Retriever) Browse(ctx context.Context, filter vector.Filter, limit int) ([]vector.Result, error) {
	if limit <= 0 {
		return nil, &InvalidQueryError{Reason: fmt.Sprintf("limit must be positive, got %d", limit)}
	}
	return r.index.Scroll(ctx, filter, limit)
}
