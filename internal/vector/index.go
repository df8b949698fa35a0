// Package vector defines the similarity index the pipeline stores
// chunk embeddings in, plus the error types its implementations share.
package vector

import (
	"context"
	"fmt"
)

// Payload is the metadata stored alongside each vector. Filters match
// against these fields.
type Payload struct {
	Text      string `json:"text"`
	Source    string `json:"source"`
	Page      int    `json:"page"`
	Years     []int  `json:"years,omitempty"`
	Financial bool   `json:"financial"`
	Ordinal   int    `json:"ordinal"`
}

// Entry is a vector plus payload, keyed by a stable ID. Upserting the
// same ID twice overwrites.
type Entry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Result is a search hit with its similarity score.
type Result struct {
	ID      string
	Score   float32
	Payload Payload
}

// Filter restricts search and scroll to matching payloads. Zero values
// mean no constraint on that field.
type Filter struct {
	Source    string
	Year      int   // matches membership in Payload.Years
	Financial *bool // nil = no constraint
}

// Empty reports whether the filter constrains nothing.
func (f Filter) Empty() bool {
	return f.Source == "" && f.Year == 0 && f.Financial == nil
}

// Index is a similarity index over chunk embeddings.
type Index interface {
	// EnsureCollection creates the collection if needed and verifies
	// its dimension matches. The single place dimension is enforced.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert writes entries, overwriting existing IDs.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns up to k nearest entries to the query vector that
	// match the filter, ordered by descending score.
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error)

	// Scroll returns up to limit entries matching the filter without a
	// query vector. Used for filter-only retrieval like summaries.
	Scroll(ctx context.Context, filter Filter, limit int) ([]Result, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (uint64, error)

	// DeleteCollection drops the collection and all entries.
	DeleteCollection(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// DimensionMismatchError indicates a vector whose dimension does not
// match the collection.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: collection expects %d, got %d", e.Want, e.Got)
}

// UnavailableError indicates the index backend cannot be reached.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("vector index %s unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
