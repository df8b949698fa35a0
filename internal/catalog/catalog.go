// Package catalog records document and chunk lineage so operators can
// see what the index holds without querying it vector by vector.
package catalog

import (
	"context"
	"time"
)

// DocumentInfo summarizes one ingested document.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	Years      []int     `json:"years,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// ChunkRecord is the lineage row written per chunk.
type ChunkRecord struct {
	ID        string
	Ordinal   int
	Page      int
	Years     []int
	Financial bool
}

// Repository stores ingestion lineage. A nil Repository is valid
// everywhere; ingestion then simply records nothing.
type Repository interface {
	// RecordDocument upserts a document and its chunk lineage.
	RecordDocument(ctx context.Context, doc DocumentInfo, chunks []ChunkRecord) error

	// ListDocuments returns all recorded documents with chunk counts.
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)

	// Years returns every year mentioned across the corpus, sorted.
	Years(ctx context.Context) ([]int, error)

	// RemoveAll clears the catalog, mirroring an index reset.
	RemoveAll(ctx context.Context) error

	Close(ctx context.Context) error
}
