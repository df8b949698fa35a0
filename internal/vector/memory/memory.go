// Package memory provides an in-process vector.Index used by tests and
// by retrieval-only runs that have no Qdrant available.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/quarrylabs/quarry/internal/vector"
)

// Index is an in-memory cosine-similarity index.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]vector.Entry
}

var _ vector.Index = (*Index)(nil)

// New creates an empty in-memory index.
func New() *Index {
	return &Index{entries: make(map[string]vector.Entry)}
}

func (i *Index) EnsureCollection(_ context.Context, dimension int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.dimension != 0 && i.dimension != dimension {
		return &vector.DimensionMismatchError{Want: i.dimension, Got: dimension}
	}
	i.dimension = dimension
	return nil
}

func (i *Index) Upsert(_ context.Context, entries []vector.Entry) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, e := range entries {
		if i.dimension != 0 && len(e.Vector) != i.dimension {
			return &vector.DimensionMismatchError{Want: i.dimension, Got: len(e.Vector)}
		}
		i.entries[e.ID] = e
	}
	return nil
}

func (i *Index) Search(_ context.Context, query []float32, k int, filter vector.Filter) ([]vector.Result, error) {
	if i.dimension != 0 && len(query) != i.dimension {
		return nil, &vector.DimensionMismatchError{Want: i.dimension, Got: len(query)}
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	var results []vector.Result
	for _, e := range i.entries {
		if !matches(e.Payload, filter) {
			continue
		}
		results = append(results, vector.Result{
			ID:      e.ID,
			Score:   cosine(query, e.Vector),
			Payload: e.Payload,
		})
	}
	sort.Slice(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (i *Index) Scroll(_ context.Context, filter vector.Filter, limit int) ([]vector.Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var results []vector.Result
	for _, e := range i.entries {
		if !matches(e.Payload, filter) {
			continue
		}
		results = append(results, vector.Result{ID: e.ID, Payload: e.Payload})
	}
	// Stable order for callers assembling context windows.
	sort.Slice(results, func(a, b int) bool {
		if results[a].Payload.Source != results[b].Payload.Source {
			return results[a].Payload.Source < results[b].Payload.Source
		}
		return results[a].Payload.Ordinal < results[b].Payload.Ordinal
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (i *Index) Count(_ context.Context) (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return uint64(len(i.entries)), nil
}

func (i *Index) DeleteCollection(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = make(map[string]vector.Entry)
	i.dimension = 0
	return nil
}

func (i *Index) Close() error { return nil }

func matches(p vector.Payload, f vector.Filter) bool {
	if f.Source != "" && p.Source != f.Source {
		return false
	}
	if f.Year != 0 {
		found := false
		for _, y := range p.Years {
			if y == f.Year {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Financial != nil && p.Financial != *f.Financial {
		return false
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
