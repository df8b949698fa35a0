package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/quarrylabs/quarry/internal/vector"
)

func boolPtr(b bool) *bool { return &b }

func seed(t *testing.T) *Index {
	t.Helper()
	idx := New()
	ctx := context.Background()
	if err := idx.EnsureCollection(ctx, 3); err != nil {
		t.Fatal(err)
	}
	entries := []vector.Entry{
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: vector.Payload{Text: "alpha", Source: "x.pdf", Years: []int{2020}, Financial: true, Ordinal: 0}},
		{ID: "b", Vector: []float32{0, 1, 0}, Payload: vector.Payload{Text: "bravo", Source: "x.pdf", Years: []int{2021}, Ordinal: 1}},
		{ID: "c", Vector: []float32{0.9, 0.1, 0}, Payload: vector.Payload{Text: "charlie", Source: "y.pdf", Years: []int{2020, 2021}, Financial: true, Ordinal: 0}},
	}
	if err := idx.Upsert(ctx, entries); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestSearchOrdersByScore(t *testing.T) {
	idx := seed(t)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 3, vector.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "c" {
		t.Errorf("expected order a, c first, got %s, %s", results[0].ID, results[1].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by descending score at %d", i)
		}
	}
}

func TestSearchRespectsK(t *testing.T) {
	idx := seed(t)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1, vector.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestSearchFilters(t *testing.T) {
	idx := seed(t)
	ctx := context.Background()

	bySource, err := idx.Search(ctx, []float32{1, 0, 0}, 10, vector.Filter{Source: "y.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bySource) != 1 || bySource[0].ID != "c" {
		t.Errorf("source filter: expected [c], got %v", bySource)
	}

	byYear, err := idx.Search(ctx, []float32{1, 0, 0}, 10, vector.Filter{Year: 2021})
	if err != nil {
		t.Fatal(err)
	}
	if len(byYear) != 2 {
		t.Errorf("year filter: expected 2 results, got %d", len(byYear))
	}

	financial, err := idx.Search(ctx, []float32{1, 0, 0}, 10, vector.Filter{Financial: boolPtr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if len(financial) != 2 {
		t.Errorf("financial filter: expected 2 results, got %d", len(financial))
	}

	combined, err := idx.Search(ctx, []float32{1, 0, 0}, 10, vector.Filter{Source: "x.pdf", Financial: boolPtr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if len(combined) != 1 || combined[0].ID != "a" {
		t.Errorf("combined filter: expected [a], got %v", combined)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	idx := seed(t)
	ctx := context.Background()

	err := idx.Upsert(ctx, []vector.Entry{
		{ID: "a", Vector: []float32{0, 0, 1}, Payload: vector.Payload{Text: "alpha v2", Source: "x.pdf"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	n, _ := idx.Count(ctx)
	if n != 3 {
		t.Fatalf("expected 3 entries after overwrite, got %d", n)
	}

	results, _ := idx.Search(ctx, []float32{0, 0, 1}, 1, vector.Filter{})
	if results[0].ID != "a" || results[0].Payload.Text != "alpha v2" {
		t.Errorf("expected overwritten entry, got %+v", results[0])
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	idx := seed(t)

	err := idx.Upsert(context.Background(), []vector.Entry{{ID: "bad", Vector: []float32{1, 2}}})
	var dim *vector.DimensionMismatchError
	if !errors.As(err, &dim) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dim.Want != 3 || dim.Got != 2 {
		t.Errorf("expected want=3 got=2, have %+v", dim)
	}
}

func TestEnsureCollectionDimensionConflict(t *testing.T) {
	idx := seed(t)

	err := idx.EnsureCollection(context.Background(), 5)
	var dim *vector.DimensionMismatchError
	if !errors.As(err, &dim) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}

func TestScrollFilterOnly(t *testing.T) {
	idx := seed(t)

	results, err := idx.Scroll(context.Background(), vector.Filter{Financial: boolPtr(true)}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Ordered by source then ordinal.
	if results[0].Payload.Source != "x.pdf" || results[1].Payload.Source != "y.pdf" {
		t.Errorf("unexpected scroll order: %v", results)
	}
}

func TestDeleteCollection(t *testing.T) {
	idx := seed(t)
	ctx := context.Background()

	if err := idx.DeleteCollection(ctx); err != nil {
		t.Fatal(err)
	}
	n, _ := idx.Count(ctx)
	if n != 0 {
		t.Fatalf("expected empty index, got %d entries", n)
	}

	// Collection can be recreated with a different dimension.
	if err := idx.EnsureCollection(ctx, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
