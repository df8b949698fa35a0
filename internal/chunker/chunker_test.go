package chunker

import (
	"strings"
	"testing"

	"github.com/quarrylabs/quarry/internal/document"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	c := New(1000, 200)
	doc := &document.Document{ID: "report.pdf", Pages: []document.Page{{Number: 1, Text: "short text"}}}

	chunks := c.Split(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "short text" {
		t.Errorf("unexpected text: %q", chunks[0].Text)
	}
	if chunks[0].DocumentID != "report.pdf" || chunks[0].Page != 1 || chunks[0].Ordinal != 0 {
		t.Errorf("unexpected chunk fields: %+v", chunks[0])
	}
}

func TestSplitRespectsMaxSize(t *testing.T) {
	c := New(100, 20)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 50)
	doc := &document.Document{ID: "d", Pages: []document.Page{{Number: 1, Text: text}}}

	chunks := c.Split(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Text) > c.MaxChunkSize {
			t.Errorf("chunk %d exceeds max size: %d > %d", i, len(ch.Text), c.MaxChunkSize)
		}
	}
}

func TestSplitCoversAllContent(t *testing.T) {
	c := New(80, 16)
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel",
		"india", "juliett", "kilo", "lima", "mike", "november", "oscar", "papa",
		"quebec", "romeo", "sierra", "tango", "uniform", "victor", "whiskey", "xray"}
	text := strings.Join(words, " ")
	doc := &document.Document{ID: "d", Pages: []document.Page{{Number: 1, Text: text}}}

	chunks := c.Split(doc)
	joined := ""
	for _, ch := range chunks {
		joined += ch.Text + " "
	}
	for _, w := range words {
		if !strings.Contains(joined, w) {
			t.Errorf("word %q lost during chunking", w)
		}
	}
}

func TestSplitOverlapShared(t *testing.T) {
	c := New(100, 30)
	text := strings.Repeat("lorem ipsum dolor sit amet consectetur. ", 20)
	doc := &document.Document{ID: "d", Pages: []document.Page{{Number: 1, Text: text}}}

	chunks := c.Split(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1].Text, chunks[i].Text
		shared := false
		for n := c.Overlap; n >= 5; n-- {
			if n > len(prev) || n > len(cur) {
				continue
			}
			if strings.Contains(cur[:min(len(cur), c.Overlap+10)], strings.TrimSpace(prev[len(prev)-n:])) {
				shared = true
				break
			}
		}
		if !shared {
			t.Errorf("chunks %d and %d share no overlap:\nprev: %q\ncur:  %q", i-1, i, prev, cur)
		}
	}
}

func TestSplitHardCutWithoutSeparators(t *testing.T) {
	c := New(50, 10)
	text := strings.Repeat("x", 500)
	doc := &document.Document{ID: "d", Pages: []document.Page{{Number: 1, Text: text}}}

	chunks := c.Split(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Text) > 50 {
			t.Errorf("chunk %d exceeds max: %d", i, len(ch.Text))
		}
	}
}

func TestSplitEmptyPageProducesNothing(t *testing.T) {
	c := New(1000, 200)
	doc := &document.Document{ID: "d", Pages: []document.Page{{Number: 1, Text: "   \n  "}}}

	if chunks := c.Split(doc); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestSplitDeterministicIDs(t *testing.T) {
	c := New(1000, 200)
	doc := &document.Document{ID: "annual.pdf", Pages: []document.Page{{Number: 1, Text: "some report text"}}}

	a := c.Split(doc)
	b := c.Split(doc)
	if a[0].ID != b[0].ID {
		t.Errorf("expected identical IDs on re-split, got %q vs %q", a[0].ID, b[0].ID)
	}

	other := &document.Document{ID: "other.pdf", Pages: doc.Pages}
	o := c.Split(other)
	if o[0].ID == a[0].ID {
		t.Error("expected different documents to yield different chunk IDs")
	}
}

func TestSplitOrdinalsAcrossPages(t *testing.T) {
	c := New(1000, 200)
	doc := &document.Document{ID: "d", Pages: []document.Page{
		{Number: 1, Text: "page one"},
		{Number: 2, Text: "page two"},
	}}

	chunks := c.Split(doc)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Ordinal != 0 || chunks[1].Ordinal != 1 {
		t.Errorf("expected ordinals 0,1, got %d,%d", chunks[0].Ordinal, chunks[1].Ordinal)
	}
	if chunks[1].Page != 2 {
		t.Errorf("expected page 2, got %d", chunks[1].Page)
	}
}

func TestNewClampsInvalidSizes(t *testing.T) {
	c := New(0, -1)
	if c.MaxChunkSize != 1000 {
		t.Errorf("expected default 1000, got %d", c.MaxChunkSize)
	}
	if c.Overlap != 200 {
		t.Errorf("expected default 200, got %d", c.Overlap)
	}

	c = New(100, 100)
	if c.Overlap >= c.MaxChunkSize {
		t.Errorf("overlap %d must be below max %d", c.Overlap, c.MaxChunkSize)
	}
}
