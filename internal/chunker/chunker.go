// Package chunker splits documents into overlapping chunks sized for
// embedding, and tags each chunk with searchable metadata.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/quarrylabs/quarry/internal/document"
)

// chunkNamespace scopes deterministic chunk IDs. Re-ingesting the same
// document overwrites its points instead of duplicating them.
var chunkNamespace = uuid.MustParse("9f2c1e7a-4d3b-4f6e-8a1c-2b5d9e0f7a64")

// Metadata is the searchable payload attached to every chunk.
type Metadata struct {
	Source    string `json:"source"`
	Page      int    `json:"page"`
	Years     []int  `json:"years,omitempty"`
	Financial bool   `json:"financial"`
}

// Chunk is one embeddable slice of a document.
type Chunk struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	Ordinal    int      `json:"ordinal"`
	Page       int      `json:"page"`
	Text       string   `json:"text"`
	Meta       Metadata `json:"meta"`
}

// Chunker splits page text into chunks of at most MaxChunkSize
// characters, with consecutive chunks sharing an Overlap-sized tail.
type Chunker struct {
	MaxChunkSize int
	Overlap      int
}

// New creates a chunker. Invalid sizes fall back to 1000/200.
func New(maxChunkSize, overlap int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 1000
	}
	if overlap < 0 || overlap >= maxChunkSize {
		overlap = maxChunkSize / 5
	}
	return &Chunker{MaxChunkSize: maxChunkSize, Overlap: overlap}
}

// separators in priority order. Splitting prefers paragraph breaks,
// then lines, sentences, and words before cutting mid-word.
var separators = []string{"\n\n", "\n", ". ", " "}

// Split chunks a whole document, keeping page association and assigning
// deterministic IDs from (document, ordinal).
func (c *Chunker) Split(doc *document.Document) []Chunk {
	var chunks []Chunk
	ordinal := 0
	for _, page := range doc.Pages {
		for _, text := range c.splitText(page.Text) {
			id := uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", doc.ID, ordinal))).String()
			chunks = append(chunks, Chunk{
				ID:         id,
				DocumentID: doc.ID,
				Ordinal:    ordinal,
				Page:       page.Number,
				Text:       text,
				Meta:       ExtractMetadata(text, doc.ID, page.Number),
			})
			ordinal++
		}
	}
	return chunks
}

// splitText breaks text into pieces no larger than MaxChunkSize, then
// merges them back up with overlap carried between neighbors.
func (c *Chunker) splitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.MaxChunkSize {
		return []string{text}
	}

	// Pieces are capped below MaxChunkSize by the overlap so that a
	// merged chunk carrying an overlap tail still fits.
	hardMax := c.MaxChunkSize - c.Overlap
	pieces := split(text, separators, hardMax)
	return c.merge(pieces)
}

// split recursively divides text on the first separator that applies,
// falling back to a hard character cut when none fit.
func split(text string, seps []string, hardMax int) []string {
	if len(text) <= hardMax {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	if len(seps) == 0 {
		var out []string
		for len(text) > hardMax {
			out = append(out, text[:hardMax])
			text = text[hardMax:]
		}
		if strings.TrimSpace(text) != "" {
			out = append(out, text)
		}
		return out
	}

	sep := seps[0]
	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		return split(text, seps[1:], hardMax)
	}

	var out []string
	for _, part := range parts {
		out = append(out, split(part, seps[1:], hardMax)...)
	}
	return out
}

// merge packs pieces into chunks up to MaxChunkSize and seeds each new
// chunk with the tail of the previous one.
func (c *Chunker) merge(pieces []string) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		text := strings.TrimSpace(cur.String())
		if text != "" {
			chunks = append(chunks, text)
		}
		cur.Reset()
		if c.Overlap > 0 && len(chunks) > 0 {
			prev := chunks[len(chunks)-1]
			tail := prev
			if len(tail) > c.Overlap {
				tail = tail[len(tail)-c.Overlap:]
			}
			cur.WriteString(tail)
		}
	}

	for _, piece := range pieces {
		if cur.Len()+len(piece) > c.MaxChunkSize && cur.Len() > 0 {
			flush()
		}
		cur.WriteString(piece)
	}
	if text := strings.TrimSpace(cur.String()); text != "" {
		// Drop a trailing chunk that is pure overlap of the previous one.
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], text) {
			chunks = append(chunks, text)
		}
	}
	return chunks
}
