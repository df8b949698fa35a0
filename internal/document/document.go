// Package document loads source files from disk and exposes them as
// page-addressed text ready for chunking.
package document

import (
	"fmt"
	"time"
)

// Page is the extracted text of a single page.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is a loaded source file. ID is the file's base name and acts
// as the stable source key throughout the pipeline.
type Document struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Pages    []Page    `json:"pages"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Text returns the document's full text with pages joined by newlines.
func (d *Document) Text() string {
	out := ""
	for i, p := range d.Pages {
		if i > 0 {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// Empty reports whether no page yielded any text.
func (d *Document) Empty() bool {
	for _, p := range d.Pages {
		if p.Text != "" {
			return false
		}
	}
	return true
}

// MalformedDocumentError indicates a file that exists but cannot be
// parsed. Ingestion records these and moves on to the next file.
type MalformedDocumentError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed document %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed document %s: %s", e.Path, e.Reason)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }
