package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/quarrylabs/quarry/internal/logger"
)

// Loader reads documents from a directory. PDF files are extracted page
// by page; plain-text files (.txt, .md) load as a single page.
type Loader struct{}

// NewLoader creates a directory loader.
func NewLoader() *Loader {
	return &Loader{}
}

// supported reports whether the loader knows how to parse the file.
func supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// List returns the paths of loadable files under dir, sorted by name.
func (l *Loader) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !supported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadDir loads every supported file under dir. Malformed files are
// returned as errors alongside the documents that did load, so callers
// can report partial failures without aborting the batch.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]*Document, []error) {
	paths, err := l.List(dir)
	if err != nil {
		return nil, []error{err}
	}

	var docs []*Document
	var errs []error
	for _, path := range paths {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			return docs, errs
		}
		doc, err := l.Load(ctx, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errs
}

// Load reads a single file into a Document.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	name := filepath.Base(path)
	logger.Debug("loading %s", name)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var pages []Page
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		pages, err = extractPDF(data)
		if err != nil {
			return nil, &MalformedDocumentError{Path: path, Reason: "pdf parse failed", Err: err}
		}
	case ".txt", ".md":
		pages = []Page{{Number: 1, Text: string(data)}}
	default:
		return nil, &MalformedDocumentError{Path: path, Reason: "unsupported file type"}
	}

	doc := &Document{
		ID:       name,
		Name:     name,
		Path:     path,
		Pages:    pages,
		LoadedAt: time.Now().UTC(),
	}
	if doc.Empty() {
		return nil, &MalformedDocumentError{Path: path, Reason: "no extractable text"}
	}
	return doc, nil
}

// extractPDF pulls plain text out of each page. Pages that fail to
// decode are skipped rather than failing the whole document.
func extractPDF(data []byte) ([]Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []Page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Debug("page %d: extraction failed: %v", i, err)
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}
