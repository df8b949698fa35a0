package temporal

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/quarrylabs/quarry/internal/document"
	"github.com/quarrylabs/quarry/internal/pipeline"
)

// DocumentResult is the serializable per-document outcome.
type DocumentResult struct {
	Name   string
	Pages  int
	Chunks int
	Error  string
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	App    *pipeline.App
	Loader *document.Loader
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// ListDocumentsActivity enumerates the loadable files under the input
// directory.
func ListDocumentsActivity(ctx context.Context, input IngestInput) ([]string, error) {
	if deps == nil {
		return nil, fmt.Errorf("dependencies not set")
	}
	return deps.Loader.List(input.Dir)
}

// IngestDocumentActivity ingests a single file. Infrastructure
// failures return an error so Temporal retries them; malformed
// documents are terminal and reported in the result instead.
func IngestDocumentActivity(ctx context.Context, path string, input IngestInput) (DocumentResult, error) {
	if deps == nil {
		return DocumentResult{}, fmt.Errorf("dependencies not set")
	}

	report, err := deps.App.IngestFile(ctx, path, pipeline.IngestOptions{SkipMetadata: input.SkipMetadata})
	if err != nil {
		return DocumentResult{}, err
	}
	if report.Fatal() {
		return DocumentResult{}, fmt.Errorf("ingest %s: %s", filepath.Base(path), report.Error)
	}

	return DocumentResult{
		Name:   report.Name,
		Pages:  report.Pages,
		Chunks: report.Chunks,
		Error:  report.Error,
	}, nil
}
