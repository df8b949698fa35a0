// Package temporal hosts the durable ingestion workflow. Long document
// batches survive worker restarts; each document ingests in its own
// activity with independent retries.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"
)

// IngestInput holds the workflow parameters.
type IngestInput struct {
	Dir          string
	SkipMetadata bool
}

// IngestOutput aggregates the per-document results.
type IngestOutput struct {
	Directory string
	Succeeded int
	Failed    int
	Chunks    int
	Documents []DocumentResult
}

// IngestDirectoryWorkflow ingests every supported file under a
// directory. Documents run as parallel activities; a single bad file
// never fails the batch.
func IngestDirectoryWorkflow(ctx workflow.Context, input IngestInput) (*IngestOutput, error) {
	if input.Dir == "" {
		return nil, fmt.Errorf("ingest directory is required")
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var paths []string
	if err := workflow.ExecuteActivity(ctx, ListDocumentsActivity, input).Get(ctx, &paths); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	futures := make([]workflow.Future, len(paths))
	for i, path := range paths {
		futures[i] = workflow.ExecuteActivity(ctx, IngestDocumentActivity, path, input)
	}

	output := &IngestOutput{Directory: input.Dir}
	for i, f := range futures {
		var result DocumentResult
		if err := f.Get(ctx, &result); err != nil {
			// Retries exhausted; record the failure and keep going.
			result = DocumentResult{Name: paths[i], Error: err.Error()}
		}
		output.Documents = append(output.Documents, result)
		if result.Error == "" {
			output.Succeeded++
			output.Chunks += result.Chunks
		} else {
			output.Failed++
		}
	}
	return output, nil
}
