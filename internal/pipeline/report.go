package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// DocumentReport is one document's ingestion outcome.
type DocumentReport struct {
	Name     string        `json:"name"`
	Pages    int           `json:"pages"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration_ms"`
	Error    string        `json:"error,omitempty"`

	// fatal marks errors that would fail every remaining document too.
	fatal bool
}

// OK reports whether the document ingested cleanly.
func (d DocumentReport) OK() bool { return d.Error == "" }

// Fatal reports whether the failure was infrastructure-level, meaning a
// retry could succeed where reprocessing the same bytes would not.
func (d DocumentReport) Fatal() bool { return d.fatal }

// IngestReport aggregates an ingestion run. Failed documents appear in
// Documents with their error; the run as a whole still succeeds unless
// a fatal error aborted it.
type IngestReport struct {
	Directory      string           `json:"directory"`
	StartedAt      time.Time        `json:"started_at"`
	Duration       time.Duration    `json:"duration_ms"`
	Succeeded      int              `json:"succeeded"`
	Failed         int              `json:"failed"`
	ChunksUpserted int              `json:"chunks_upserted"`
	Documents      []DocumentReport `json:"documents"`
}

// JSON renders the report for machine consumption.
func (r *IngestReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// PrintSummary writes a human-readable report.
func (r *IngestReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "Ingested %s in %s\n", r.Directory, r.Duration.Round(time.Millisecond))
	for _, d := range r.Documents {
		if d.OK() {
			fmt.Fprintf(w, "  ok   %s (%d pages, %d chunks)\n", d.Name, d.Pages, d.Chunks)
		} else {
			fmt.Fprintf(w, "  FAIL %s: %s\n", d.Name, d.Error)
		}
	}
	fmt.Fprintf(w, "%d succeeded, %d failed, %d chunks indexed\n", r.Succeeded, r.Failed, r.ChunksUpserted)
}
