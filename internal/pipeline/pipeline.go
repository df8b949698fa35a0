// Package pipeline is the application controller. It composes the
// loader, chunker, embedder, index, retriever, memory, and generator
// into the ingestion and answer operations the CLI and worker expose.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/quarrylabs/quarry/internal/catalog"
	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/document"
	"github.com/quarrylabs/quarry/internal/embedding"
	"github.com/quarrylabs/quarry/internal/generator"
	"github.com/quarrylabs/quarry/internal/logger"
	"github.com/quarrylabs/quarry/internal/memory"
	"github.com/quarrylabs/quarry/internal/observability"
	"github.com/quarrylabs/quarry/internal/retriever"
	"github.com/quarrylabs/quarry/internal/vector"
)

// Deps are the pipeline's collaborators, wired explicitly by main.
// Catalog may be nil; lineage recording is then skipped.
type Deps struct {
	Loader    *document.Loader
	Chunker   *chunker.Chunker
	Embedder  *embedding.Client
	Index     vector.Index
	Retriever *retriever.Retriever
	Generator *generator.Generator
	Sessions  *memory.SessionStore
	Catalog   catalog.Repository

	Collection string
	Dimension  int
}

// IngestOptions tunes a single ingestion run.
type IngestOptions struct {
	// Concurrency bounds how many documents ingest in parallel
	// (default 4).
	Concurrency int
	// SkipMetadata drops year and financial tags from chunk payloads.
	SkipMetadata bool
}

// Request is a query or chat request. K == 0 means the retriever's
// configured default; negative values are rejected.
type Request struct {
	Query     string
	K         int
	Year      int
	Financial *bool
	Session   string
}

// App runs the pipeline operations.
type App struct {
	deps    Deps
	metrics *observability.PipelineMetrics
	audit   *observability.AuditLogger
}

// New creates the application controller.
func New(deps Deps) *App {
	return &App{
		deps:    deps,
		metrics: observability.Metrics(),
		audit:   observability.Audit(),
	}
}

// Ingest loads every supported file under dir and indexes it. Failures
// of individual documents are recorded in the report; a dimension
// mismatch or an unreachable index aborts the run.
func (a *App) Ingest(ctx context.Context, dir string, opts IngestOptions) (*IngestReport, error) {
	if err := a.deps.Index.EnsureCollection(ctx, a.deps.Dimension); err != nil {
		return nil, err
	}

	paths, err := a.deps.Loader.List(dir)
	if err != nil {
		return nil, err
	}
	a.audit.LogIngestStart(dir, len(paths))

	report := &IngestReport{
		Directory: dir,
		StartedAt: time.Now().UTC(),
		Documents: make([]DocumentReport, len(paths)),
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for idx, path := range paths {
		wg.Add(1)
		go func(idx int, path string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				report.Documents[idx] = DocumentReport{Name: filepath.Base(path), Error: ctx.Err().Error()}
				return
			}

			doc := a.ingestOne(ctx, path, opts)
			report.Documents[idx] = doc

			// An unreachable index will fail every remaining document
			// the same way; stop instead of hammering it.
			if !doc.OK() && doc.fatal {
				cancel()
			}
		}(idx, path)
	}
	wg.Wait()

	for _, d := range report.Documents {
		if d.OK() {
			report.Succeeded++
			report.ChunksUpserted += d.Chunks
		} else {
			report.Failed++
		}
	}
	report.Duration = time.Since(report.StartedAt)
	a.audit.LogIngestComplete(report.Succeeded, report.Failed, report.ChunksUpserted, report.Duration)
	return report, nil
}

// IngestFile ingests a single file. The durable ingestion workflow
// schedules documents one at a time and uses this instead of Ingest.
func (a *App) IngestFile(ctx context.Context, path string, opts IngestOptions) (DocumentReport, error) {
	if err := a.deps.Index.EnsureCollection(ctx, a.deps.Dimension); err != nil {
		return DocumentReport{}, err
	}
	return a.ingestOne(ctx, path, opts), nil
}

// ingestOne runs the load, chunk, embed, upsert, catalog sequence for a
// single file.
func (a *App) ingestOne(ctx context.Context, path string, opts IngestOptions) DocumentReport {
	name := filepath.Base(path)
	start := time.Now()

	ctx, span := observability.StartIngestSpan(ctx, name)
	defer span.End()
	a.metrics.ActiveIngestWorkers.Inc()
	defer a.metrics.ActiveIngestWorkers.Dec()

	fail := func(err error) DocumentReport {
		observability.RecordError(span, err)
		a.metrics.RecordIngest(time.Since(start), 0, err)
		a.audit.LogIngestDocument(name, 0, time.Since(start), err)
		var unavailable *vector.UnavailableError
		return DocumentReport{
			Name:     name,
			Duration: time.Since(start),
			Error:    err.Error(),
			fatal:    errors.As(err, &unavailable),
		}
	}

	doc, err := a.deps.Loader.Load(ctx, path)
	if err != nil {
		return fail(err)
	}

	chunks := a.deps.Chunker.Split(doc)
	if opts.SkipMetadata {
		for i := range chunks {
			chunks[i].Meta.Years = nil
			chunks[i].Meta.Financial = false
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := a.deps.Embedder.EmbedAll(ctx, texts)
	if err != nil {
		return fail(err)
	}

	entries := make([]vector.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vector.Entry{
			ID:     c.ID,
			Vector: vecs[i],
			Payload: vector.Payload{
				Text:      c.Text,
				Source:    c.Meta.Source,
				Page:      c.Page,
				Years:     c.Meta.Years,
				Financial: c.Meta.Financial,
				Ordinal:   c.Ordinal,
			},
		}
	}
	if err := a.deps.Index.Upsert(ctx, entries); err != nil {
		return fail(err)
	}

	a.record(ctx, doc, chunks)

	observability.RecordIngestResult(span, len(doc.Pages), len(chunks))
	a.metrics.RecordIngest(time.Since(start), len(chunks), nil)
	a.audit.LogIngestDocument(name, len(chunks), time.Since(start), nil)
	return DocumentReport{
		Name:     name,
		Pages:    len(doc.Pages),
		Chunks:   len(chunks),
		Duration: time.Since(start),
	}
}

// record writes lineage to the catalog. Catalog failures degrade to a
// warning; the index is the source of truth.
func (a *App) record(ctx context.Context, doc *document.Document, chunks []chunker.Chunk) {
	if a.deps.Catalog == nil {
		return
	}

	yearSet := make(map[int]bool)
	records := make([]catalog.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = catalog.ChunkRecord{
			ID:        c.ID,
			Ordinal:   c.Ordinal,
			Page:      c.Page,
			Years:     c.Meta.Years,
			Financial: c.Meta.Financial,
		}
		for _, y := range c.Meta.Years {
			yearSet[y] = true
		}
	}
	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}

	info := catalog.DocumentInfo{
		ID:         doc.ID,
		Name:       doc.Name,
		Pages:      len(doc.Pages),
		Chunks:     len(chunks),
		Years:      years,
		IngestedAt: doc.LoadedAt,
	}
	if err := a.deps.Catalog.RecordDocument(ctx, info, records); err != nil {
		logger.Warn("catalog: record %s: %v", doc.ID, err)
	}
}

// Query answers a one-shot question from the index.
func (a *App) Query(ctx context.Context, req Request) (*generator.Result, error) {
	results, err := a.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := observability.StartGenerateSpan(ctx, a.deps.Generator.ProviderName(), "query")
	defer span.End()

	res, err := a.deps.Generator.Answer(ctx, req.Query, results)
	a.finishGenerate(span, start, res, err)
	if err != nil {
		return nil, err
	}
	a.audit.LogQuery(observability.AuditEventQuery, req.Query, len(results), res.Tokens, time.Since(start))
	return res, nil
}

// Chat answers within a session's conversation. The exchange is
// recorded only after a successful answer, so a failed generation
// leaves the history exactly as it was.
func (a *App) Chat(ctx context.Context, req Request) (*generator.Result, error) {
	mem := a.session(req.Session)

	results, err := a.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := observability.StartGenerateSpan(ctx, a.deps.Generator.ProviderName(), "chat")
	defer span.End()

	res, err := a.deps.Generator.ChatAnswer(ctx, req.Query, results, mem)
	a.finishGenerate(span, start, res, err)
	if err != nil {
		return nil, err
	}

	mem.AppendExchange(req.Query, res.Answer)
	a.audit.LogQuery(observability.AuditEventChat, req.Query, len(results), res.Tokens, time.Since(start))
	return res, nil
}

// Summary produces a financial summary from financially-tagged chunks,
// optionally restricted to a year. k defaults to 10.
func (a *App) Summary(ctx context.Context, year, k int) (*generator.Result, error) {
	if k <= 0 {
		k = 10
	}
	financial := true
	filter := vector.Filter{Year: year, Financial: &financial}

	results, err := a.deps.Retriever.Browse(ctx, filter, k)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := observability.StartGenerateSpan(ctx, a.deps.Generator.ProviderName(), "summary")
	defer span.End()

	res, err := a.deps.Generator.Summarize(ctx, results)
	a.finishGenerate(span, start, res, err)
	if err != nil {
		return nil, err
	}
	a.audit.LogQuery(observability.AuditEventSummary, "", len(results), res.Tokens, time.Since(start))
	return res, nil
}

// History returns the retained conversation turns for a session.
func (a *App) History(session string) []memory.Turn {
	return a.session(session).History()
}

// ClearConversation drops a session's history.
func (a *App) ClearConversation(session string) {
	a.session(session).Clear()
}

// Documents lists the cataloged documents.
func (a *App) Documents(ctx context.Context) ([]catalog.DocumentInfo, error) {
	if a.deps.Catalog == nil {
		return nil, fmt.Errorf("no catalog configured")
	}
	return a.deps.Catalog.ListDocuments(ctx)
}

// Years returns every year mentioned across the cataloged corpus.
func (a *App) Years(ctx context.Context) ([]int, error) {
	if a.deps.Catalog == nil {
		return nil, fmt.Errorf("no catalog configured")
	}
	return a.deps.Catalog.Years(ctx)
}

// ResetCollection deletes all indexed data and recreates an empty
// collection. The catalog is cleared alongside.
func (a *App) ResetCollection(ctx context.Context) error {
	if err := a.deps.Index.DeleteCollection(ctx); err != nil {
		return err
	}
	if a.deps.Catalog != nil {
		if err := a.deps.Catalog.RemoveAll(ctx); err != nil {
			logger.Warn("catalog: clear: %v", err)
		}
	}
	a.audit.LogReset(a.deps.Collection)
	return a.deps.Index.EnsureCollection(ctx, a.deps.Dimension)
}

func (a *App) retrieve(ctx context.Context, req Request) ([]vector.Result, error) {
	// Request.K == 0 means "use the configured default"; the retriever
	// itself rejects non-positive k.
	if req.K == 0 {
		req.K = a.deps.Retriever.DefaultK()
	}
	filter := vector.Filter{Year: req.Year, Financial: req.Financial}

	start := time.Now()
	ctx, span := observability.StartSearchSpan(ctx, req.K, !filter.Empty())
	defer span.End()

	results, err := a.deps.Retriever.Retrieve(ctx, req.Query, req.K, filter)
	a.metrics.RecordSearch(time.Since(start))
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	top := float32(0)
	if len(results) > 0 {
		top = results[0].Score
	}
	observability.RecordSearchResult(span, len(results), top)
	return results, nil
}

func (a *App) finishGenerate(span trace.Span, start time.Time, res *generator.Result, err error) {
	tokens := 0
	if res != nil {
		tokens = res.Tokens
	}
	a.metrics.RecordLLMRequest(time.Since(start), tokens, err)
	observability.RecordGenerateMetrics(span, tokens, time.Since(start))
	if err != nil {
		observability.RecordError(span, err)
		var pe *generator.ProviderError
		if errors.As(err, &pe) {
			a.audit.LogLLMError(pe.Provider, err)
		}
	}
}

func (a *App) session(key string) *memory.Memory {
	if key == "" {
		key = "default"
	}
	return a.deps.Sessions.Get(key)
}
