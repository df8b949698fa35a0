package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	value float64
	mu    sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name  string
	help  string
	value float64
	mu    sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram.
func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns default histogram buckets for latency.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records a duration in the histogram.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler returns an HTTP handler for Prometheus metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes metrics in Prometheus text format.
func (r *MetricsRegistry) WritePrometheus(w http.ResponseWriter) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.counters {
		c.mu.Lock()
		writeMetric(w, c.name, "counter", c.help, c.value)
		c.mu.Unlock()
	}
	for _, g := range r.gauges {
		g.mu.Lock()
		writeMetric(w, g.name, "gauge", g.help, g.value)
		g.mu.Unlock()
	}
	for _, h := range r.histos {
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func writeMetric(w http.ResponseWriter, name, metricType, help string, value float64) {
	w.Write([]byte("# HELP " + name + " " + help + "\n"))
	w.Write([]byte("# TYPE " + name + " " + metricType + "\n"))
	w.Write([]byte(name + " " + formatFloat(value) + "\n"))
}

func writeHistogram(w http.ResponseWriter, h *Histogram) {
	w.Write([]byte("# HELP " + h.name + " " + h.help + "\n"))
	w.Write([]byte("# TYPE " + h.name + " histogram\n"))

	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		w.Write([]byte(h.name + "_bucket{le=\"" + formatFloat(bound) + "\"} "))
		w.Write([]byte(strconv.FormatUint(cumulative, 10) + "\n"))
	}

	w.Write([]byte(h.name + "_bucket{le=\"+Inf\"} " + strconv.FormatUint(h.count, 10) + "\n"))
	w.Write([]byte(h.name + "_sum " + formatFloat(h.sum) + "\n"))
	w.Write([]byte(h.name + "_count " + strconv.FormatUint(h.count, 10) + "\n"))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PipelineMetrics contains the pipeline's metrics.
type PipelineMetrics struct {
	Registry *MetricsRegistry

	// Ingestion
	DocumentsIngestedTotal *Counter
	DocumentsFailedTotal   *Counter
	ChunksIndexedTotal     *Counter
	IngestDuration         *Histogram
	ActiveIngestWorkers    *Gauge

	// Embedding
	EmbedBatchesTotal *Counter
	EmbedErrorsTotal  *Counter
	EmbedDuration     *Histogram

	// Retrieval
	SearchesTotal  *Counter
	SearchDuration *Histogram

	// Generation
	LLMRequestsTotal *Counter
	LLMTokensTotal   *Counter
	LLMErrorsTotal   *Counter
	LLMDuration      *Histogram
}

// NewPipelineMetrics creates the pipeline metrics set.
func NewPipelineMetrics() *PipelineMetrics {
	r := NewMetricsRegistry()

	return &PipelineMetrics{
		Registry: r,

		DocumentsIngestedTotal: r.NewCounter("quarry_documents_ingested_total", "Documents successfully ingested"),
		DocumentsFailedTotal:   r.NewCounter("quarry_documents_failed_total", "Documents that failed ingestion"),
		ChunksIndexedTotal:     r.NewCounter("quarry_chunks_indexed_total", "Chunks written to the vector index"),
		IngestDuration:         r.NewHistogram("quarry_ingest_duration_seconds", "Per-document ingestion duration", nil),
		ActiveIngestWorkers:    r.NewGauge("quarry_active_ingest_workers", "Documents currently being ingested"),

		EmbedBatchesTotal: r.NewCounter("quarry_embed_batches_total", "Embedding batches sent"),
		EmbedErrorsTotal:  r.NewCounter("quarry_embed_errors_total", "Embedding batches that failed"),
		EmbedDuration:     r.NewHistogram("quarry_embed_duration_seconds", "Embedding call duration", nil),

		SearchesTotal:  r.NewCounter("quarry_searches_total", "Vector searches executed"),
		SearchDuration: r.NewHistogram("quarry_search_duration_seconds", "Vector search duration", nil),

		LLMRequestsTotal: r.NewCounter("quarry_llm_requests_total", "LLM completion requests"),
		LLMTokensTotal:   r.NewCounter("quarry_llm_tokens_total", "Total tokens used"),
		LLMErrorsTotal:   r.NewCounter("quarry_llm_errors_total", "LLM request failures"),
		LLMDuration:      r.NewHistogram("quarry_llm_duration_seconds", "LLM request duration", nil),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *PipelineMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordIngest records one document's ingestion outcome.
func (m *PipelineMetrics) RecordIngest(duration time.Duration, chunks int, err error) {
	m.IngestDuration.Observe(duration.Seconds())
	if err != nil {
		m.DocumentsFailedTotal.Inc()
		return
	}
	m.DocumentsIngestedTotal.Inc()
	m.ChunksIndexedTotal.Add(float64(chunks))
}

// RecordLLMRequest records an LLM completion.
func (m *PipelineMetrics) RecordLLMRequest(duration time.Duration, tokens int, err error) {
	m.LLMRequestsTotal.Inc()
	m.LLMDuration.Observe(duration.Seconds())
	m.LLMTokensTotal.Add(float64(tokens))
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}

// RecordSearch records a vector search.
func (m *PipelineMetrics) RecordSearch(duration time.Duration) {
	m.SearchesTotal.Inc()
	m.SearchDuration.Observe(duration.Seconds())
}

// Global metrics instance
var globalMetrics *PipelineMetrics
var metricsOnce sync.Once

// Metrics returns the global metrics instance.
func Metrics() *PipelineMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPipelineMetrics()
	})
	return globalMetrics
}
