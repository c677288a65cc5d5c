package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// gRPC Layer
	GRPCRequestsTotal   CounterVec
	GRPCRequestDuration HistogramVec

	// Resolver
	ResolveTotal          CounterVec
	ResolveDuration       HistogramVec
	EntitiesTotal         CounterVec
	StatisticalSpansTotal CounterVec
	FilterDecisionsTotal  CounterVec
	OverlapsTotal         CounterVec
	DocumentTokens        HistogramVec
	TablesReloadsTotal    CounterVec

	// Infrastructure Layer
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	SinkWritesTotal        CounterVec
	SinkWriteDuration      HistogramVec
	MessagesTotal          CounterVec
	MessageProcessDuration HistogramVec

	// System Health
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets    = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultResolveDurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}
	DefaultTokenCountBuckets      = []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000}
	DefaultSinkDurationBuckets    = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers all metrics and returns AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	// gRPC
	m.GRPCRequestsTotal = collector.RegisterCounter("grpc_requests_total", "Total gRPC requests", "method", "code")
	m.GRPCRequestDuration = collector.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration", DefaultHTTPDurationBuckets, "method")

	// Resolver
	m.ResolveTotal = collector.RegisterCounter("resolve_total", "Documents resolved by outcome", "status")
	m.ResolveDuration = collector.RegisterHistogram("resolve_duration_seconds", "Per-document resolution latency", DefaultResolveDurationBuckets, "status")
	m.EntitiesTotal = collector.RegisterCounter("entities_total", "Final entities by label", "label")
	m.StatisticalSpansTotal = collector.RegisterCounter("statistical_spans_total", "Statistical spans by outcome", "outcome")
	m.FilterDecisionsTotal = collector.RegisterCounter("filter_decisions_total", "Noise filter decisions by reason", "reason")
	m.OverlapsTotal = collector.RegisterCounter("overlaps_total", "Spans dropped for overlap", "stage")
	m.DocumentTokens = collector.RegisterHistogram("document_tokens", "Tagged tokens per document", DefaultTokenCountBuckets)
	m.TablesReloadsTotal = collector.RegisterCounter("tables_reloads_total", "Resolution table reloads", "status")

	// Infrastructure
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.SinkWritesTotal = collector.RegisterCounter("sink_writes_total", "Result sink writes", "sink", "status")
	m.SinkWriteDuration = collector.RegisterHistogram("sink_write_duration_seconds", "Result sink write latency", DefaultSinkDurationBuckets, "sink")
	m.MessagesTotal = collector.RegisterCounter("messages_total", "Worker messages by outcome", "topic", "status")
	m.MessageProcessDuration = collector.RegisterHistogram("message_process_duration_seconds", "Message processing duration", DefaultHTTPDurationBuckets, "topic")

	// System Health
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_code")

	return m
}

// ---------------------------------------------------------------------------
// entity_resolver.Metrics
// ---------------------------------------------------------------------------

// ObserveResolve records one Resolve call; status is "ok" or an error code.
func (m *AppMetrics) ObserveResolve(_ context.Context, status string, d time.Duration) {
	m.ResolveTotal.WithLabelValues(status).Inc()
	m.ResolveDuration.WithLabelValues(status).Observe(d.Seconds())
	if status != "ok" {
		m.ErrorsTotal.WithLabelValues("resolver", status).Inc()
	}
}

// ObserveStats records per-stage counters of a successful resolution.
func (m *AppMetrics) ObserveStats(_ context.Context, s entity.Stats) {
	m.DocumentTokens.WithLabelValues().Observe(float64(s.TokensIn))

	spans := m.StatisticalSpansTotal
	spans.WithLabelValues("found").Add(float64(s.StatisticalFound))
	spans.WithLabelValues("unlocated").Add(float64(s.StatisticalUnlocated))
	spans.WithLabelValues("filtered").Add(float64(s.StatisticalFiltered))
	spans.WithLabelValues("split").Add(float64(s.StatisticalSplit))
	spans.WithLabelValues("kept").Add(float64(s.StatisticalKept))

	m.OverlapsTotal.WithLabelValues("resolver").Add(float64(s.StatisticalOverlapped))
	m.OverlapsTotal.WithLabelValues("materializer").Add(float64(s.MaterializerDropped))

	for reason, n := range s.FilterReasons {
		m.FilterDecisionsTotal.WithLabelValues(reason).Add(float64(n))
	}
	for label, n := range s.Labels {
		m.EntitiesTotal.WithLabelValues(label).Add(float64(n))
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordGRPCRequest(metrics *AppMetrics, method, code string, duration time.Duration) {
	metrics.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	metrics.GRPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordSinkWrite(metrics *AppMetrics, sink string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SinkWritesTotal.WithLabelValues(sink, status).Inc()
	metrics.SinkWriteDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

func RecordMessage(metrics *AppMetrics, topic, status string, duration time.Duration) {
	metrics.MessagesTotal.WithLabelValues(topic, status).Inc()
	metrics.MessageProcessDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

func RecordTablesReload(metrics *AppMetrics, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.TablesReloadsTotal.WithLabelValues(status).Inc()
}

func SetHealth(metrics *AppMetrics, component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(component).Set(v)
}

//Personal.AI order the ending
