package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enricher"

// Cycle results recorded by ObserveCycle.
const (
	CycleOK         = "ok"
	CycleFetchError = "fetch_error"
	CycleError      = "error"
)

// Metrics holds the exporter's own Prometheus counters and gauges. The
// registry is shared with the enriched channel gauges so a single /metrics
// endpoint serves both.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	cyclesTotal           *prometheus.CounterVec
	cycleDuration         prometheus.Histogram
	rebuildsTotal         *prometheus.CounterVec
	directoryEntries      prometheus.Gauge
	directoryLastSuccess  prometheus.Gauge
	unresolvedStreams     prometheus.Gauge
	channelFetchFailTotal prometheus.Counter
}

// New creates and registers the exporter self-metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests received on the metrics port",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Scrape cycles by result",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one scrape cycle, including any directory rebuild",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		rebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_rebuilds_total",
			Help:      "Directory cache rebuild attempts by result",
		}, []string{"result"}),
		directoryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_entries",
			Help:      "Number of stream identifiers in the current directory mapping",
		}),
		directoryLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful directory rebuild",
		}),
		unresolvedStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unresolved_streams",
			Help:      "Observations in the last cycle whose stream id was not in the directory",
		}),
		channelFetchFailTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_channel_fetch_failures_total",
			Help:      "Per-channel stream list fetches that failed during rebuilds",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.cyclesTotal,
		m.cycleDuration,
		m.rebuildsTotal,
		m.directoryEntries,
		m.directoryLastSuccess,
		m.unresolvedStreams,
		m.channelFetchFailTotal,
	)

	return m
}

// Register adds an additional collector (e.g. the enriched gauge publisher)
// to the registry served by Handler.
func (m *Metrics) Register(c prometheus.Collector) error {
	return m.registry.Register(c)
}

// Gatherer exposes the underlying registry for tests and handlers.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ObserveCycle records the outcome and duration of one scrape cycle.
func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// ObserveRebuild records a directory rebuild attempt. entries and at are
// only applied when ok is true.
func (m *Metrics) ObserveRebuild(ok bool, entries int, at time.Time) {
	if m == nil {
		return
	}
	if !ok {
		m.rebuildsTotal.WithLabelValues("error").Inc()
		return
	}
	m.rebuildsTotal.WithLabelValues("ok").Inc()
	m.directoryEntries.Set(float64(entries))
	m.directoryLastSuccess.Set(float64(at.Unix()))
}

// AddChannelFetchFailures adds n failed per-channel sub-fetches.
func (m *Metrics) AddChannelFetchFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.channelFetchFailTotal.Add(float64(n))
}

// SetUnresolved sets the number of unresolved observations in the last cycle.
func (m *Metrics) SetUnresolved(n int) {
	if m == nil {
		return
	}
	m.unresolvedStreams.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics from the
// registry. Collection errors are served alongside whatever could be gathered.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
