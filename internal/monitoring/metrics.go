package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup outcomes recorded by CacheLookup.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheForced = "forced"
)

// Prediction origins recorded by Prediction.
const (
	OriginLatest  = "latest"
	OriginHistory = "history"
	OriginManual  = "manual"
)

// Metrics is the Prometheus recorder for the dashboard. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	registry *prometheus.Registry

	sourceFetches  *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	predictions    *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	tableRows      prometheus.Gauge
}

// NewMetrics creates a recorder on a private registry that also exports the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airquality_source_fetch_total",
			Help: "Total fetches from the reading source by result.",
		}, []string{"source", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airquality_source_fetch_duration_seconds",
			Help:    "Duration of fetches from the reading source.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airquality_cache_lookup_total",
			Help: "Cache lookups by outcome (hit, miss, forced).",
		}, []string{"result"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airquality_prediction_total",
			Help: "Predictions by origin and decoded label.",
		}, []string{"origin", "label"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airquality_render_duration_seconds",
			Help:    "Duration of page and API renders by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		tableRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airquality_table_rows",
			Help: "Number of rows in the most recently fetched table.",
		}),
	}

	registry.MustRegister(m.sourceFetches)
	registry.MustRegister(m.fetchDuration)
	registry.MustRegister(m.cacheLookups)
	registry.MustRegister(m.predictions)
	registry.MustRegister(m.renderDuration)
	registry.MustRegister(m.tableRows)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one source fetch and, on success, the table size.
func (m *Metrics) ObserveFetch(source string, d time.Duration, rows int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sourceFetches.WithLabelValues(source, result).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
	if err == nil {
		m.tableRows.Set(float64(rows))
	}
}

// CacheLookup records a cache lookup outcome.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Prediction records one decoded prediction.
func (m *Metrics) Prediction(origin, label string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(origin, label).Inc()
}

// ObserveRender records how long a route took to render.
func (m *Metrics) ObserveRender(route string, d time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.WithLabelValues(route).Observe(d.Seconds())
}
