// Package metrics defines the Prometheus collectors of the analysis engine and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analysis sources.
const (
	SourceEditor   = "editor"
	SourceNotebook = "notebook"
	SourceScan     = "scan"
	SourceDisk     = "disk"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	AnalysesTotal       *prometheus.CounterVec
	AnalysisDuration    *prometheus.HistogramVec
	ScanDuration        prometheus.Histogram
	CachedDocuments     prometheus.Gauge
	TargetRecords       prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates all collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mystindex_analyses_total",
				Help: "Documents analyzed, by source (editor, notebook, scan, disk).",
			},
			[]string{"source"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mystindex_analysis_duration_seconds",
				Help:    "Time to parse and index one document.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"source"},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mystindex_scan_duration_seconds",
				Help:    "Duration of full project scans.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		CachedDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mystindex_cached_documents",
				Help: "Documents and notebook cells held in the document cache.",
			},
		),
		TargetRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mystindex_target_records",
				Help: "Records in the project target index.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.ScanDuration,
		m.CachedDocuments,
		m.TargetRecords,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
