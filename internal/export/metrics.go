// Package export translates stored series back out of the pipeline: a
// Prometheus scrape exposition, self-observability counters for every
// error class, and bulk renderings (json, csv, prometheus text) for the
// export API.
package export

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's self-observability instruments. Every
// error class in the taxonomy increments a named counter here, making
// drops and failures operator-visible.
type Metrics struct {
	registry *prometheus.Registry

	BatchesReceived prometheus.Counter
	SamplesDecoded  prometheus.Counter
	Malformed       *prometheus.CounterVec

	Classified *prometheus.CounterVec
	Resets     prometheus.Counter
	Duplicates prometheus.Counter

	WindowsFlushed prometheus.Counter
	Reflushes      prometheus.Counter
	LateSamples    *prometheus.CounterVec

	PointsWritten  prometheus.Counter
	WindowsWritten prometheus.Counter
	StoreRetries   prometheus.Counter
	DeadLettered   prometheus.Counter
	WriteDuration  prometheus.Histogram

	QueueDepth   *prometheus.GaugeVec
	OpenWindows  prometheus.Gauge
	SourcesStale prometheus.Gauge
}

// NewMetrics creates and registers all instruments on a private
// registry so tests can build independent instances.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BatchesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_batches_received_total",
			Help: "Batches received by the intake.",
		}),
		SamplesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_samples_decoded_total",
			Help: "Samples successfully decoded from wire records.",
		}),
		Malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcn_pipeline_malformed_total",
			Help: "Wire records dropped at decode, by reason.",
		}, []string{"reason"}),

		Classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcn_pipeline_samples_classified_total",
			Help: "Validation outcomes by class (accepted, rejected, quarantined).",
		}, []string{"class"}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_counter_resets_total",
			Help: "Counter decreases interpreted as resets.",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_duplicates_absorbed_total",
			Help: "Exact duplicate samples absorbed by the transformer.",
		}),

		WindowsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_windows_flushed_total",
			Help: "Aggregation windows flushed to the store.",
		}),
		Reflushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_window_reflushes_total",
			Help: "Closed windows re-flushed after a late merge.",
		}),
		LateSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcn_pipeline_late_samples_total",
			Help: "Samples past the grace period, by outcome (merged, dropped).",
		}, []string{"outcome"}),

		PointsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_points_written_total",
			Help: "Series points upserted into the store.",
		}),
		WindowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_window_rows_written_total",
			Help: "Window aggregate rows upserted into the store.",
		}),
		StoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_store_retries_total",
			Help: "Store write attempts that failed and were retried.",
		}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcn_pipeline_dead_lettered_total",
			Help: "Write batches persisted to the dead-letter log.",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcn_pipeline_store_write_duration_seconds",
			Help:    "Latency of committed store write batches.",
			Buckets: prometheus.DefBuckets,
		}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dcn_pipeline_queue_depth",
			Help: "Current depth of each inter-stage queue.",
		}, []string{"stage"}),
		OpenWindows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dcn_pipeline_open_windows",
			Help: "Aggregation windows currently held in memory.",
		}),
		SourcesStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dcn_pipeline_sources_stale",
			Help: "Data sources currently degraded or down.",
		}),
	}

	m.registry.MustRegister(
		m.BatchesReceived, m.SamplesDecoded, m.Malformed,
		m.Classified, m.Resets, m.Duplicates,
		m.WindowsFlushed, m.Reflushes, m.LateSamples,
		m.PointsWritten, m.WindowsWritten, m.StoreRetries, m.DeadLettered,
		m.WriteDuration,
		m.QueueDepth, m.OpenWindows, m.SourcesStale,
	)
	return m
}

// Register adds an extra collector (such as the stored-series
// exposition) to the scrape registry.
func (m *Metrics) Register(c prometheus.Collector) error {
	return m.registry.Register(c)
}

// Handler serves the Prometheus exposition for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
