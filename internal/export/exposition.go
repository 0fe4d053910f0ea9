package export

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// SeriesSource provides the latest stored point and the latest flushed
// window aggregate of every series.
type SeriesSource interface {
	MetricNames(ctx context.Context) ([]string, error)
	LatestPerSeries(ctx context.Context, metric string) ([]types.SeriesPoint, error)
	LatestWindowPerSeries(ctx context.Context, metric string, resolution types.Resolution) ([]types.WindowResult, error)
}

// scrapeResolution is the aggregate granularity rendered on scrape.
const scrapeResolution = types.Resolution1m

// SchemaInfo describes a metric for exposition help text.
type SchemaInfo struct {
	Name        string
	Description string
	Counter     bool
}

// SchemaSource resolves exposition metadata for metric names.
type SchemaSource interface {
	SchemaInfo(metric string) (SchemaInfo, bool)
}

// SeriesCollector exposes the newest stored value of every series as a
// Prometheus collector. Concurrent scrapes share one store read through
// singleflight.
type SeriesCollector struct {
	source  SeriesSource
	schemas SchemaSource
	group   singleflight.Group
	logger  *slog.Logger

	// Timeout bounds the store reads of one scrape.
	Timeout time.Duration
}

// NewSeriesCollector creates a collector over the given source.
func NewSeriesCollector(source SeriesSource, schemas SchemaSource) *SeriesCollector {
	return &SeriesCollector{
		source:  source,
		schemas: schemas,
		logger:  logging.Component("exposition"),
		Timeout: 10 * time.Second,
	}
}

// Describe sends nothing: the metric set depends on stored data, so the
// collector is intentionally unchecked.
func (c *SeriesCollector) Describe(chan<- *prometheus.Desc) {}

// scrapeData is the result of one shared store read.
type scrapeData struct {
	points  []types.SeriesPoint
	windows []types.WindowResult
}

// Collect emits one sample per stored series at its latest raw value,
// plus the average of its latest flushed window.
func (c *SeriesCollector) Collect(ch chan<- prometheus.Metric) {
	v, err, _ := c.group.Do("scrape", func() (interface{}, error) {
		return c.gather()
	})
	if err != nil {
		c.logger.Error("scrape gather failed", "error", err)
		return
	}
	data := v.(*scrapeData)

	for _, p := range data.points {
		metric, err := c.constMetric(p)
		if err != nil {
			c.logger.Warn("series not expressible, skipped",
				"series", p.Key(),
				"error", err)
			continue
		}
		ch <- metric
	}
	for _, w := range data.windows {
		metric, err := c.windowMetric(w)
		if err != nil {
			c.logger.Warn("aggregate not expressible, skipped",
				"series", w.Key(),
				"error", err)
			continue
		}
		ch <- metric
	}
}

func (c *SeriesCollector) gather() (*scrapeData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	names, err := c.source.MetricNames(ctx)
	if err != nil {
		return nil, err
	}

	data := &scrapeData{}
	for _, name := range names {
		latest, err := c.source.LatestPerSeries(ctx, name)
		if err != nil {
			return nil, err
		}
		data.points = append(data.points, latest...)

		windows, err := c.source.LatestWindowPerSeries(ctx, name, scrapeResolution)
		if err != nil {
			return nil, err
		}
		data.windows = append(data.windows, windows...)
	}
	return data, nil
}

func (c *SeriesCollector) constMetric(p types.SeriesPoint) (prometheus.Metric, error) {
	help := "Latest collected value."
	valueType := prometheus.GaugeValue
	if c.schemas != nil {
		if info, ok := c.schemas.SchemaInfo(p.Metric); ok {
			if info.Description != "" {
				help = info.Description
			}
			if info.Counter {
				valueType = prometheus.CounterValue
			}
		}
	}

	keys, values := sortedLabels(p.Labels)
	desc := prometheus.NewDesc(p.Metric, help, keys, nil)
	m, err := prometheus.NewConstMetric(desc, valueType, p.Value, values...)
	if err != nil {
		return nil, err
	}
	return prometheus.NewMetricWithTimestamp(p.TimestampTime(), m), nil
}

// windowMetric renders the latest flushed window of a series as a
// recording-rule style gauge, e.g. node_cpu_percent:1m_avg.
func (c *SeriesCollector) windowMetric(w types.WindowResult) (prometheus.Metric, error) {
	name := w.Metric + ":" + w.Resolution.String() + "_avg"
	help := "Average over the latest " + w.Resolution.String() + " window."

	keys, values := sortedLabels(w.Labels)
	desc := prometheus.NewDesc(name, help, keys, nil)
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, w.Avg, values...)
	if err != nil {
		return nil, err
	}
	return prometheus.NewMetricWithTimestamp(time.UnixMilli(w.WindowEnd), m), nil
}

func sortedLabels(labels types.Labels) (keys, values []string) {
	keys = make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values = make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return keys, values
}
