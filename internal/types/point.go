package types

import "time"

// SeriesPoint is the persisted unit of the time-series store.
// The store enforces uniqueness on (metric, labels, timestamp, resolution);
// writing an existing key overwrites.
type SeriesPoint struct {
	Metric      string
	Labels      Labels
	TimestampMs int64
	Value       float64
	Resolution  Resolution
}

// Key returns the uniqueness key of the point within the store.
func (p *SeriesPoint) Key() string {
	return SeriesKey(p.Metric, p.Labels) + "@" + p.Resolution.String()
}

// TimestampTime returns the timestamp as a time.Time.
func (p *SeriesPoint) TimestampTime() time.Time {
	return time.UnixMilli(p.TimestampMs)
}

// WindowResult represents the flushed state of one aggregation window.
// It is immutable once produced by the aggregator.
type WindowResult struct {
	// Identity
	Metric string
	Labels Labels

	// Window bounds
	WindowStart int64 // Unix milliseconds, inclusive
	WindowEnd   int64 // Unix milliseconds, exclusive
	Resolution  Resolution

	// Statistics
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64

	// Percentiles (optional, nil if not enabled)
	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64

	// Timestamps of actual samples
	FirstTs int64
	LastTs  int64
}

// Key returns the unique identifier for this window's series.
func (w *WindowResult) Key() string {
	return SeriesKey(w.Metric, w.Labels)
}

// WindowStartTime returns the window start as a time.Time.
func (w *WindowResult) WindowStartTime() time.Time {
	return time.UnixMilli(w.WindowStart)
}

// Duration returns the window duration.
func (w *WindowResult) Duration() time.Duration {
	return time.Duration(w.WindowEnd-w.WindowStart) * time.Millisecond
}

// IsEmpty returns true if no samples were aggregated.
func (w *WindowResult) IsEmpty() bool {
	return w.Count == 0
}

// HasPercentiles returns true if percentile data is available.
func (w *WindowResult) HasPercentiles() bool {
	return w.P50 != nil
}

// SetPercentiles sets all percentile values.
func (w *WindowResult) SetPercentiles(p50, p90, p95, p99 float64) {
	w.P50 = &p50
	w.P90 = &p90
	w.P95 = &p95
	w.P99 = &p99
}

// Point renders the window as a series point at the window start,
// carrying the average value. Full statistics remain on the stored window.
func (w *WindowResult) Point() SeriesPoint {
	return SeriesPoint{
		Metric:      w.Metric,
		Labels:      w.Labels,
		TimestampMs: w.WindowStart,
		Value:       w.Avg,
		Resolution:  w.Resolution,
	}
}

// SourceStatus is the liveness state of a data source.
type SourceStatus int

const (
	// SourceUp means batches are arriving within the collection interval.
	SourceUp SourceStatus = iota
	// SourceDegraded means at least one collection interval was missed.
	SourceDegraded
	// SourceDown means no batch arrived within three collection intervals.
	SourceDown
)

// String returns the string representation of the status.
func (s SourceStatus) String() string {
	switch s {
	case SourceUp:
		return "up"
	case SourceDegraded:
		return "degraded"
	case SourceDown:
		return "down"
	default:
		return "unknown"
	}
}

// DataSource is the metadata record for one collector source, updated by
// the intake on every batch received or timed out.
type DataSource struct {
	Name           string
	Type           string
	Status         SourceStatus
	LastCollection int64 // Unix milliseconds, 0 if never
	MetricsCount   int64
}
