package types

import "time"

// ValueType indicates the type of metric value.
type ValueType int

const (
	// ValueTypeGauge is a point-in-time measurement (e.g., latency, capacity).
	ValueTypeGauge ValueType = iota
	// ValueTypeCounter is a monotonically non-decreasing counter
	// (e.g., total IOPS, bytes received). A decrease is a counter reset.
	ValueTypeCounter
)

// String returns a human-readable representation of the ValueType.
func (v ValueType) String() string {
	switch v {
	case ValueTypeGauge:
		return "gauge"
	case ValueTypeCounter:
		return "counter"
	default:
		return "unknown"
	}
}

// ParseValueType parses a string into a ValueType.
func ParseValueType(s string) (ValueType, bool) {
	switch s {
	case "gauge":
		return ValueTypeGauge, true
	case "counter":
		return ValueTypeCounter, true
	default:
		return ValueTypeGauge, false
	}
}

// RawRecord is one metric observation as it arrives on the message bus.
// The wire schema matches what collectors publish:
// {"name": ..., "labels": {...}, "value": ..., "timestamp": ms, "collector": ...}
// Value is a pointer so a missing value can be told apart from zero.
type RawRecord struct {
	Metric      string            `json:"name"`
	Labels      map[string]string `json:"labels"`
	Value       *float64          `json:"value"`
	TimestampMs int64             `json:"timestamp"`
	Source      string            `json:"collector"`
}

// Sample represents a single decoded metric observation.
// It is immutable once emitted by a collector.
type Sample struct {
	// Identity
	Metric string
	Labels Labels

	// Observation
	Value       float64
	TimestampMs int64 // Unix timestamp in milliseconds

	// Origin
	Source string
}

// TimestampTime returns the timestamp as a time.Time.
func (s *Sample) TimestampTime() time.Time {
	return time.UnixMilli(s.TimestampMs)
}

// Key returns the unique identifier for this sample's series.
func (s *Sample) Key() string {
	return SeriesKey(s.Metric, s.Labels)
}

// CanonicalSample is a validated sample with normalized units and a
// canonical label set. It is owned exclusively by the pipeline until
// persisted.
type CanonicalSample struct {
	Metric      string
	Labels      Labels // canonicalized: lower-case keys, no empty values
	Value       float64
	TimestampMs int64
	Source      string
	Type        ValueType

	// Reset is true when a counter decrease was interpreted as a reset.
	Reset bool
}

// Key returns the unique identifier for this sample's series.
func (c *CanonicalSample) Key() string {
	return SeriesKey(c.Metric, c.Labels)
}

// TimestampTime returns the timestamp as a time.Time.
func (c *CanonicalSample) TimestampTime() time.Time {
	return time.UnixMilli(c.TimestampMs)
}

// SampleBatch represents a collection of samples for batch processing.
type SampleBatch struct {
	Samples []Sample
}

// NewSampleBatch creates a new batch with the given capacity.
func NewSampleBatch(capacity int) *SampleBatch {
	return &SampleBatch{
		Samples: make([]Sample, 0, capacity),
	}
}

// Add appends a sample to the batch.
func (b *SampleBatch) Add(s Sample) {
	b.Samples = append(b.Samples, s)
}

// Len returns the number of samples in the batch.
func (b *SampleBatch) Len() int {
	return len(b.Samples)
}

// Clear resets the batch for reuse.
func (b *SampleBatch) Clear() {
	b.Samples = b.Samples[:0]
}
