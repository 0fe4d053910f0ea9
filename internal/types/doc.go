// Package types defines the core data types used throughout the pipeline.
//
// Key types:
//   - Sample: A single decoded metric observation
//   - CanonicalSample: A validated, normalized sample
//   - WindowResult: Flushed statistics for one aggregation window
//   - SeriesPoint: The persisted unit of the time-series store
//   - Resolution: Granularity tag (raw, 1m, 5m, 1h)
package types
