package types

import (
	"fmt"
	"time"
)

// Resolution is the granularity tag of a stored series point.
type Resolution int

const (
	// ResolutionRaw stores samples at collection resolution.
	// Retention: 48 hours
	ResolutionRaw Resolution = iota

	// Resolution1m stores 1-minute window aggregates.
	// Retention: 7 days
	Resolution1m

	// Resolution5m stores 5-minute window aggregates.
	// Retention: 30 days
	Resolution5m

	// Resolution1h stores hourly window aggregates.
	// Retention: 90 days
	Resolution1h
)

// String returns the string representation of the resolution.
func (r Resolution) String() string {
	switch r {
	case ResolutionRaw:
		return "raw"
	case Resolution1m:
		return "1m"
	case Resolution5m:
		return "5m"
	case Resolution1h:
		return "1h"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

// Duration returns the window duration for this resolution.
// Raw has no window and returns 0.
func (r Resolution) Duration() time.Duration {
	switch r {
	case Resolution1m:
		return time.Minute
	case Resolution5m:
		return 5 * time.Minute
	case Resolution1h:
		return time.Hour
	default:
		return 0
	}
}

// DefaultRetention returns the default retention duration for this resolution.
func (r Resolution) DefaultRetention() time.Duration {
	switch r {
	case ResolutionRaw:
		return 48 * time.Hour
	case Resolution1m:
		return 7 * 24 * time.Hour
	case Resolution5m:
		return 30 * 24 * time.Hour
	case Resolution1h:
		return 90 * 24 * time.Hour
	default:
		return 0
	}
}

// WindowStartMs truncates a millisecond timestamp to the start of its window.
// For raw resolution the timestamp is returned unchanged.
func (r Resolution) WindowStartMs(tsMs int64) int64 {
	d := r.Duration().Milliseconds()
	if d <= 0 {
		return tsMs
	}
	return (tsMs / d) * d
}

// TruncateToWindow truncates a timestamp to the start of its window.
func (r Resolution) TruncateToWindow(ts time.Time) time.Time {
	d := r.Duration()
	if d <= 0 {
		return ts
	}
	return ts.Truncate(d).UTC()
}

// ParseResolution parses a string into a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "raw":
		return ResolutionRaw, nil
	case "1m":
		return Resolution1m, nil
	case "5m":
		return Resolution5m, nil
	case "1h":
		return Resolution1h, nil
	default:
		return ResolutionRaw, fmt.Errorf("unknown resolution: %s", s)
	}
}

// AllResolutions returns all resolutions in order of granularity.
func AllResolutions() []Resolution {
	return []Resolution{ResolutionRaw, Resolution1m, Resolution5m, Resolution1h}
}

// AggregateResolutions returns the windowed resolutions, excluding raw.
func AggregateResolutions() []Resolution {
	return []Resolution{Resolution1m, Resolution5m, Resolution1h}
}

// SelectResolutionForRange returns the appropriate resolution for a given
// query time range. Longer ranges read coarser series to bound result size.
func SelectResolutionForRange(start, end time.Time) Resolution {
	duration := end.Sub(start)

	switch {
	case duration <= 6*time.Hour:
		return ResolutionRaw
	case duration <= 48*time.Hour:
		return Resolution1m
	case duration <= 14*24*time.Hour:
		return Resolution5m
	default:
		return Resolution1h
	}
}
