// Package transform turns accepted samples into canonical samples:
// label keys are lower-cased, empty-value labels dropped, values scaled
// to their canonical unit, and exact duplicates within a trailing window
// absorbed to tolerate at-least-once bus delivery.
package transform

import (
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
)

// unitConversion scales a declared unit to its canonical unit. Anything
// not listed passes through unscaled; there is no implicit guessing.
type unitConversion struct {
	canonical string
	factor    float64
}

var unitConversions = map[string]unitConversion{
	"bytes":        {"bytes", 1},
	"kilobytes":    {"bytes", 1024},
	"megabytes":    {"bytes", 1024 * 1024},
	"gigabytes":    {"bytes", 1024 * 1024 * 1024},
	"milliseconds": {"milliseconds", 1},
	"microseconds": {"milliseconds", 1.0 / 1000},
	"seconds":      {"milliseconds", 1000},
	"percent":      {"percent", 1},
	"ratio":        {"percent", 100},
}

// NormalizeValue scales a value from its declared unit to the canonical
// unit. Unknown units pass through unchanged.
func NormalizeValue(value float64, unit string) (float64, string) {
	conv, ok := unitConversions[strings.ToLower(unit)]
	if !ok {
		return value, unit
	}
	return value * conv.factor, conv.canonical
}

// CanonicalizeLabels lower-cases keys and drops empty-value labels.
// The input map is not modified.
func CanonicalizeLabels(labels types.Labels) types.Labels {
	if len(labels) == 0 {
		return nil
	}
	out := make(types.Labels, len(labels))
	for k, v := range labels {
		if v == "" {
			continue
		}
		out[strings.ToLower(k)] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// UnitResolver reports the declared unit for a metric name.
type UnitResolver interface {
	UnitFor(metric string) string
}

// Stats tracks transformer activity.
type Stats struct {
	Transformed atomic.Int64
	Duplicates  atomic.Int64
}

// Transformer converts accepted samples to canonical samples.
type Transformer struct {
	units  UnitResolver
	window time.Duration
	dedup  *lru.Cache[string, int64]
	logger *slog.Logger
	stats  Stats

	now func() time.Time
}

// New creates a transformer. cacheSize bounds the dedup cache; window is
// the trailing duration within which exact duplicates are absorbed.
func New(units UnitResolver, window time.Duration, cacheSize int) (*Transformer, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, int64](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Transformer{
		units:  units,
		window: window,
		dedup:  cache,
		logger: logging.Component("transformer"),
		now:    time.Now,
	}, nil
}

// Transform canonicalizes one accepted sample. The second return is
// false when the sample is an exact duplicate within the dedup window
// and should be absorbed.
func (t *Transformer) Transform(r types.ValidationResult) (types.CanonicalSample, bool) {
	s := r.Sample

	value := s.Value
	if t.units != nil {
		value, _ = NormalizeValue(s.Value, t.units.UnitFor(s.Metric))
	}

	c := types.CanonicalSample{
		Metric:      s.Metric,
		Labels:      CanonicalizeLabels(s.Labels),
		Value:       value,
		TimestampMs: s.TimestampMs,
		Source:      s.Source,
		Type:        r.Type,
		Reset:       r.Reset,
	}

	if t.window > 0 && t.isDuplicate(&c) {
		t.stats.Duplicates.Add(1)
		t.logger.Debug("duplicate sample absorbed",
			"metric", c.Metric,
			"timestamp_ms", c.TimestampMs)
		return types.CanonicalSample{}, false
	}

	t.stats.Transformed.Add(1)
	return c, true
}

// isDuplicate records the sample identity in the dedup cache and reports
// whether it was already seen within the trailing window. Identity is the
// full (metric, labels, timestamp, value) tuple; a retransmission with a
// different value is not a duplicate.
func (t *Transformer) isDuplicate(c *types.CanonicalSample) bool {
	key := c.Key() + "@" + strconv.FormatInt(c.TimestampMs, 10) + "=" +
		strconv.FormatFloat(c.Value, 'g', -1, 64)

	nowMs := t.now().UnixMilli()
	if seenMs, ok := t.dedup.Get(key); ok {
		if nowMs-seenMs <= t.window.Milliseconds() {
			return true
		}
	}
	t.dedup.Add(key, nowMs)
	return false
}

// Snapshot returns current transformer counts.
func (t *Transformer) Snapshot() (transformed, duplicates int64) {
	return t.stats.Transformed.Load(), t.stats.Duplicates.Load()
}
