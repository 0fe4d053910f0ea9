package validate

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
)

// Stats tracks validation outcomes.
type Stats struct {
	Accepted    atomic.Int64
	Rejected    atomic.Int64
	Quarantined atomic.Int64
	Resets      atomic.Int64
}

// lastSeen holds the monotonicity state for one counter series.
type lastSeen struct {
	value       float64
	timestampMs int64
}

// seriesShard is one lock-striped partition of the last-seen map.
type seriesShard struct {
	mu   sync.Mutex
	last map[string]lastSeen
}

// Validator classifies samples against the schema registry and tracks
// per-series counter state for monotonicity checks.
type Validator struct {
	schemas *SchemaRegistry
	shards  []*seriesShard
	logger  *slog.Logger
	stats   Stats
}

// NewValidator creates a validator with the given shard count for the
// last-seen state map.
func NewValidator(schemas *SchemaRegistry, shards int) *Validator {
	if shards <= 0 {
		shards = 16
	}
	v := &Validator{
		schemas: schemas,
		shards:  make([]*seriesShard, shards),
		logger:  logging.Component("validator"),
	}
	for i := range v.shards {
		v.shards[i] = &seriesShard{last: make(map[string]lastSeen)}
	}
	return v
}

// Validate classifies a single sample. The result always carries exactly
// one of the three classifications.
func (v *Validator) Validate(s types.Sample) types.ValidationResult {
	schema, ok := v.schemas.Lookup(s.Metric)
	if !ok {
		// Unknown metrics are retained for reclassification once the
		// metric is registered, not rejected outright.
		v.stats.Quarantined.Add(1)
		return types.Quarantined(s, "unknown_metric")
	}

	if schema.AllowedLabels != nil {
		for k := range s.Labels {
			if !schema.AllowedLabels[k] {
				v.stats.Quarantined.Add(1)
				return types.Quarantined(s, "unexpected_label:"+k)
			}
		}
	}

	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		v.stats.Rejected.Add(1)
		return types.Rejected(s, "value_not_finite")
	}
	if schema.Min != nil && s.Value < *schema.Min {
		v.stats.Rejected.Add(1)
		return types.Rejected(s, "value_below_min")
	}
	if schema.Max != nil && s.Value > *schema.Max {
		v.stats.Rejected.Add(1)
		return types.Rejected(s, "value_above_max")
	}

	if schema.Type == types.ValueTypeCounter {
		if s.Value < 0 {
			v.stats.Rejected.Add(1)
			return types.Rejected(s, "negative_counter")
		}
		if reset := v.observeCounter(&s); reset {
			v.stats.Accepted.Add(1)
			v.stats.Resets.Add(1)
			v.logger.Debug("counter reset detected",
				"metric", s.Metric,
				"series", s.Key())
			return types.AcceptedReset(s, schema.Type)
		}
	}

	v.stats.Accepted.Add(1)
	return types.Accepted(s, schema.Type)
}

// observeCounter updates the per-series last-seen state and reports
// whether the sample is a reset (a decrease against the last accepted
// value at a non-decreasing timestamp).
func (v *Validator) observeCounter(s *types.Sample) bool {
	key := s.Key()
	shard := v.shards[types.ShardFor(key, len(v.shards))]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	prev, seen := shard.last[key]

	// Out-of-order samples do not disturb the monotonicity state.
	if seen && s.TimestampMs < prev.timestampMs {
		return false
	}

	shard.last[key] = lastSeen{value: s.Value, timestampMs: s.TimestampMs}
	return seen && s.Value < prev.value
}

// Snapshot returns current validation counts.
func (v *Validator) Snapshot() (accepted, rejected, quarantined, resets int64) {
	return v.stats.Accepted.Load(),
		v.stats.Rejected.Load(),
		v.stats.Quarantined.Load(),
		v.stats.Resets.Load()
}

// SeriesTracked returns the number of counter series with state.
func (v *Validator) SeriesTracked() int {
	total := 0
	for _, shard := range v.shards {
		shard.mu.Lock()
		total += len(shard.last)
		shard.mu.Unlock()
	}
	return total
}
