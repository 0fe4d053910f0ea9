package types

import (
	"hash/fnv"
	"sort"
	"strings"
)

// Labels is an unordered set of label key/value pairs attached to a sample.
// Keys are unique. The zero value (nil) is a valid empty label set.
type Labels map[string]string

// Canonical returns the deterministic encoding of the label set:
// keys sorted lexicographically, joined as "k1=v1,k2=v2".
// Two label sets are equal iff their canonical encodings are equal.
func (l Labels) Canonical() string {
	if len(l) == 0 {
		return ""
	}

	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(l[k])
	}
	return b.String()
}

// Clone returns a copy of the label set.
func (l Labels) Clone() Labels {
	if l == nil {
		return nil
	}
	out := make(Labels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Equal reports whether two label sets contain the same pairs.
func (l Labels) Equal(other Labels) bool {
	if len(l) != len(other) {
		return false
	}
	for k, v := range l {
		if other[k] != v {
			return false
		}
	}
	return true
}

// ParseCanonical parses a canonical label encoding back into a label set.
// The empty string yields nil.
func ParseCanonical(s string) Labels {
	if s == "" {
		return nil
	}
	out := make(Labels)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// SeriesKey returns the unique identifier for a (metric, labels) series.
func SeriesKey(metric string, labels Labels) string {
	c := labels.Canonical()
	if c == "" {
		return metric
	}
	return metric + "{" + c + "}"
}

// ShardFor maps a series key onto one of n shards.
// Partitioning per-series state by key hash keeps unrelated series from
// contending on a single lock.
func ShardFor(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New64a()
	h.Write([]byte(key))
	return int(h.Sum64() % uint64(n))
}
