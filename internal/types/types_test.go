package types

import (
	"testing"
	"time"
)

func TestLabelsCanonical(t *testing.T) {
	l := Labels{"node": "node-01", "cluster": "prod-01", "type": "read"}

	expected := "cluster=prod-01,node=node-01,type=read"
	if l.Canonical() != expected {
		t.Errorf("expected %s, got %s", expected, l.Canonical())
	}

	if (Labels{}).Canonical() != "" {
		t.Error("empty labels should canonicalize to empty string")
	}
}

func TestLabelsCanonicalDeterministic(t *testing.T) {
	a := Labels{"a": "1", "b": "2", "c": "3"}
	b := Labels{"c": "3", "a": "1", "b": "2"}

	if a.Canonical() != b.Canonical() {
		t.Errorf("same pairs should produce same canonical form: %s vs %s",
			a.Canonical(), b.Canonical())
	}
}

func TestParseCanonical(t *testing.T) {
	l := Labels{"cluster": "prod-01", "node": "node-01"}

	parsed := ParseCanonical(l.Canonical())
	if !parsed.Equal(l) {
		t.Errorf("roundtrip mismatch: got %v", parsed)
	}

	if ParseCanonical("") != nil {
		t.Error("empty string should parse to nil")
	}
}

func TestSeriesKey(t *testing.T) {
	key := SeriesKey("dcn_storage_iops_total", Labels{"node": "node-01", "cluster": "prod"})

	expected := "dcn_storage_iops_total{cluster=prod,node=node-01}"
	if key != expected {
		t.Errorf("expected %s, got %s", expected, key)
	}

	if SeriesKey("up", nil) != "up" {
		t.Errorf("label-less key should be the bare metric name")
	}
}

func TestShardFor(t *testing.T) {
	key := "dcn_storage_iops_total{cluster=prod}"

	s1 := ShardFor(key, 16)
	s2 := ShardFor(key, 16)
	if s1 != s2 {
		t.Error("sharding must be deterministic")
	}
	if s1 < 0 || s1 >= 16 {
		t.Errorf("shard out of range: %d", s1)
	}
	if ShardFor(key, 1) != 0 {
		t.Error("single shard must always map to 0")
	}
}

func TestSampleKey(t *testing.T) {
	s := Sample{
		Metric: "dcn_storage_latency_milliseconds",
		Labels: Labels{"cluster": "prod-01", "node": "node-02"},
	}

	expected := "dcn_storage_latency_milliseconds{cluster=prod-01,node=node-02}"
	if s.Key() != expected {
		t.Errorf("expected %s, got %s", expected, s.Key())
	}
}

func TestSampleTimestampTime(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	s := Sample{
		TimestampMs: now.UnixMilli(),
	}

	if !s.TimestampTime().Equal(now) {
		t.Errorf("expected %v, got %v", now, s.TimestampTime())
	}
}

func TestSampleBatch(t *testing.T) {
	batch := NewSampleBatch(10)

	if batch.Len() != 0 {
		t.Errorf("expected empty batch")
	}

	batch.Add(Sample{Metric: "m1", Source: "s1"})
	batch.Add(Sample{Metric: "m2", Source: "s1"})

	if batch.Len() != 2 {
		t.Errorf("expected 2 samples, got %d", batch.Len())
	}

	batch.Clear()
	if batch.Len() != 0 {
		t.Errorf("expected empty batch after clear")
	}
}

func TestResolutionWindowStart(t *testing.T) {
	// 10:00:58 truncates to 10:00:00 for a 60s window.
	ts := time.Date(2025, 6, 1, 10, 0, 58, 0, time.UTC)

	start := Resolution1m.WindowStartMs(ts.UnixMilli())
	expected := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	if start != expected {
		t.Errorf("expected %d, got %d", expected, start)
	}

	// Raw has no window.
	if ResolutionRaw.WindowStartMs(ts.UnixMilli()) != ts.UnixMilli() {
		t.Error("raw resolution should not truncate")
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		want    Resolution
		wantErr bool
	}{
		{"raw", ResolutionRaw, false},
		{"1m", Resolution1m, false},
		{"5m", Resolution5m, false},
		{"1h", Resolution1h, false},
		{"weekly", ResolutionRaw, true},
	}

	for _, tt := range tests {
		got, err := ParseResolution(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseResolution(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseResolution(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseResolution(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestSelectResolutionForRange(t *testing.T) {
	now := time.Now()

	if r := SelectResolutionForRange(now.Add(-time.Hour), now); r != ResolutionRaw {
		t.Errorf("1h range: expected raw, got %v", r)
	}
	if r := SelectResolutionForRange(now.Add(-24*time.Hour), now); r != Resolution1m {
		t.Errorf("24h range: expected 1m, got %v", r)
	}
	if r := SelectResolutionForRange(now.Add(-7*24*time.Hour), now); r != Resolution5m {
		t.Errorf("7d range: expected 5m, got %v", r)
	}
	if r := SelectResolutionForRange(now.Add(-60*24*time.Hour), now); r != Resolution1h {
		t.Errorf("60d range: expected 1h, got %v", r)
	}
}

func TestWindowResultPercentiles(t *testing.T) {
	w := WindowResult{}

	if w.HasPercentiles() {
		t.Error("expected no percentiles")
	}

	w.SetPercentiles(50.0, 90.0, 95.0, 99.0)

	if !w.HasPercentiles() {
		t.Error("expected percentiles")
	}

	if *w.P50 != 50.0 {
		t.Errorf("expected P50=50.0, got %v", *w.P50)
	}
	if *w.P99 != 99.0 {
		t.Errorf("expected P99=99.0, got %v", *w.P99)
	}
}

func TestWindowResultPoint(t *testing.T) {
	w := WindowResult{
		Metric:      "dcn_storage_iops_total",
		Labels:      Labels{"node": "node-01"},
		WindowStart: 60_000,
		WindowEnd:   120_000,
		Resolution:  Resolution1m,
		Count:       3,
		Sum:         60,
		Avg:         20,
	}

	p := w.Point()
	if p.TimestampMs != 60_000 {
		t.Errorf("point timestamp should be window start, got %d", p.TimestampMs)
	}
	if p.Value != 20 {
		t.Errorf("point value should be window avg, got %f", p.Value)
	}
	if p.Resolution != Resolution1m {
		t.Errorf("point resolution mismatch: %v", p.Resolution)
	}
}

func TestSourceStatusString(t *testing.T) {
	if SourceUp.String() != "up" || SourceDegraded.String() != "degraded" || SourceDown.String() != "down" {
		t.Error("unexpected source status strings")
	}
}
