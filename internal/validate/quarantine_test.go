package validate

import (
	"testing"

	"github.com/nagendra0018/dcn/internal/types"
)

func TestQuarantineRoundtrip(t *testing.T) {
	store, err := NewQuarantineStore(t.TempDir(), 100)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer store.Close()

	s := types.Sample{
		Metric:      "mystery_metric",
		Labels:      types.Labels{"node": "n1"},
		Value:       42,
		TimestampMs: 1748772000000,
		Source:      "ontap",
	}
	if err := store.Add(types.Quarantined(s, "unknown_metric")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, err := store.ReadAll(0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0].Sample.Metric != "mystery_metric" {
		t.Errorf("unexpected metric: %s", got[0].Sample.Metric)
	}
	if got[0].Sample.Labels["node"] != "n1" {
		t.Errorf("unexpected labels: %v", got[0].Sample.Labels)
	}
	if got[0].Reason != "unknown_metric" {
		t.Errorf("unexpected reason: %s", got[0].Reason)
	}
}

func TestQuarantineRotation(t *testing.T) {
	store, err := NewQuarantineStore(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer store.Close()

	s := types.Sample{Metric: "m", Value: 1, TimestampMs: 1000}
	for i := 0; i < 5; i++ {
		if err := store.Add(types.Quarantined(s, "unknown_metric")); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	files, err := store.Files()
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) < 2 {
		t.Errorf("expected rotation to produce multiple files, got %d", len(files))
	}

	got, err := store.ReadAll(0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 samples across segments, got %d", len(got))
	}

	// Limit applies across files.
	limited, err := store.ReadAll(3)
	if err != nil {
		t.Fatalf("read limited: %v", err)
	}
	if len(limited) != 3 {
		t.Errorf("expected 3 samples with limit, got %d", len(limited))
	}
}

func TestQuarantineOpenSegmentHidden(t *testing.T) {
	store, err := NewQuarantineStore(t.TempDir(), 100)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer store.Close()

	s := types.Sample{Metric: "m", Value: 1, TimestampMs: 1000}
	if err := store.Add(types.Quarantined(s, "r")); err != nil {
		t.Fatalf("add: %v", err)
	}

	files, err := store.Files()
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("open segment should not be listed, got %v", files)
	}
}
