package bus

import (
	"testing"

	"github.com/nagendra0018/dcn/internal/intake"
	"github.com/nagendra0018/dcn/internal/types"
)

func TestEncodeSampleRoundtrip(t *testing.T) {
	s := types.Sample{
		Metric:      "disk_reads",
		Labels:      types.Labels{"node": "n1", "disk": "d0"},
		Value:       1234,
		TimestampMs: 1748772000000,
		Source:      "array-1",
	}

	data, err := EncodeSample(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// The encoded record must decode through the intake wire path.
	got, err := intake.DecodeRecord(data, "bus")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Metric != s.Metric || got.Value != s.Value || got.TimestampMs != s.TimestampMs {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	// The embedded collector name wins over the transport source.
	if got.Source != "array-1" {
		t.Errorf("expected collector source preserved, got %q", got.Source)
	}
	if !got.Labels.Equal(s.Labels) {
		t.Errorf("labels mismatch: %v", got.Labels)
	}
}

func TestEncodeSampleZeroValue(t *testing.T) {
	s := types.Sample{Metric: "m", Value: 0, TimestampMs: 1748772000000}
	data, err := EncodeSample(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Zero is a present value, not a missing one.
	if _, err := intake.DecodeRecord(data, "bus"); err != nil {
		t.Errorf("zero value must decode: %v", err)
	}
}
