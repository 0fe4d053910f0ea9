// Package intake implements the ingestion entry point of the pipeline.
// It decodes raw records into samples, counts malformed input, tracks
// per-source liveness, and hands decoded samples to the validation queue
// under blocking backpressure.
package intake

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/queue"
	"github.com/nagendra0018/dcn/internal/types"
)

// Stats tracks intake activity.
type Stats struct {
	BatchesReceived atomic.Int64
	SamplesDecoded  atomic.Int64
	Malformed       atomic.Int64
}

// Intake decodes raw record batches and enqueues samples for validation.
type Intake struct {
	out      *queue.Queue[types.Sample]
	registry *Registry
	logger   *slog.Logger

	closed atomic.Bool
	stats  Stats
}

// New creates an intake writing to the given output queue.
func New(out *queue.Queue[types.Sample], registry *Registry) *Intake {
	return &Intake{
		out:      out,
		registry: registry,
		logger:   logging.Component("intake"),
	}
}

// Receive decodes a batch of raw JSON records from one source and
// enqueues the decoded samples. It blocks while the output queue is
// full; it never drops. Malformed records are counted and skipped,
// never failing the batch.
func (in *Intake) Receive(ctx context.Context, source string, records [][]byte) (*types.IngestResult, error) {
	if in.closed.Load() {
		return nil, errors.ErrIntakeClosed
	}

	result := &types.IngestResult{Received: len(records)}
	in.stats.BatchesReceived.Add(1)

	for _, data := range records {
		sample, err := DecodeRecord(data, source)
		if err != nil {
			result.AddReason(decodeReason(err))
			in.stats.Malformed.Add(1)
			in.logger.Debug("malformed record skipped",
				"source", source,
				"error", err)
			continue
		}

		if err := in.out.Put(ctx, sample); err != nil {
			// Decoded counts reflect only samples actually handed off.
			return result, errors.Wrap(err, "enqueue sample")
		}
		result.Decoded++
		in.stats.SamplesDecoded.Add(1)
	}

	in.registry.RecordBatch(source, result.Decoded)

	if result.Malformed > 0 {
		in.logger.Warn("batch contained malformed records",
			"source", source,
			"received", result.Received,
			"malformed", result.Malformed)
	}
	return result, nil
}

// ReceiveSamples enqueues already-decoded samples from an embedded
// collector, applying the same backpressure and liveness accounting.
func (in *Intake) ReceiveSamples(ctx context.Context, source string, samples []types.Sample) error {
	if in.closed.Load() {
		return errors.ErrIntakeClosed
	}

	for _, s := range samples {
		if s.Source == "" {
			s.Source = source
		}
		if err := in.out.Put(ctx, s); err != nil {
			return errors.Wrap(err, "enqueue sample")
		}
		in.stats.SamplesDecoded.Add(1)
	}

	in.stats.BatchesReceived.Add(1)
	in.registry.RecordBatch(source, len(samples))
	return nil
}

// Close marks the intake closed. Subsequent Receive calls fail with
// ErrIntakeClosed; the output queue is left to the pipeline to close
// after upstream producers stop.
func (in *Intake) Close() {
	in.closed.Store(true)
}

// Snapshot returns current intake statistics.
func (in *Intake) Snapshot() (batches, decoded, malformed int64) {
	return in.stats.BatchesReceived.Load(),
		in.stats.SamplesDecoded.Load(),
		in.stats.Malformed.Load()
}

// DecodeRecord parses one wire record into a Sample. The wire format is
// a JSON object with name, labels, value and a millisecond timestamp;
// the collector field overrides the transport-level source when present.
func DecodeRecord(data []byte, source string) (types.Sample, error) {
	var raw types.RawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.Sample{}, errors.NewMalformed("invalid json")
	}

	if raw.Metric == "" {
		return types.Sample{}, errors.NewMalformed("missing name")
	}
	if raw.TimestampMs <= 0 {
		return types.Sample{}, errors.NewMalformed("missing timestamp")
	}
	if raw.Value == nil {
		return types.Sample{}, errors.NewMalformed("missing value")
	}
	if math.IsNaN(*raw.Value) || math.IsInf(*raw.Value, 0) {
		return types.Sample{}, errors.NewMalformed("value not finite")
	}

	// Reject timestamps absurdly far in the future; they would pin
	// aggregation windows open indefinitely.
	if raw.TimestampMs > time.Now().Add(24*time.Hour).UnixMilli() {
		return types.Sample{}, errors.NewMalformed("timestamp in future")
	}

	src := source
	if raw.Source != "" {
		src = raw.Source
	}

	return types.Sample{
		Metric:      raw.Metric,
		Labels:      types.Labels(raw.Labels),
		Value:       *raw.Value,
		TimestampMs: raw.TimestampMs,
		Source:      src,
	}, nil
}

func decodeReason(err error) string {
	msg := err.Error()
	// Strip the sentinel suffix, keeping the reason prefix.
	if i := len(msg) - len(": "+errors.ErrMalformedInput.Error()); i > 0 {
		return msg[:i]
	}
	return msg
}
