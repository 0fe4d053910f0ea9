// Package aggregate performs windowed rollups per series at 1m, 5m and
// 1h resolutions. Window state is partitioned by series-key hash; all
// updates for one key serialize through its shard lock, while distinct
// keys proceed in parallel.
package aggregate

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/nagendra0018/dcn/internal/types"
)

// WindowState is the lifecycle state of a window.
type WindowState int

const (
	// WindowOpen accepts samples.
	WindowOpen WindowState = iota
	// WindowClosing is transient while the flush is being produced.
	WindowClosing
	// WindowFlushed has emitted its result. It may still merge late
	// samples and re-flush until evicted.
	WindowFlushed
)

// String returns the state name.
func (s WindowState) String() string {
	switch s {
	case WindowOpen:
		return "open"
	case WindowClosing:
		return "closing"
	case WindowFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// Window maintains running statistics for one (series, resolution,
// window_start) bucket. It is owned by exactly one shard; callers hold
// the shard lock, so Window itself is not locked.
type Window struct {
	metric     string
	labels     types.Labels
	start      int64 // Unix milliseconds, inclusive
	end        int64 // Unix milliseconds, exclusive
	resolution types.Resolution

	state WindowState

	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs int64
	lastTs  int64

	// sketch is nil when percentiles are disabled.
	sketch   *ddsketch.DDSketch
	accuracy float64

	// flushedAtMs records wall time of the last flush, 0 while open.
	flushedAtMs int64
	// flushes counts how many times this window has emitted a result.
	flushes int
}

// NewWindow creates an open window for the given bucket. accuracy > 0
// enables DDSketch percentiles.
func NewWindow(metric string, labels types.Labels, startMs int64, resolution types.Resolution, accuracy float64) *Window {
	w := &Window{
		metric:     metric,
		labels:     labels,
		start:      startMs,
		end:        startMs + resolution.Duration().Milliseconds(),
		resolution: resolution,
		min:        math.MaxFloat64,
		max:        -math.MaxFloat64,
		accuracy:   accuracy,
	}
	if accuracy > 0 {
		if sketch, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
			w.sketch = sketch
		}
	}
	return w
}

// Add folds one value into the running statistics.
func (w *Window) Add(value float64, timestampMs int64) {
	w.count++
	w.sum += value

	if value < w.min {
		w.min = value
	}
	if value > w.max {
		w.max = value
	}

	if w.firstTs == 0 || timestampMs < w.firstTs {
		w.firstTs = timestampMs
	}
	if timestampMs > w.lastTs {
		w.lastTs = timestampMs
	}

	if w.sketch != nil {
		w.sketch.Add(value)
	}
}

// Restart clears the accumulators while keeping the bucket identity.
// Used when a counter reset arrives mid-window: the prior segment is
// flushed first, then accumulation restarts from the reset value.
func (w *Window) Restart() {
	w.count = 0
	w.sum = 0
	w.min = math.MaxFloat64
	w.max = -math.MaxFloat64
	w.firstTs = 0
	w.lastTs = 0
	w.state = WindowOpen

	if w.sketch != nil {
		if sketch, err := ddsketch.NewDefaultDDSketch(w.accuracy); err == nil {
			w.sketch = sketch
		}
	}
}

// IsEmpty reports whether no samples have been added since the last
// restart.
func (w *Window) IsEmpty() bool {
	return w.count == 0
}

// Result materializes the current statistics as an immutable result.
func (w *Window) Result() types.WindowResult {
	result := types.WindowResult{
		Metric:      w.metric,
		Labels:      w.labels,
		WindowStart: w.start,
		WindowEnd:   w.end,
		Resolution:  w.resolution,
		Count:       w.count,
		Sum:         w.sum,
		FirstTs:     w.firstTs,
		LastTs:      w.lastTs,
	}

	if w.count > 0 {
		result.Avg = w.sum / float64(w.count)
		result.Min = w.min
		result.Max = w.max
	}

	if w.sketch != nil && w.count > 0 {
		p50, _ := w.sketch.GetValueAtQuantile(0.50)
		p90, _ := w.sketch.GetValueAtQuantile(0.90)
		p95, _ := w.sketch.GetValueAtQuantile(0.95)
		p99, _ := w.sketch.GetValueAtQuantile(0.99)
		result.SetPercentiles(p50, p90, p95, p99)
	}

	return result
}

// State returns the current lifecycle state.
func (w *Window) State() WindowState {
	return w.state
}

// Flushes returns how many times this window has emitted.
func (w *Window) Flushes() int {
	return w.flushes
}
