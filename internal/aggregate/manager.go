package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
)

// FlushFunc receives each flushed window result exactly once per flush
// event. Re-flushes after a late merge deliver an updated result for the
// same window; the store's idempotent upsert makes this safe.
type FlushFunc func(ctx context.Context, result types.WindowResult) error

// Options configures the window manager.
type Options struct {
	// GracePeriod is how long past window end a window stays open for
	// out-of-order samples. A sample arriving past end + grace is late.
	GracePeriod time.Duration

	// LateMergeTolerance keeps a flushed window mergeable for this long
	// after it closes; a late sample within the tolerance merges and
	// re-flushes. Zero drops every sample arriving past end + grace.
	LateMergeTolerance time.Duration

	// Shards partitions window state by series-key hash.
	Shards int

	// PercentileAccuracy enables DDSketch percentiles when > 0.
	PercentileAccuracy float64

	// Resolutions to aggregate at. Defaults to 1m, 5m and 1h.
	Resolutions []types.Resolution
}

// Stats tracks aggregator activity.
type Stats struct {
	Samples        atomic.Int64
	WindowsCreated atomic.Int64
	WindowsFlushed atomic.Int64
	Reflushes      atomic.Int64
	LateSamples    atomic.Int64
	LateMerged     atomic.Int64
	LateDropped    atomic.Int64
	ResetFlushes   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of aggregator statistics.
type StatsSnapshot struct {
	Samples        int64
	WindowsCreated int64
	WindowsFlushed int64
	Reflushes      int64
	LateSamples    int64
	LateMerged     int64
	LateDropped    int64
	ResetFlushes   int64
	OpenWindows    int
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*Window
}

// Manager owns all window state. Each sample fans out to every
// configured resolution; each (series, resolution, window_start) bucket
// is created on first sample, closed by the ticker once its grace period
// elapses, and retained mergeable for the late-merge tolerance.
type Manager struct {
	opts   Options
	flush  FlushFunc
	shards []*shard
	logger *slog.Logger
	stats  Stats

	now func() time.Time
}

// NewManager creates a window manager delivering flushes to flush.
func NewManager(opts Options, flush FlushFunc) *Manager {
	if opts.Shards <= 0 {
		opts.Shards = 16
	}
	if len(opts.Resolutions) == 0 {
		opts.Resolutions = types.AggregateResolutions()
	}

	m := &Manager{
		opts:   opts,
		flush:  flush,
		shards: make([]*shard, opts.Shards),
		logger: logging.Component("aggregator"),
		now:    time.Now,
	}
	for i := range m.shards {
		m.shards[i] = &shard{windows: make(map[string]*Window)}
	}
	return m
}

func windowKey(seriesKey string, r types.Resolution, startMs int64) string {
	return fmt.Sprintf("%s|%s|%d", seriesKey, r.String(), startMs)
}

// Offer folds one canonical sample into every configured resolution.
// Samples past the grace period are dropped unless a flushed window is
// still retained within the late-merge tolerance, in which case they
// merge and trigger a re-flush.
func (m *Manager) Offer(ctx context.Context, c types.CanonicalSample) error {
	m.stats.Samples.Add(1)
	seriesKey := c.Key()
	sh := m.shards[types.ShardFor(seriesKey, len(m.shards))]
	tolMs := m.opts.LateMergeTolerance.Milliseconds()

	var emissions []types.WindowResult

	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, r := range m.opts.Resolutions {
		startMs := r.WindowStartMs(c.TimestampMs)
		key := windowKey(seriesKey, r, startMs)
		nowMs := m.now().UnixMilli()
		deadline := startMs + r.Duration().Milliseconds() + m.opts.GracePeriod.Milliseconds()

		w, ok := sh.windows[key]
		if !ok {
			if nowMs >= deadline {
				// The window was already flushed and evicted (or never
				// existed and is past recovery). Dropped, not merged.
				m.stats.LateSamples.Add(1)
				m.stats.LateDropped.Add(1)
				m.logger.Debug("late sample dropped",
					"series", seriesKey,
					"resolution", r.String(),
					"window_start_ms", startMs,
					"lag_ms", nowMs-deadline)
				continue
			}
			w = NewWindow(c.Metric, c.Labels, startMs, r, m.opts.PercentileAccuracy)
			sh.windows[key] = w
			m.stats.WindowsCreated.Add(1)
		}

		switch w.state {
		case WindowFlushed:
			m.stats.LateSamples.Add(1)
			if tolMs <= 0 || nowMs >= w.flushedAtMs+tolMs {
				// The eviction tick has not caught up yet, but the
				// tolerance has lapsed: same outcome as evicted.
				m.stats.LateDropped.Add(1)
				continue
			}
			// Within tolerance: merge the straggler and re-flush so
			// the stored aggregate converges.
			m.stats.LateMerged.Add(1)
			w.Add(c.Value, c.TimestampMs)
			w.flushes++
			m.stats.Reflushes.Add(1)
			emissions = append(emissions, w.Result())

		default:
			if c.Reset && !w.IsEmpty() {
				// Counter reset mid-window: flush the pre-reset segment
				// early, then restart accumulation in the same bucket.
				// The later flush overwrites it with post-reset values.
				w.state = WindowClosing
				w.flushes++
				m.stats.ResetFlushes.Add(1)
				m.stats.WindowsFlushed.Add(1)
				emissions = append(emissions, w.Result())
				w.Restart()
			}
			w.Add(c.Value, c.TimestampMs)
		}
	}

	return m.emit(ctx, emissions)
}

// CloseDue flushes every open window whose grace period has elapsed and
// evicts flushed windows past the late-merge tolerance. Returns the
// number of windows flushed.
func (m *Manager) CloseDue(ctx context.Context) (int, error) {
	nowMs := m.now().UnixMilli()
	graceMs := m.opts.GracePeriod.Milliseconds()
	tolMs := m.opts.LateMergeTolerance.Milliseconds()
	flushed := 0

	for _, sh := range m.shards {
		var emissions []types.WindowResult

		sh.mu.Lock()
		for key, w := range sh.windows {
			switch w.state {
			case WindowOpen:
				if nowMs >= w.end+graceMs {
					w.state = WindowClosing
					if !w.IsEmpty() {
						emissions = append(emissions, w.Result())
						m.stats.WindowsFlushed.Add(1)
						flushed++
					}
					w.state = WindowFlushed
					w.flushedAtMs = nowMs
					w.flushes++
					if tolMs <= 0 {
						delete(sh.windows, key)
					}
				}
			case WindowFlushed:
				if nowMs >= w.flushedAtMs+tolMs {
					delete(sh.windows, key)
				}
			}
		}
		err := m.emit(ctx, emissions)
		sh.mu.Unlock()

		if err != nil {
			return flushed, err
		}
	}
	return flushed, nil
}

// ForceFlushAll flushes every open window immediately and evicts all
// state. Called on shutdown so no window is left in an ambiguous state.
func (m *Manager) ForceFlushAll(ctx context.Context) (int, error) {
	flushed := 0
	for _, sh := range m.shards {
		var emissions []types.WindowResult

		sh.mu.Lock()
		for key, w := range sh.windows {
			if w.state == WindowOpen && !w.IsEmpty() {
				w.state = WindowFlushed
				w.flushes++
				emissions = append(emissions, w.Result())
				m.stats.WindowsFlushed.Add(1)
				flushed++
			}
			delete(sh.windows, key)
		}
		err := m.emit(ctx, emissions)
		sh.mu.Unlock()

		if err != nil {
			return flushed, err
		}
	}
	m.logger.Info("flushed all open windows", "count", flushed)
	return flushed, nil
}

// Run closes due windows on a ticker until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.CloseDue(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.logger.Error("window close failed", "error", err)
			}
		}
	}
}

// emit delivers flush results. Callers hold the shard lock, so flushes
// and re-flushes of one window reach the writer in merge order; a stale
// pre-merge aggregate can never overwrite a merged one.
func (m *Manager) emit(ctx context.Context, results []types.WindowResult) error {
	for _, result := range results {
		if err := m.flush(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// OpenWindows returns the number of windows currently held.
func (m *Manager) OpenWindows() int {
	total := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		total += len(sh.windows)
		sh.mu.Unlock()
	}
	return total
}

// Snapshot returns current aggregator statistics.
func (m *Manager) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Samples:        m.stats.Samples.Load(),
		WindowsCreated: m.stats.WindowsCreated.Load(),
		WindowsFlushed: m.stats.WindowsFlushed.Load(),
		Reflushes:      m.stats.Reflushes.Load(),
		LateSamples:    m.stats.LateSamples.Load(),
		LateMerged:     m.stats.LateMerged.Load(),
		LateDropped:    m.stats.LateDropped.Load(),
		ResetFlushes:   m.stats.ResetFlushes.Load(),
		OpenWindows:    m.OpenWindows(),
	}
}
