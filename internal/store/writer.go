package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/queue"
	"github.com/nagendra0018/dcn/internal/types"
)

// WriteItem is one unit of work for the store writer: either a raw
// point or a flushed window aggregate.
type WriteItem struct {
	Point  *types.SeriesPoint
	Window *types.WindowResult
}

// PointItem wraps a point for the write queue.
func PointItem(p types.SeriesPoint) WriteItem {
	return WriteItem{Point: &p}
}

// WindowItem wraps a window result for the write queue.
func WindowItem(w types.WindowResult) WriteItem {
	return WriteItem{Window: &w}
}

// WriterOptions configures the batching writer.
type WriterOptions struct {
	// BatchSize is the number of items committed per batch.
	BatchSize int

	// FlushInterval commits a partial batch after this long.
	FlushInterval time.Duration

	// MaxAttempts bounds write attempts before dead-lettering.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; it doubles
	// per attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// ObserveWrite, when set, receives the latency of each committed
	// batch.
	ObserveWrite func(time.Duration)
}

// WriterStats tracks writer activity.
type WriterStats struct {
	PointsWritten  atomic.Int64
	WindowsWritten atomic.Int64
	Batches        atomic.Int64
	Retries        atomic.Int64
	DeadLettered   atomic.Int64
}

// Writer drains the write queue into the store in batches. Failed
// batches retry with exponential backoff; exhausted batches go to the
// dead-letter log and the writer moves on.
type Writer struct {
	store  *Store
	dlq    *DeadLetterLog
	in     *queue.Queue[WriteItem]
	opts   WriterOptions
	logger *slog.Logger
	stats  WriterStats

	sleep func(ctx context.Context, d time.Duration) error
}

// NewWriter creates a writer draining in.
func NewWriter(s *Store, dlq *DeadLetterLog, in *queue.Queue[WriteItem], opts WriterOptions) *Writer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 100 * time.Millisecond
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = 5 * time.Second
	}
	return &Writer{
		store:  s,
		dlq:    dlq,
		in:     in,
		opts:   opts,
		logger: logging.Component("store-writer"),
		sleep:  sleepCtx,
	}
}

// Run drains the queue until ctx is cancelled or the queue closes.
// Remaining buffered items are flushed before returning; partial batches
// commit after FlushInterval of quiet.
func (w *Writer) Run(ctx context.Context) error {
	batch := make([]WriteItem, 0, w.opts.BatchSize)

	// Flushing uses a background context so a drain on shutdown can
	// still commit.
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := w.writeBatch(context.Background(), batch)
		batch = batch[:0]
		return err
	}

	drain := func() {
		for {
			item, ok := w.in.TryGet()
			if !ok {
				return
			}
			batch = append(batch, item)
		}
	}

	for {
		getCtx, cancel := context.WithTimeout(ctx, w.opts.FlushInterval)
		item, err := w.in.Get(getCtx)
		cancel()

		if err != nil {
			if errors.Is(err, errors.ErrQueueClosed) {
				return flush()
			}
			if ctx.Err() != nil {
				drain()
				if flushErr := flush(); flushErr != nil {
					return flushErr
				}
				return ctx.Err()
			}
			// Quiet interval elapsed: commit the partial batch.
			if err := flush(); err != nil {
				return err
			}
			continue
		}

		batch = append(batch, item)
		if len(batch) >= w.opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// writeBatch commits one batch with bounded retries, dead-lettering on
// exhaustion. Upserts are idempotent, so retrying a partially applied
// batch converges.
func (w *Writer) writeBatch(ctx context.Context, batch []WriteItem) error {
	points := make([]types.SeriesPoint, 0, len(batch))
	windows := make([]types.WindowResult, 0)
	for _, item := range batch {
		if item.Point != nil {
			points = append(points, *item.Point)
		}
		if item.Window != nil {
			windows = append(windows, *item.Window)
		}
	}

	var lastErr error
	backoff := w.opts.InitialBackoff

	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		start := time.Now()
		lastErr = w.tryWrite(ctx, points, windows)
		if lastErr == nil {
			if w.opts.ObserveWrite != nil {
				w.opts.ObserveWrite(time.Since(start))
			}
			w.stats.Batches.Add(1)
			w.stats.PointsWritten.Add(int64(len(points)))
			w.stats.WindowsWritten.Add(int64(len(windows)))
			return nil
		}
		if errors.Is(lastErr, errors.ErrStoreClosed) || ctx.Err() != nil {
			break
		}

		w.stats.Retries.Add(1)
		w.logger.Warn("store write failed, retrying",
			"attempt", attempt,
			"max_attempts", w.opts.MaxAttempts,
			"backoff", backoff.String(),
			"error", lastErr)

		if attempt < w.opts.MaxAttempts {
			if err := w.sleep(ctx, backoff); err != nil {
				break
			}
			backoff *= 2
			if backoff > w.opts.MaxBackoff {
				backoff = w.opts.MaxBackoff
			}
		}
	}

	// Retries exhausted: preserve the batch, then continue with the
	// next one. Only a dead-letter failure is fatal.
	w.stats.DeadLettered.Add(1)
	w.logger.Error("store write retries exhausted, dead-lettering batch",
		"points", len(points),
		"windows", len(windows),
		"error", lastErr)

	dlErr := w.dlq.Append(DeadLetterBatch{
		Points:   points,
		Windows:  windows,
		Reason:   lastErr.Error(),
		Attempts: w.opts.MaxAttempts,
		FailedMs: time.Now().UnixMilli(),
	})
	if dlErr != nil {
		return dlErr
	}
	return nil
}

func (w *Writer) tryWrite(ctx context.Context, points []types.SeriesPoint, windows []types.WindowResult) error {
	if err := w.store.UpsertPoints(ctx, points); err != nil {
		return err
	}
	return w.store.UpsertWindows(ctx, windows)
}

// Snapshot returns current writer statistics.
func (w *Writer) Snapshot() (points, windows, batches, retries, deadLettered int64) {
	return w.stats.PointsWritten.Load(),
		w.stats.WindowsWritten.Load(),
		w.stats.Batches.Load(),
		w.stats.Retries.Load(),
		w.stats.DeadLettered.Load()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
