package intake

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
)

// Registry tracks known data sources and their liveness. A source is up
// while batches arrive within the collection interval, degraded after one
// missed interval, and down after three.
type Registry struct {
	mu       sync.RWMutex
	sources  map[string]*types.DataSource
	interval time.Duration
	logger   *slog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// NewRegistry creates a registry with the expected collection interval.
func NewRegistry(interval time.Duration) *Registry {
	return &Registry{
		sources:  make(map[string]*types.DataSource),
		interval: interval,
		logger:   logging.Component("sources"),
		now:      time.Now,
	}
}

// Register declares a source ahead of its first batch.
func (r *Registry) Register(name, sourceType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[name]; ok {
		return
	}
	r.sources[name] = &types.DataSource{
		Name:   name,
		Type:   sourceType,
		Status: types.SourceDown,
	}
}

// RecordBatch marks a batch received from a source, auto-registering
// unknown sources.
func (r *Registry) RecordBatch(name string, samples int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[name]
	if !ok {
		src = &types.DataSource{Name: name, Type: "bus"}
		r.sources[name] = src
	}

	if src.Status != types.SourceUp {
		r.logger.Info("source recovered",
			"source", name,
			"previous", src.Status.String())
	}
	src.Status = types.SourceUp
	src.LastCollection = r.now().UnixMilli()
	src.MetricsCount += int64(samples)
}

// Get returns a copy of one source record.
func (r *Registry) Get(name string) (types.DataSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[name]
	if !ok {
		return types.DataSource{}, false
	}
	return *src, true
}

// List returns copies of all source records, sorted by name.
func (r *Registry) List() []types.DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.DataSource, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, *src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CheckLiveness downgrades sources that missed collection intervals.
// Returns the number of sources not currently up.
func (r *Registry) CheckLiveness() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	nowMs := r.now().UnixMilli()
	stale := 0
	for _, src := range r.sources {
		if src.LastCollection == 0 {
			stale++
			continue
		}
		age := time.Duration(nowMs-src.LastCollection) * time.Millisecond

		var next types.SourceStatus
		switch {
		case age > 3*r.interval:
			next = types.SourceDown
		case age > r.interval:
			next = types.SourceDegraded
		default:
			next = types.SourceUp
		}

		if next != src.Status {
			r.logger.Warn("source liveness changed",
				"source", src.Name,
				"from", src.Status.String(),
				"to", next.String(),
				"age", age.String())
			src.Status = next
		}
		if next != types.SourceUp {
			stale++
		}
	}
	return stale
}

// Watch runs the liveness check on a ticker until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CheckLiveness()
		}
	}
}
