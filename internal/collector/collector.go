// Package collector implements the embedded metric collectors: an SNMP
// poller for network-reachable devices and a simulated storage array for
// development profiles. Collectors run on their own poll intervals and
// deliver sample batches to a sink (the intake directly, or the bus
// producer when a broker is configured).
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nagendra0018/dcn/internal/config"
	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
)

// Collector produces one batch of samples per poll.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]types.Sample, error)
}

// Sink receives collected batches.
type Sink interface {
	Deliver(ctx context.Context, source string, samples []types.Sample) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, source string, samples []types.Sample) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, source string, samples []types.Sample) error {
	return f(ctx, source, samples)
}

// entry pairs a collector with its poll interval.
type entry struct {
	collector Collector
	interval  time.Duration
}

// Runner polls all enabled collectors on their configured intervals.
type Runner struct {
	entries []entry
	sink    Sink
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewRunner builds a runner from configuration. Disabled collectors are
// skipped; unknown types fail.
func NewRunner(configs []config.CollectorConfig, sink Sink) (*Runner, error) {
	r := &Runner{
		sink:   sink,
		logger: logging.Component("collector"),
	}

	for _, cc := range configs {
		if !cc.Enabled {
			continue
		}

		var c Collector
		switch cc.Type {
		case "snmp":
			c = NewSNMPCollector(cc.Name, cc.SNMP)
		case "simulated":
			c = NewSimulatedCollector(cc.Name)
		default:
			return nil, errors.NewInvalidValue("collector type", cc.Type, "must be snmp or simulated")
		}

		interval := cc.PollInterval
		if interval <= 0 {
			interval = time.Minute
		}
		r.entries = append(r.entries, entry{collector: c, interval: interval})
	}
	return r, nil
}

// Len returns the number of enabled collectors.
func (r *Runner) Len() int {
	return len(r.entries)
}

// Run polls until ctx is cancelled. Each collector polls on its own
// goroutine with an immediate first collection.
func (r *Runner) Run(ctx context.Context) {
	for _, e := range r.entries {
		r.wg.Add(1)
		go func(e entry) {
			defer r.wg.Done()
			r.poll(ctx, e)
		}(e)
	}
	r.wg.Wait()
}

func (r *Runner) poll(ctx context.Context, e entry) {
	r.logger.Info("collector started",
		"collector", e.collector.Name(),
		"interval", e.interval.String())

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	r.collectOnce(ctx, e.collector)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.collectOnce(ctx, e.collector)
		}
	}
}

// collectOnce runs one poll cycle. Collection errors are logged and the
// cycle skipped; the source registry marks the source degraded once it
// misses enough intervals.
func (r *Runner) collectOnce(ctx context.Context, c Collector) {
	start := time.Now()
	samples, err := c.Collect(ctx)
	if err != nil {
		r.logger.Error("collection failed",
			"collector", c.Name(),
			"error", err)
		return
	}
	if len(samples) == 0 {
		r.logger.Warn("collection returned no samples", "collector", c.Name())
		return
	}

	if err := r.sink.Deliver(ctx, c.Name(), samples); err != nil {
		r.logger.Error("batch delivery failed",
			"collector", c.Name(),
			"samples", len(samples),
			"error", err)
		return
	}

	r.logger.Debug("collection cycle complete",
		"collector", c.Name(),
		"samples", len(samples),
		"elapsed", time.Since(start).String())
}
