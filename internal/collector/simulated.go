package collector

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/nagendra0018/dcn/internal/types"
)

// SimulatedCollector emits a storage-array workload without hardware:
// per-node IOPS counters, read/write latency gauges, throughput, and
// per-aggregate capacity. Counters accumulate monotonically across polls
// so the counter validation path sees realistic input.
type SimulatedCollector struct {
	name string

	mu       sync.Mutex
	rng      *rand.Rand
	counters map[string]float64

	now func() time.Time
}

var (
	simulatedNodes      = []string{"node-01", "node-02", "node-03"}
	simulatedAggregates = []string{"aggr1", "aggr2", "aggr3"}
)

// NewSimulatedCollector creates a simulated array under the given
// source name.
func NewSimulatedCollector(name string) *SimulatedCollector {
	return &SimulatedCollector{
		name:     name,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		counters: make(map[string]float64),
		now:      time.Now,
	}
}

// Name returns the configured source name.
func (c *SimulatedCollector) Name() string { return c.name }

// Collect produces one poll's worth of samples.
func (c *SimulatedCollector) Collect(ctx context.Context) ([]types.Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nowMs := c.now().UnixMilli()
	var samples []types.Sample

	add := func(metric string, value float64, labels types.Labels) {
		samples = append(samples, types.Sample{
			Metric:      metric,
			Labels:      labels,
			Value:       value,
			TimestampMs: nowMs,
			Source:      c.name,
		})
	}

	for _, node := range simulatedNodes {
		add("dcn_storage_iops_total",
			c.accumulate("iops/"+node+"/read", 1500),
			types.Labels{"node": node, "type": "read"})
		add("dcn_storage_iops_total",
			c.accumulate("iops/"+node+"/write", 800),
			types.Labels{"node": node, "type": "write"})

		add("dcn_storage_latency_milliseconds",
			c.jitter(2.5, 0.5),
			types.Labels{"node": node, "operation": "read"})
		add("dcn_storage_latency_milliseconds",
			c.jitter(3.2, 0.6),
			types.Labels{"node": node, "operation": "write"})

		add("dcn_storage_throughput_bytes_per_second",
			c.jitter(100*1024*1024, 10*1024*1024),
			types.Labels{"node": node})
	}

	for _, aggr := range simulatedAggregates {
		add("dcn_storage_capacity_bytes", 10*1024*1024*1024*1024,
			types.Labels{"aggregate": aggr, "type": "total"})
		add("dcn_storage_capacity_bytes",
			c.accumulate("capacity/"+aggr, 64*1024*1024),
			types.Labels{"aggregate": aggr, "type": "used"})
	}

	return samples, nil
}

// accumulate advances a monotonic counter by a randomized increment
// around rate and returns the new total.
func (c *SimulatedCollector) accumulate(key string, rate float64) float64 {
	c.counters[key] += rate * (0.5 + c.rng.Float64())
	return c.counters[key]
}

// jitter returns base with up to +-spread of noise.
func (c *SimulatedCollector) jitter(base, spread float64) float64 {
	return base + spread*(2*c.rng.Float64()-1)
}
