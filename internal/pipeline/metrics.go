package pipeline

import (
	"context"
	"time"

	"github.com/nagendra0018/dcn/internal/types"
)

// pumpInterval is how often component statistics are mirrored into the
// Prometheus registry.
const pumpInterval = 5 * time.Second

// counterState remembers the last observed component totals so the pump
// can apply deltas to monotonic counters.
type counterState struct {
	batches, decoded, malformed         int64
	accepted, rejected, quarantined     int64
	resets, duplicates                  int64
	flushed, reflushes                  int64
	lateMerged, lateDropped             int64
	points, windows, retries, deadLtrs  int64
}

// pump mirrors component statistics into the metrics registry until ctx
// is cancelled, with a final sync on the way out.
func (p *Pipeline) pump(ctx context.Context) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	var prev counterState
	for {
		select {
		case <-ctx.Done():
			p.sync(&prev)
			return
		case <-ticker.C:
			p.sync(&prev)
		}
	}
}

func (p *Pipeline) sync(prev *counterState) {
	m := p.metrics
	var cur counterState

	cur.batches, cur.decoded, cur.malformed = p.in.Snapshot()
	cur.accepted, cur.rejected, cur.quarantined, cur.resets = p.validator.Snapshot()
	_, cur.duplicates = p.transformer.Snapshot()
	agg := p.aggregator.Snapshot()
	cur.flushed = agg.WindowsFlushed
	cur.reflushes = agg.Reflushes
	cur.lateMerged = agg.LateMerged
	cur.lateDropped = agg.LateDropped
	cur.points, cur.windows, _, cur.retries, cur.deadLtrs = p.writer.Snapshot()

	m.BatchesReceived.Add(float64(cur.batches - prev.batches))
	m.SamplesDecoded.Add(float64(cur.decoded - prev.decoded))
	m.Malformed.WithLabelValues("decode").Add(float64(cur.malformed - prev.malformed))

	m.Classified.WithLabelValues("accepted").Add(float64(cur.accepted - prev.accepted))
	m.Classified.WithLabelValues("rejected").Add(float64(cur.rejected - prev.rejected))
	m.Classified.WithLabelValues("quarantined").Add(float64(cur.quarantined - prev.quarantined))
	m.Resets.Add(float64(cur.resets - prev.resets))
	m.Duplicates.Add(float64(cur.duplicates - prev.duplicates))

	m.WindowsFlushed.Add(float64(cur.flushed - prev.flushed))
	m.Reflushes.Add(float64(cur.reflushes - prev.reflushes))
	m.LateSamples.WithLabelValues("merged").Add(float64(cur.lateMerged - prev.lateMerged))
	m.LateSamples.WithLabelValues("dropped").Add(float64(cur.lateDropped - prev.lateDropped))

	m.PointsWritten.Add(float64(cur.points - prev.points))
	m.WindowsWritten.Add(float64(cur.windows - prev.windows))
	m.StoreRetries.Add(float64(cur.retries - prev.retries))
	m.DeadLettered.Add(float64(cur.deadLtrs - prev.deadLtrs))

	m.QueueDepth.WithLabelValues("intake").Set(float64(p.intakeQ.Len()))
	m.QueueDepth.WithLabelValues("validate").Set(float64(p.validQ.Len()))
	m.QueueDepth.WithLabelValues("aggregate").Set(float64(p.aggQ.Len()))
	m.QueueDepth.WithLabelValues("store").Set(float64(p.writeQ.Len()))
	m.OpenWindows.Set(float64(agg.OpenWindows))

	stale := 0
	for _, src := range p.sources.List() {
		if src.Status != types.SourceUp {
			stale++
		}
	}
	m.SourcesStale.Set(float64(stale))

	*prev = cur
}
