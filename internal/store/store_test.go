package store

import (
	"context"
	"testing"
	"time"

	"github.com/nagendra0018/dcn/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func point(metric string, tsMs int64, value float64) types.SeriesPoint {
	return types.SeriesPoint{
		Metric:      metric,
		Labels:      types.Labels{"node": "n1"},
		TimestampMs: tsMs,
		Value:       value,
		Resolution:  types.ResolutionRaw,
	}
}

func TestUpsertPointsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := point("m", 1000, 10)
	if err := s.UpsertPoints(ctx, []types.SeriesPoint{p}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Writing the same key again overwrites, never duplicates.
	p.Value = 20
	if err := s.UpsertPoints(ctx, []types.SeriesPoint{p}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	n, err := s.CountPoints(ctx, types.ResolutionRaw)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after double write, got %d", n)
	}

	page, err := s.QueryPoints(ctx, PointQuery{
		Metric: "m",
		Start:  time.UnixMilli(0),
		End:    time.UnixMilli(10000),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page.Points) != 1 || page.Points[0].Value != 20 {
		t.Errorf("expected overwritten value 20, got %+v", page.Points)
	}
}

func TestUpsertDistinctKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Same metric and timestamp at different resolutions are distinct rows.
	p1 := point("m", 1000, 1)
	p2 := p1
	p2.Resolution = types.Resolution1m

	if err := s.UpsertPoints(ctx, []types.SeriesPoint{p1, p2}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	raw, _ := s.CountPoints(ctx, types.ResolutionRaw)
	agg, _ := s.CountPoints(ctx, types.Resolution1m)
	if raw != 1 || agg != 1 {
		t.Errorf("expected 1 row per resolution, got raw=%d 1m=%d", raw, agg)
	}
}

func TestQueryPointsRangeAndMatchers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	points := []types.SeriesPoint{
		{Metric: "m", Labels: types.Labels{"node": "n1"}, TimestampMs: 1000, Value: 1, Resolution: types.ResolutionRaw},
		{Metric: "m", Labels: types.Labels{"node": "n2"}, TimestampMs: 2000, Value: 2, Resolution: types.ResolutionRaw},
		{Metric: "m", Labels: types.Labels{"node": "n1"}, TimestampMs: 3000, Value: 3, Resolution: types.ResolutionRaw},
		{Metric: "other", Labels: types.Labels{"node": "n1"}, TimestampMs: 1500, Value: 9, Resolution: types.ResolutionRaw},
	}
	if err := s.UpsertPoints(ctx, points); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	raw := types.ResolutionRaw
	page, err := s.QueryPoints(ctx, PointQuery{
		Metric:     "m",
		Matchers:   types.Labels{"node": "n1"},
		Start:      time.UnixMilli(0),
		End:        time.UnixMilli(2500),
		Resolution: &raw,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page.Points) != 1 {
		t.Fatalf("expected 1 point (range + matcher), got %d", len(page.Points))
	}
	if page.Points[0].Value != 1 {
		t.Errorf("unexpected point: %+v", page.Points[0])
	}
}

func TestQueryPointsPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var points []types.SeriesPoint
	for i := int64(0); i < 10; i++ {
		points = append(points, point("m", 1000+i, float64(i)))
	}
	if err := s.UpsertPoints(ctx, points); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	raw := types.ResolutionRaw
	q := PointQuery{
		Metric:     "m",
		Start:      time.UnixMilli(0),
		End:        time.UnixMilli(10000),
		Resolution: &raw,
		Limit:      4,
	}

	var all []types.SeriesPoint
	pages := 0
	for {
		page, err := s.QueryPoints(ctx, q)
		if err != nil {
			t.Fatalf("query page %d: %v", pages, err)
		}
		all = append(all, page.Points...)
		pages++
		if page.NextCursor == "" {
			break
		}
		q.Cursor = page.NextCursor
	}

	if len(all) != 10 {
		t.Errorf("expected 10 points across pages, got %d", len(all))
	}
	if pages < 3 {
		t.Errorf("expected at least 3 pages with limit 4, got %d", pages)
	}
	for i := 1; i < len(all); i++ {
		if all[i].TimestampMs < all[i-1].TimestampMs {
			t.Fatal("pagination must preserve timestamp order")
		}
	}
}

func TestQueryResolutionAutoSelect(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	end := time.Now()

	// Short range reads raw.
	page, err := s.QueryPoints(ctx, PointQuery{Metric: "m", Start: end.Add(-time.Hour), End: end})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Resolution != types.ResolutionRaw {
		t.Errorf("1h range: expected raw, got %v", page.Resolution)
	}

	// Week-long range reads 5m rollups.
	page, err = s.QueryPoints(ctx, PointQuery{Metric: "m", Start: end.Add(-7 * 24 * time.Hour), End: end})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Resolution != types.Resolution5m {
		t.Errorf("7d range: expected 5m, got %v", page.Resolution)
	}
}

func TestUpsertWindowsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := types.WindowResult{
		Metric:      "m",
		Labels:      types.Labels{"node": "n1"},
		WindowStart: 60000,
		WindowEnd:   120000,
		Resolution:  types.Resolution1m,
		Count:       3,
		Sum:         30,
		Min:         5,
		Max:         15,
		Avg:         10,
		FirstTs:     61000,
		LastTs:      115000,
	}
	if err := s.UpsertWindows(ctx, []types.WindowResult{w}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A re-flush with merged late data overwrites the same window row.
	w.Count = 4
	w.Sum = 42
	w.Avg = 10.5
	if err := s.UpsertWindows(ctx, []types.WindowResult{w}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := s.QueryWindows(ctx, "m", nil, types.Resolution1m,
		time.UnixMilli(0), time.UnixMilli(200000), 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Count != 4 || got[0].Sum != 42 {
		t.Errorf("expected overwritten window, got %+v", got[0])
	}
	if got[0].HasPercentiles() {
		t.Error("expected no percentiles for window without sketch")
	}
}

func TestWindowPercentilesRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := types.WindowResult{
		Metric:      "m",
		WindowStart: 0,
		WindowEnd:   60000,
		Resolution:  types.Resolution1m,
		Count:       100,
		Sum:         5050,
		Min:         1,
		Max:         100,
		Avg:         50.5,
	}
	w.SetPercentiles(50, 90, 95, 99)

	if err := s.UpsertWindows(ctx, []types.WindowResult{w}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.QueryWindows(ctx, "m", nil, types.Resolution1m,
		time.UnixMilli(0), time.UnixMilli(60000), 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || !got[0].HasPercentiles() {
		t.Fatalf("expected window with percentiles, got %+v", got)
	}
	if *got[0].P99 != 99 {
		t.Errorf("expected p99=99, got %f", *got[0].P99)
	}
}

func TestLatestPerSeries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	points := []types.SeriesPoint{
		{Metric: "m", Labels: types.Labels{"node": "n1"}, TimestampMs: 1000, Value: 1, Resolution: types.ResolutionRaw},
		{Metric: "m", Labels: types.Labels{"node": "n1"}, TimestampMs: 3000, Value: 3, Resolution: types.ResolutionRaw},
		{Metric: "m", Labels: types.Labels{"node": "n2"}, TimestampMs: 2000, Value: 2, Resolution: types.ResolutionRaw},
	}
	if err := s.UpsertPoints(ctx, points); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	latest, err := s.LatestPerSeries(ctx, "m")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 series, got %d", len(latest))
	}
	for _, p := range latest {
		switch p.Labels["node"] {
		case "n1":
			if p.Value != 3 {
				t.Errorf("n1: expected newest value 3, got %f", p.Value)
			}
		case "n2":
			if p.Value != 2 {
				t.Errorf("n2: expected value 2, got %f", p.Value)
			}
		default:
			t.Errorf("unexpected series: %v", p.Labels)
		}
	}
}

func TestLatestWindowPerSeries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	windows := []types.WindowResult{
		{Metric: "m", Labels: types.Labels{"node": "n1"}, WindowStart: 0,
			WindowEnd: 60000, Resolution: types.Resolution1m, Count: 2, Sum: 20, Avg: 10},
		{Metric: "m", Labels: types.Labels{"node": "n1"}, WindowStart: 60000,
			WindowEnd: 120000, Resolution: types.Resolution1m, Count: 3, Sum: 90, Avg: 30},
		{Metric: "m", Labels: types.Labels{"node": "n2"}, WindowStart: 0,
			WindowEnd: 60000, Resolution: types.Resolution1m, Count: 1, Sum: 5, Avg: 5},
		// Other resolutions must not leak into the result.
		{Metric: "m", Labels: types.Labels{"node": "n1"}, WindowStart: 0,
			WindowEnd: 300000, Resolution: types.Resolution5m, Count: 5, Sum: 110, Avg: 22},
	}
	if err := s.UpsertWindows(ctx, windows); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	latest, err := s.LatestWindowPerSeries(ctx, "m", types.Resolution1m)
	if err != nil {
		t.Fatalf("latest windows: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 series, got %d", len(latest))
	}
	for _, w := range latest {
		switch w.Labels["node"] {
		case "n1":
			if w.WindowStart != 60000 || w.Avg != 30 {
				t.Errorf("n1: expected newest window, got %+v", w)
			}
		case "n2":
			if w.Avg != 5 {
				t.Errorf("n2: expected avg 5, got %f", w.Avg)
			}
		default:
			t.Errorf("unexpected series: %v", w.Labels)
		}
	}
}

func TestMetricNames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertPoints(ctx, []types.SeriesPoint{
		point("b_metric", 1000, 1),
		point("a_metric", 1000, 1),
	})

	names, err := s.MetricNames(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 2 || names[0] != "a_metric" || names[1] != "b_metric" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertPoints(ctx, []types.SeriesPoint{
		point("m", 1000, 1),
		point("m", 5000, 2),
	})

	deleted, err := s.DeleteOlderThan(ctx, types.ResolutionRaw, time.UnixMilli(3000))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted row, got %d", deleted)
	}

	n, _ := s.CountPoints(ctx, types.ResolutionRaw)
	if n != 1 {
		t.Errorf("expected 1 remaining row, got %d", n)
	}
}

func TestRetentionSweep(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	old := now.Add(-72 * time.Hour)

	s.UpsertPoints(ctx, []types.SeriesPoint{
		point("m", old.UnixMilli(), 1),
		point("m", now.UnixMilli(), 2),
	})

	enforcer := NewEnforcer(s, func(r types.Resolution) time.Duration {
		return r.DefaultRetention()
	})

	deleted, err := enforcer.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 expired row, got %d", deleted)
	}
}
