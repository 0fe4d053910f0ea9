package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nagendra0018/dcn/internal/types"
)

type fakeSource struct {
	points  []types.SeriesPoint
	windows []types.WindowResult
	calls   int
}

func (f *fakeSource) MetricNames(ctx context.Context) ([]string, error) {
	f.calls++
	seen := map[string]bool{}
	var names []string
	for _, p := range f.points {
		if !seen[p.Metric] {
			seen[p.Metric] = true
			names = append(names, p.Metric)
		}
	}
	return names, nil
}

func (f *fakeSource) LatestPerSeries(ctx context.Context, metric string) ([]types.SeriesPoint, error) {
	var out []types.SeriesPoint
	for _, p := range f.points {
		if p.Metric == metric {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeSource) LatestWindowPerSeries(ctx context.Context, metric string, resolution types.Resolution) ([]types.WindowResult, error) {
	var out []types.WindowResult
	for _, w := range f.windows {
		if w.Metric == metric && w.Resolution == resolution {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeSchemas map[string]SchemaInfo

func (f fakeSchemas) SchemaInfo(metric string) (SchemaInfo, bool) {
	info, ok := f[metric]
	return info, ok
}

func TestMetricsScrape(t *testing.T) {
	m := NewMetrics()
	m.BatchesReceived.Inc()
	m.Malformed.WithLabelValues("missing_name").Add(3)
	m.Classified.WithLabelValues("accepted").Add(10)
	m.QueueDepth.WithLabelValues("intake").Set(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`dcn_pipeline_batches_received_total 1`,
		`dcn_pipeline_malformed_total{reason="missing_name"} 3`,
		`dcn_pipeline_samples_classified_total{class="accepted"} 10`,
		`dcn_pipeline_queue_depth{stage="intake"} 7`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestSeriesCollectorExposesLatestValues(t *testing.T) {
	source := &fakeSource{
		points: []types.SeriesPoint{
			{Metric: "node_cpu_percent", Labels: types.Labels{"node": "n1"},
				TimestampMs: 1748772000000, Value: 42.5, Resolution: types.ResolutionRaw},
			{Metric: "disk_reads", Labels: types.Labels{"node": "n1", "disk": "d0"},
				TimestampMs: 1748772000000, Value: 1000, Resolution: types.ResolutionRaw},
		},
		windows: []types.WindowResult{
			{Metric: "node_cpu_percent", Labels: types.Labels{"node": "n1"},
				WindowStart: 1748771940000, WindowEnd: 1748772000000,
				Resolution: types.Resolution1m, Count: 4, Sum: 160, Avg: 40},
		},
	}
	schemas := fakeSchemas{
		"node_cpu_percent": {Name: "node_cpu_percent", Description: "CPU busy percentage."},
		"disk_reads":       {Name: "disk_reads", Counter: true},
	}

	m := NewMetrics()
	if err := m.Register(NewSeriesCollector(source, schemas)); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("scrape failed: %d %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	if !strings.Contains(body, `node_cpu_percent{node="n1"} 42.5`) {
		t.Errorf("missing gauge sample in scrape:\n%s", body)
	}
	if !strings.Contains(body, `disk_reads{disk="d0",node="n1"} 1000`) {
		t.Errorf("missing counter sample in scrape:\n%s", body)
	}
	if !strings.Contains(body, "# HELP node_cpu_percent CPU busy percentage.") {
		t.Errorf("schema description should become help text:\n%s", body)
	}
	if !strings.Contains(body, `node_cpu_percent:1m_avg{node="n1"} 40`) {
		t.Errorf("missing latest window aggregate in scrape:\n%s", body)
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "CSV", "prometheus"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	points := []types.SeriesPoint{
		{Metric: "m", Labels: types.Labels{"node": "n1"},
			TimestampMs: 1000, Value: 1.5, Resolution: types.ResolutionRaw},
	}
	if err := Render(&buf, FormatJSON, points); err != nil {
		t.Fatalf("render: %v", err)
	}

	var got []pointJSON
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output must be valid JSON: %v", err)
	}
	if len(got) != 1 || got[0].Metric != "m" || got[0].Value != 1.5 || got[0].Resolution != "raw" {
		t.Errorf("unexpected output: %+v", got)
	}
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	points := []types.SeriesPoint{
		{Metric: "m", Labels: types.Labels{"node": "n1"},
			TimestampMs: 1000, Value: 1.5, Resolution: types.ResolutionRaw},
		{Metric: "m", Labels: types.Labels{"node": "n2"},
			TimestampMs: 2000, Value: 2, Resolution: types.ResolutionRaw},
	}
	if err := Render(&buf, FormatCSV, points); err != nil {
		t.Fatalf("render: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output must be valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "metric" {
		t.Errorf("expected header row, got %v", rows[0])
	}
	if rows[1][1] != "node=n1" || rows[1][3] != "1.5" {
		t.Errorf("unexpected data row: %v", rows[1])
	}
}

func TestRenderPrometheusText(t *testing.T) {
	var buf bytes.Buffer
	points := []types.SeriesPoint{
		{Metric: "b_metric", TimestampMs: 1000, Value: 2, Resolution: types.ResolutionRaw},
		{Metric: "a_metric", Labels: types.Labels{"node": "n1", "disk": "d0"},
			TimestampMs: 1000, Value: 1, Resolution: types.ResolutionRaw},
	}
	if err := Render(&buf, FormatPrometheus, points); err != nil {
		t.Fatalf("render: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"# TYPE a_metric untyped",
		`a_metric{disk="d0",node="n1"} 1 1000`,
		"# TYPE b_metric untyped",
		"b_metric 2 1000",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d:\n%s", len(want), len(lines), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestContentTypes(t *testing.T) {
	if FormatJSON.ContentType() != "application/json" {
		t.Error("json content type")
	}
	if FormatCSV.ContentType() != "text/csv" {
		t.Error("csv content type")
	}
	if !strings.HasPrefix(FormatPrometheus.ContentType(), "text/plain") {
		t.Error("prometheus content type")
	}
}
