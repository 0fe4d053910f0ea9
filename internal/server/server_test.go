package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nagendra0018/dcn/internal/config"
	"github.com/nagendra0018/dcn/internal/intake"
	"github.com/nagendra0018/dcn/internal/store"
	"github.com/nagendra0018/dcn/internal/types"
	"github.com/nagendra0018/dcn/internal/validate"
)

func testServer(t *testing.T) (*Server, *store.Store, *validate.SchemaRegistry) {
	t.Helper()

	s, err := store.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	quarantine, err := validate.NewQuarantineStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	t.Cleanup(func() { quarantine.Close() })

	dlq, err := store.NewDeadLetterLog(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("dlq: %v", err)
	}
	t.Cleanup(func() { dlq.Close() })

	schemas := validate.NewSchemaRegistry([]config.SchemaConfig{
		{Name: "node_cpu_percent", Type: "gauge", Unit: "percent", Description: "CPU busy."},
		{Name: "disk_reads", Type: "counter", Unit: "operations"},
	})
	sources := intake.NewRegistry(time.Minute)
	sources.Register("array-1", "snmp")

	srv := New(&config.Config{Listen: "127.0.0.1:0"}, Deps{
		Store:       s,
		Schemas:     schemas,
		Sources:     sources,
		Quarantine:  quarantine,
		DeadLetters: dlq,
		Ready:       func() bool { return true },
	})
	return srv, s, schemas
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestHealthAndReady(t *testing.T) {
	srv, _, _ := testServer(t)
	h := srv.Router()

	rec, body := doJSON(t, h, "GET", "/health", nil)
	if rec.Code != 200 || body["status"] != "ok" {
		t.Errorf("health: code=%d body=%v", rec.Code, body)
	}

	rec, _ = doJSON(t, h, "GET", "/ready", nil)
	if rec.Code != 200 {
		t.Errorf("ready: expected 200, got %d", rec.Code)
	}

	srv.deps.Ready = func() bool { return false }
	rec, _ = doJSON(t, srv.Router(), "GET", "/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not ready: expected 503, got %d", rec.Code)
	}
}

func TestCountersCatalog(t *testing.T) {
	srv, _, _ := testServer(t)
	h := srv.Router()

	rec, body := doJSON(t, h, "GET", "/api/v1/counters", nil)
	if rec.Code != 200 {
		t.Fatalf("counters: %d", rec.Code)
	}
	if body["count"].(float64) != 2 {
		t.Errorf("expected 2 counters, got %v", body["count"])
	}

	// Filter by value type.
	rec, body = doJSON(t, h, "GET", "/api/v1/counters/counter", nil)
	if rec.Code != 200 || body["count"].(float64) != 1 {
		t.Errorf("type filter: code=%d body=%v", rec.Code, body)
	}

	// Exact name lookup.
	rec, body = doJSON(t, h, "GET", "/api/v1/counters/node_cpu_percent", nil)
	if rec.Code != 200 || body["name"] != "node_cpu_percent" {
		t.Errorf("name lookup: code=%d body=%v", rec.Code, body)
	}

	rec, _ = doJSON(t, h, "GET", "/api/v1/counters/no_such_metric", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown name: expected 404, got %d", rec.Code)
	}
}

func TestQueryEndpoint(t *testing.T) {
	srv, s, _ := testServer(t)
	h := srv.Router()
	ctx := context.Background()

	var points []types.SeriesPoint
	for i := int64(0); i < 6; i++ {
		points = append(points, types.SeriesPoint{
			Metric:      "node_cpu_percent",
			Labels:      types.Labels{"node": "n1"},
			TimestampMs: 1000 + i*1000,
			Value:       float64(i),
			Resolution:  types.ResolutionRaw,
		})
	}
	if err := s.UpsertPoints(ctx, points); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := map[string]any{
		"metric":     "node_cpu_percent",
		"matchers":   map[string]string{"node": "n1"},
		"start":      time.UnixMilli(0).UTC().Format(time.RFC3339),
		"end":        time.UnixMilli(10000).UTC().Format(time.RFC3339),
		"resolution": "raw",
		"limit":      4,
	}
	rec, body := doJSON(t, h, "POST", "/api/v1/query", req)
	if rec.Code != 200 {
		t.Fatalf("query: %d %s", rec.Code, rec.Body.String())
	}
	if body["count"].(float64) != 4 {
		t.Errorf("expected first page of 4, got %v", body["count"])
	}
	cursor, _ := body["next_cursor"].(string)
	if cursor == "" {
		t.Fatal("expected a next_cursor on the first page")
	}

	req["cursor"] = cursor
	rec, body = doJSON(t, h, "POST", "/api/v1/query", req)
	if rec.Code != 200 || body["count"].(float64) != 2 {
		t.Errorf("second page: code=%d count=%v", rec.Code, body["count"])
	}

	// Missing required fields is a client error.
	rec, _ = doJSON(t, h, "POST", "/api/v1/query", map[string]any{"metric": "m"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing range, got %d", rec.Code)
	}
}

func TestSourcesEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)

	rec, body := doJSON(t, srv.Router(), "GET", "/api/v1/sources", nil)
	if rec.Code != 200 || body["count"].(float64) != 1 {
		t.Fatalf("sources: code=%d body=%v", rec.Code, body)
	}
	src := body["sources"].([]any)[0].(map[string]any)
	if src["name"] != "array-1" || src["type"] != "snmp" {
		t.Errorf("unexpected source: %v", src)
	}
}

func TestExportEndpoint(t *testing.T) {
	srv, s, _ := testServer(t)
	h := srv.Router()
	ctx := context.Background()

	now := time.Now()
	s.UpsertPoints(ctx, []types.SeriesPoint{{
		Metric:      "node_cpu_percent",
		Labels:      types.Labels{"node": "n1"},
		TimestampMs: now.Add(-time.Minute).UnixMilli(),
		Value:       42,
		Resolution:  types.ResolutionRaw,
	}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/export/csv?metric=node_cpu_percent&resolution=raw", nil))
	if rec.Code != 200 {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("expected csv content type, got %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "node_cpu_percent") {
		t.Errorf("expected exported point in body:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/export/xml", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format: expected 400, got %d", rec.Code)
	}
}

func TestQuarantineInspectionAndReclassify(t *testing.T) {
	srv, _, schemas := testServer(t)

	sample := types.Sample{
		Metric: "new_metric", Labels: types.Labels{"node": "n1"},
		Value: 1, TimestampMs: 1000, Source: "array-1",
	}
	if err := srv.deps.Quarantine.Add(types.Quarantined(sample, "unknown_metric")); err != nil {
		t.Fatalf("quarantine add: %v", err)
	}
	if err := srv.deps.Quarantine.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	h := srv.Router()
	rec, body := doJSON(t, h, "GET", "/api/v1/quarantine", nil)
	if rec.Code != 200 || body["count"].(float64) != 1 {
		t.Fatalf("quarantine list: code=%d body=%v", rec.Code, body)
	}

	replayed := 0
	srv.deps.Reclassify = func(ctx context.Context) (int, error) {
		replayed++
		return 1, nil
	}
	req := map[string]any{
		"schemas": []map[string]any{{"name": "new_metric", "type": "gauge"}},
	}
	rec, body = doJSON(t, srv.Router(), "POST", "/api/v1/quarantine/reclassify", req)
	if rec.Code != 200 {
		t.Fatalf("reclassify: %d %s", rec.Code, rec.Body.String())
	}
	if body["registered"].(float64) != 1 || body["replayed"].(float64) != 1 {
		t.Errorf("unexpected reclassify result: %v", body)
	}
	if replayed != 1 {
		t.Error("reclassify callback not invoked")
	}
	if _, ok := schemas.Lookup("new_metric"); !ok {
		t.Error("schema from body should be registered")
	}
}

func TestDeadLetterEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)

	err := srv.deps.DeadLetters.Append(store.DeadLetterBatch{
		Points:   []types.SeriesPoint{{Metric: "m", TimestampMs: 1, Value: 2, Resolution: types.ResolutionRaw}},
		Reason:   "store unreachable",
		Attempts: 5,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	rec, body := doJSON(t, srv.Router(), "GET", "/api/v1/deadletter", nil)
	if rec.Code != 200 || body["count"].(float64) != 1 {
		t.Fatalf("deadletter: code=%d body=%v", rec.Code, body)
	}
}
