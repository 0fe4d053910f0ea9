package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nagendra0018/dcn/internal/config"
	"github.com/nagendra0018/dcn/internal/export"
	"github.com/nagendra0018/dcn/internal/store"
	"github.com/nagendra0018/dcn/internal/types"
	"github.com/nagendra0018/dcn/internal/validate"
)

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if s.deps.Store != nil {
		n, err := s.deps.Store.CountPoints(c.Request.Context(), types.ResolutionRaw)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read store"})
			return
		}
		resp["raw_points"] = n
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Ready != nil && !s.deps.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// counterJSON is the API rendering of a registered metric schema.
type counterJSON struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Unit        string   `json:"unit,omitempty"`
	Description string   `json:"description,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
}

func counterFromSchema(sc *validate.Schema) counterJSON {
	var labels []string
	for k := range sc.AllowedLabels {
		labels = append(labels, k)
	}
	return counterJSON{
		Name:        sc.Name,
		Type:        sc.Type.String(),
		Unit:        sc.Unit,
		Description: sc.Description,
		Labels:      labels,
		Min:         sc.Min,
		Max:         sc.Max,
	}
}

func (s *Server) handleCounters(c *gin.Context) {
	schemas := s.deps.Schemas.List()
	out := make([]counterJSON, len(schemas))
	for i, sc := range schemas {
		out[i] = counterFromSchema(sc)
	}
	c.JSON(http.StatusOK, gin.H{"counters": out, "count": len(out)})
}

// handleCountersByType serves one catalog subset. The path parameter is
// a value type (counter, gauge) selecting all schemas of that type, or
// an exact metric name.
func (s *Server) handleCountersByType(c *gin.Context) {
	param := c.Param("type")

	if vt, ok := types.ParseValueType(param); ok {
		var out []counterJSON
		for _, sc := range s.deps.Schemas.List() {
			if sc.Type == vt {
				out = append(out, counterFromSchema(sc))
			}
		}
		c.JSON(http.StatusOK, gin.H{"counters": out, "count": len(out)})
		return
	}

	if sc, ok := s.deps.Schemas.Lookup(param); ok {
		c.JSON(http.StatusOK, counterFromSchema(sc))
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown counter type or name: " + param})
}

type queryRequest struct {
	Metric     string            `json:"metric" binding:"required"`
	Matchers   map[string]string `json:"matchers"`
	Start      time.Time         `json:"start" binding:"required"`
	End        time.Time         `json:"end" binding:"required"`
	Resolution string            `json:"resolution"`
	Limit      int               `json:"limit"`
	Cursor     string            `json:"cursor"`
}

type pointJSON struct {
	Labels      map[string]string `json:"labels,omitempty"`
	TimestampMs int64             `json:"timestamp"`
	Value       float64           `json:"value"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query body: " + err.Error()})
		return
	}
	if !req.End.After(req.Start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be after start"})
		return
	}

	q := store.PointQuery{
		Metric:   req.Metric,
		Matchers: req.Matchers,
		Start:    req.Start,
		End:      req.End,
		Limit:    req.Limit,
		Cursor:   req.Cursor,
	}
	if req.Resolution != "" {
		r, err := types.ParseResolution(req.Resolution)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q.Resolution = &r
	}

	page, err := s.deps.Store.QueryPoints(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	points := make([]pointJSON, len(page.Points))
	for i, p := range page.Points {
		points[i] = pointJSON{Labels: p.Labels, TimestampMs: p.TimestampMs, Value: p.Value}
	}
	c.JSON(http.StatusOK, gin.H{
		"metric":      req.Metric,
		"resolution":  page.Resolution.String(),
		"points":      points,
		"count":       len(points),
		"next_cursor": page.NextCursor,
	})
}

func (s *Server) handleSources(c *gin.Context) {
	type sourceJSON struct {
		Name           string `json:"name"`
		Type           string `json:"type"`
		Status         string `json:"status"`
		LastCollection int64  `json:"last_collection,omitempty"`
		MetricsCount   int64  `json:"metrics_count"`
	}

	sources := s.deps.Sources.List()
	out := make([]sourceJSON, len(sources))
	for i, src := range sources {
		out[i] = sourceJSON{
			Name:           src.Name,
			Type:           src.Type,
			Status:         src.Status.String(),
			LastCollection: src.LastCollection,
			MetricsCount:   src.MetricsCount,
		}
	}
	c.JSON(http.StatusOK, gin.H{"sources": out, "count": len(out)})
}

// exportPageCap bounds how many points one export response walks.
const exportPageCap = 100000

func (s *Server) handleExport(c *gin.Context) {
	format, err := export.ParseFormat(c.Param("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	end := time.Now()
	start := end.Add(-time.Hour)
	if v := c.Query("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start: " + err.Error()})
			return
		}
	}
	if v := c.Query("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end: " + err.Error()})
			return
		}
	}

	var resolution *types.Resolution
	if v := c.Query("resolution"); v != "" {
		r, err := types.ParseResolution(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resolution = &r
	}

	ctx := c.Request.Context()
	metrics := []string{c.Query("metric")}
	if metrics[0] == "" {
		if metrics, err = s.deps.Store.MetricNames(ctx); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	var points []types.SeriesPoint
	for _, metric := range metrics {
		q := store.PointQuery{
			Metric:     metric,
			Start:      start,
			End:        end,
			Resolution: resolution,
		}
		for {
			page, err := s.deps.Store.QueryPoints(ctx, q)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			points = append(points, page.Points...)
			if page.NextCursor == "" || len(points) >= exportPageCap {
				break
			}
			q.Cursor = page.NextCursor
		}
	}

	c.Header("Content-Type", format.ContentType())
	c.Status(http.StatusOK)
	if err := export.Render(c.Writer, format, points); err != nil {
		s.logger.Error("export render failed", "format", format, "error", err)
	}
}

func (s *Server) handleQuarantine(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	samples, err := s.deps.Quarantine.ReadAll(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type quarantineJSON struct {
		Metric      string            `json:"metric"`
		Labels      map[string]string `json:"labels,omitempty"`
		Value       float64           `json:"value"`
		TimestampMs int64             `json:"timestamp"`
		Source      string            `json:"source,omitempty"`
		Reason      string            `json:"reason"`
		Quarantined time.Time         `json:"quarantined"`
	}
	out := make([]quarantineJSON, len(samples))
	for i, qs := range samples {
		out[i] = quarantineJSON{
			Metric:      qs.Sample.Metric,
			Labels:      qs.Sample.Labels,
			Value:       qs.Sample.Value,
			TimestampMs: qs.Sample.TimestampMs,
			Source:      qs.Sample.Source,
			Reason:      qs.Reason,
			Quarantined: qs.Quarantined,
		}
	}
	c.JSON(http.StatusOK, gin.H{"samples": out, "count": len(out)})
}

// handleReclassify registers any schemas in the request body and replays
// quarantined samples through the pipeline so samples held for unknown
// metrics flow once their schema arrives.
func (s *Server) handleReclassify(c *gin.Context) {
	var req struct {
		Schemas []config.SchemaConfig `json:"schemas"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
			return
		}
	}
	for _, sc := range req.Schemas {
		s.deps.Schemas.RegisterConfig(sc)
	}

	if s.deps.Reclassify == nil {
		c.JSON(http.StatusOK, gin.H{"registered": len(req.Schemas), "replayed": 0})
		return
	}
	replayed, err := s.deps.Reclassify(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": len(req.Schemas), "replayed": replayed})
}

func (s *Server) handleDeadLetter(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	batches, err := s.deps.DeadLetters.ReadAll(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches, "count": len(batches)})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
