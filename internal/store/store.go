// Package store persists series points and window aggregates in an
// embedded DuckDB database with idempotent upsert semantics: the key
// (metric, labels, timestamp, resolution) uniquely identifies a row and
// rewriting it overwrites, never duplicates.
package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS series_points (
	metric      VARCHAR NOT NULL,
	labels      VARCHAR NOT NULL,
	ts_ms       BIGINT  NOT NULL,
	resolution  VARCHAR NOT NULL,
	value       DOUBLE  NOT NULL,
	PRIMARY KEY (metric, labels, ts_ms, resolution)
);

CREATE TABLE IF NOT EXISTS series_windows (
	metric       VARCHAR NOT NULL,
	labels       VARCHAR NOT NULL,
	window_start BIGINT  NOT NULL,
	window_end   BIGINT  NOT NULL,
	resolution   VARCHAR NOT NULL,
	sample_count BIGINT  NOT NULL,
	value_sum    DOUBLE  NOT NULL,
	value_min    DOUBLE  NOT NULL,
	value_max    DOUBLE  NOT NULL,
	value_avg    DOUBLE  NOT NULL,
	p50          DOUBLE,
	p90          DOUBLE,
	p95          DOUBLE,
	p99          DOUBLE,
	first_ts     BIGINT  NOT NULL,
	last_ts      BIGINT  NOT NULL,
	PRIMARY KEY (metric, labels, window_start, resolution)
);
`

// Stats holds store activity counters.
type Stats struct {
	PointsUpserted  int64
	WindowsUpserted int64
	QueriesExecuted int64
	RowsReturned    int64
	RowsDeleted     int64
	Errors          int64
}

// Store is the embedded time-series store.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *slog.Logger
	closed bool
	stats  Stats
}

// Open opens (or creates) the store at path. An empty path opens an
// in-memory database, used by tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(err, "open duckdb")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	return &Store{
		db:     db,
		logger: logging.Component("store"),
	}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// UpsertPoints writes raw or downsampled points. Re-writing an existing
// (metric, labels, timestamp, resolution) key overwrites the row, so
// retried batches converge instead of duplicating.
func (s *Store) UpsertPoints(ctx context.Context, points []types.SeriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.stats.Errors++
		return errors.Wrap(errors.ErrStoreWrite, err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO series_points
			(metric, labels, ts_ms, resolution, value)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		s.stats.Errors++
		return errors.Wrap(errors.ErrStoreWrite, err.Error())
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			p.Metric, p.Labels.Canonical(), p.TimestampMs,
			p.Resolution.String(), p.Value); err != nil {
			s.stats.Errors++
			return errors.Wrapf(errors.ErrStoreWrite, "upsert point %s: %v", p.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.stats.Errors++
		return errors.Wrap(errors.ErrStoreWrite, err.Error())
	}

	s.stats.PointsUpserted += int64(len(points))
	return nil
}

// UpsertWindows writes window aggregates, keyed by (metric, labels,
// window_start, resolution). Re-flushes of the same window overwrite.
func (s *Store) UpsertWindows(ctx context.Context, windows []types.WindowResult) error {
	if len(windows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.stats.Errors++
		return errors.Wrap(errors.ErrStoreWrite, err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO series_windows
			(metric, labels, window_start, window_end, resolution,
			 sample_count, value_sum, value_min, value_max, value_avg,
			 p50, p90, p95, p99, first_ts, last_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		s.stats.Errors++
		return errors.Wrap(errors.ErrStoreWrite, err.Error())
	}
	defer stmt.Close()

	for _, w := range windows {
		var p50, p90, p95, p99 interface{}
		if w.HasPercentiles() {
			p50, p90, p95, p99 = *w.P50, *w.P90, *w.P95, *w.P99
		}
		if _, err := stmt.ExecContext(ctx,
			w.Metric, w.Labels.Canonical(), w.WindowStart, w.WindowEnd,
			w.Resolution.String(), w.Count, w.Sum, w.Min, w.Max, w.Avg,
			p50, p90, p95, p99, w.FirstTs, w.LastTs); err != nil {
			s.stats.Errors++
			return errors.Wrapf(errors.ErrStoreWrite, "upsert window %s: %v", w.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.stats.Errors++
		return errors.Wrap(errors.ErrStoreWrite, err.Error())
	}

	s.stats.WindowsUpserted += int64(len(windows))
	return nil
}

// PointQuery selects points by metric, optional label matchers and a
// time range. Results are ordered by (ts_ms, labels) for stable
// cursor-based pagination.
type PointQuery struct {
	Metric string

	// Matchers is a label subset every returned series must carry.
	Matchers types.Labels

	Start time.Time
	End   time.Time

	// Resolution selects the series granularity. Nil auto-selects by
	// the time range span.
	Resolution *types.Resolution

	// Limit bounds the page size. 0 uses a default of 1000.
	Limit int

	// Cursor resumes a prior query from its NextCursor.
	Cursor string
}

// PointPage is one page of query results.
type PointPage struct {
	Points     []types.SeriesPoint
	Resolution types.Resolution

	// NextCursor is empty on the last page.
	NextCursor string
}

const defaultPageSize = 1000

// QueryPoints returns one page of matching points.
func (s *Store) QueryPoints(ctx context.Context, q PointQuery) (*PointPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	resolution := types.SelectResolutionForRange(q.Start, q.End)
	if q.Resolution != nil {
		resolution = *q.Resolution
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	query := `
		SELECT metric, labels, ts_ms, value
		FROM series_points
		WHERE metric = ? AND resolution = ? AND ts_ms >= ? AND ts_ms < ?`
	args := []interface{}{q.Metric, resolution.String(), q.Start.UnixMilli(), q.End.UnixMilli()}

	if q.Cursor != "" {
		afterTs, afterLabels, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		query += ` AND (ts_ms > ? OR (ts_ms = ? AND labels > ?))`
		args = append(args, afterTs, afterTs, afterLabels)
	}
	query += ` ORDER BY ts_ms, labels`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.stats.Errors++
		return nil, errors.Wrap(err, "query points")
	}
	defer rows.Close()

	page := &PointPage{Resolution: resolution}

	for rows.Next() {
		var metric, labels string
		var tsMs int64
		var value float64
		if err := rows.Scan(&metric, &labels, &tsMs, &value); err != nil {
			return nil, errors.Wrap(err, "scan point")
		}

		parsed := types.ParseCanonical(labels)
		if !matchLabels(parsed, q.Matchers) {
			continue
		}

		page.Points = append(page.Points, types.SeriesPoint{
			Metric:      metric,
			Labels:      parsed,
			TimestampMs: tsMs,
			Value:       value,
			Resolution:  resolution,
		})

		if len(page.Points) == limit {
			page.NextCursor = encodeCursor(tsMs, labels)
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate points")
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(page.Points))
	return page, nil
}

// QueryWindows returns window aggregates for a metric in a time range at
// one resolution, ordered by window start.
func (s *Store) QueryWindows(ctx context.Context, metric string, matchers types.Labels, resolution types.Resolution, start, end time.Time, limit int) ([]types.WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}
	if limit <= 0 {
		limit = defaultPageSize
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, labels, window_start, window_end,
		       sample_count, value_sum, value_min, value_max, value_avg,
		       p50, p90, p95, p99, first_ts, last_ts
		FROM series_windows
		WHERE metric = ? AND resolution = ?
		  AND window_start >= ? AND window_start < ?
		ORDER BY window_start, labels`,
		metric, resolution.String(), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		s.stats.Errors++
		return nil, errors.Wrap(err, "query windows")
	}
	defer rows.Close()

	var out []types.WindowResult
	for rows.Next() {
		var w types.WindowResult
		var labels string
		var p50, p90, p95, p99 sql.NullFloat64

		if err := rows.Scan(&w.Metric, &labels, &w.WindowStart, &w.WindowEnd,
			&w.Count, &w.Sum, &w.Min, &w.Max, &w.Avg,
			&p50, &p90, &p95, &p99, &w.FirstTs, &w.LastTs); err != nil {
			return nil, errors.Wrap(err, "scan window")
		}

		w.Labels = types.ParseCanonical(labels)
		w.Resolution = resolution
		if !matchLabels(w.Labels, matchers) {
			continue
		}
		if p50.Valid {
			w.SetPercentiles(p50.Float64, p90.Float64, p95.Float64, p99.Float64)
		}

		out = append(out, w)
		if len(out) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate windows")
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(out))
	return out, nil
}

// LatestPerSeries returns the newest raw point of every series of a
// metric. Used by the counters endpoints and the scrape exposition.
func (s *Store) LatestPerSeries(ctx context.Context, metric string) ([]types.SeriesPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, labels, ts_ms, value
		FROM (
			SELECT metric, labels, ts_ms, value,
			       row_number() OVER (PARTITION BY labels ORDER BY ts_ms DESC) AS rn
			FROM series_points
			WHERE metric = ? AND resolution = 'raw'
		)
		WHERE rn = 1
		ORDER BY labels`, metric)
	if err != nil {
		s.stats.Errors++
		return nil, errors.Wrap(err, "query latest")
	}
	defer rows.Close()

	var out []types.SeriesPoint
	for rows.Next() {
		var p types.SeriesPoint
		var labels string
		if err := rows.Scan(&p.Metric, &labels, &p.TimestampMs, &p.Value); err != nil {
			return nil, errors.Wrap(err, "scan latest")
		}
		p.Labels = types.ParseCanonical(labels)
		p.Resolution = types.ResolutionRaw
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate latest")
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(out))
	return out, nil
}

// LatestWindowPerSeries returns the newest flushed window of every
// series of a metric at one resolution. Used by the scrape exposition.
func (s *Store) LatestWindowPerSeries(ctx context.Context, metric string, resolution types.Resolution) ([]types.WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, labels, window_start, window_end,
		       sample_count, value_sum, value_min, value_max, value_avg,
		       first_ts, last_ts
		FROM (
			SELECT *,
			       row_number() OVER (PARTITION BY labels ORDER BY window_start DESC) AS rn
			FROM series_windows
			WHERE metric = ? AND resolution = ?
		)
		WHERE rn = 1
		ORDER BY labels`, metric, resolution.String())
	if err != nil {
		s.stats.Errors++
		return nil, errors.Wrap(err, "query latest windows")
	}
	defer rows.Close()

	var out []types.WindowResult
	for rows.Next() {
		var w types.WindowResult
		var labels string
		if err := rows.Scan(&w.Metric, &labels, &w.WindowStart, &w.WindowEnd,
			&w.Count, &w.Sum, &w.Min, &w.Max, &w.Avg,
			&w.FirstTs, &w.LastTs); err != nil {
			return nil, errors.Wrap(err, "scan latest window")
		}
		w.Labels = types.ParseCanonical(labels)
		w.Resolution = resolution
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate latest windows")
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(out))
	return out, nil
}

// MetricNames returns the distinct metric names with stored points.
func (s *Store) MetricNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT metric FROM series_points ORDER BY metric`)
	if err != nil {
		s.stats.Errors++
		return nil, errors.Wrap(err, "query metric names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan metric name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteOlderThan removes rows at one resolution older than cutoff from
// both tables. Returns the number of rows deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, resolution types.Resolution, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.ErrStoreClosed
	}

	cutoffMs := cutoff.UnixMilli()
	total := int64(0)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM series_points WHERE resolution = ? AND ts_ms < ?`,
		resolution.String(), cutoffMs)
	if err != nil {
		s.stats.Errors++
		return 0, errors.Wrap(err, "delete points")
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM series_windows WHERE resolution = ? AND window_start < ?`,
		resolution.String(), cutoffMs)
	if err != nil {
		s.stats.Errors++
		return 0, errors.Wrap(err, "delete windows")
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	s.stats.RowsDeleted += total
	return total, nil
}

// CountPoints returns the number of stored points at one resolution.
func (s *Store) CountPoints(ctx context.Context, resolution types.Resolution) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.ErrStoreClosed
	}

	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM series_points WHERE resolution = ?`,
		resolution.String()).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count points")
	}
	return n, nil
}

// Snapshot returns current store statistics.
func (s *Store) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// matchLabels reports whether labels carries every matcher pair.
func matchLabels(labels, matchers types.Labels) bool {
	for k, v := range matchers {
		if labels[k] != v {
			return false
		}
	}
	return true
}

func encodeCursor(tsMs int64, labels string) string {
	raw := strconv.FormatInt(tsMs, 10) + "|" + labels
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (int64, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, "", errors.NewInvalidValue("cursor", cursor, "not base64")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return 0, "", errors.NewInvalidValue("cursor", cursor, "malformed")
	}
	tsMs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", errors.NewInvalidValue("cursor", cursor, "bad timestamp")
	}
	return tsMs, parts[1], nil
}
