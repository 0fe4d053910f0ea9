package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/types"
	"github.com/parquet-go/parquet-go"
)

// QuarantineRow is the Parquet layout of one quarantined sample.
type QuarantineRow struct {
	Metric        string  `parquet:"metric,zstd"`
	Labels        string  `parquet:"labels,zstd"`
	Value         float64 `parquet:"value"`
	TimestampMs   int64   `parquet:"timestamp_ms"`
	Source        string  `parquet:"source,zstd"`
	Reason        string  `parquet:"reason,zstd"`
	QuarantinedMs int64   `parquet:"quarantined_ms"`
}

// QuarantinedSample is a quarantined sample with its disposition metadata.
type QuarantinedSample struct {
	Sample      types.Sample
	Reason      string
	Quarantined time.Time
}

// QuarantineStore persists quarantined samples as rotated Parquet files
// so they can be inspected and reclassified once schemas catch up.
type QuarantineStore struct {
	mu          sync.Mutex
	dir         string
	maxRows     int
	file        *os.File
	writer      *parquet.GenericWriter[QuarantineRow]
	currentPath string
	rows        int
	closed      bool

	now func() time.Time
}

// NewQuarantineStore creates a store writing under dir, rotating files
// after maxRows rows.
func NewQuarantineStore(dir string, maxRows int) (*QuarantineStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create quarantine directory")
	}
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &QuarantineStore{
		dir:     dir,
		maxRows: maxRows,
		now:     time.Now,
	}, nil
}

// Add persists one quarantined sample.
func (q *QuarantineStore) Add(result types.ValidationResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.ErrStoreClosed
	}

	if q.writer == nil || q.rows >= q.maxRows {
		if err := q.rotateLocked(); err != nil {
			return err
		}
	}

	s := result.Sample
	row := QuarantineRow{
		Metric:        s.Metric,
		Labels:        s.Labels.Canonical(),
		Value:         s.Value,
		TimestampMs:   s.TimestampMs,
		Source:        s.Source,
		Reason:        result.Reason,
		QuarantinedMs: q.now().UnixMilli(),
	}

	if _, err := q.writer.Write([]QuarantineRow{row}); err != nil {
		return errors.Wrap(err, "write quarantine row")
	}
	q.rows++
	return nil
}

// rotateLocked closes the current file and opens a fresh one.
func (q *QuarantineStore) rotateLocked() error {
	if q.writer != nil {
		if err := q.writer.Close(); err != nil {
			q.file.Close()
			return errors.Wrap(err, "close quarantine writer")
		}
		if err := q.file.Close(); err != nil {
			return errors.Wrap(err, "close quarantine file")
		}
	}

	name := fmt.Sprintf("quarantine-%d.parquet", q.now().UnixNano())
	path := filepath.Join(q.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create quarantine file")
	}

	q.file = f
	q.writer = parquet.NewGenericWriter[QuarantineRow](f,
		parquet.Compression(&parquet.Zstd))
	q.currentPath = path
	q.rows = 0
	return nil
}

// Flush closes the current segment so its rows become readable. The next
// Add opens a fresh segment.
func (q *QuarantineStore) Flush() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.writer == nil {
		return nil
	}
	if err := q.writer.Close(); err != nil {
		q.file.Close()
		return errors.Wrap(err, "close quarantine writer")
	}
	if err := q.file.Close(); err != nil {
		return errors.Wrap(err, "close quarantine file")
	}
	q.writer = nil
	q.file = nil
	q.rows = 0
	return nil
}

// Close flushes and closes the store.
func (q *QuarantineStore) Close() error {
	if err := q.Flush(); err != nil {
		return err
	}
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}

// Files lists finished quarantine segments, oldest first. The segment
// currently being written is excluded until flushed.
func (q *QuarantineStore) Files() ([]string, error) {
	q.mu.Lock()
	current := q.currentPath
	open := q.writer != nil
	q.mu.Unlock()

	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, errors.Wrap(err, "read quarantine directory")
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		path := filepath.Join(q.dir, e.Name())
		if open && path == current {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// ReadAll returns every quarantined sample across finished segments,
// up to limit (0 means no limit).
func (q *QuarantineStore) ReadAll(limit int) ([]QuarantinedSample, error) {
	files, err := q.Files()
	if err != nil {
		return nil, err
	}

	var out []QuarantinedSample
	for _, path := range files {
		rows, err := readQuarantineFile(path)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, QuarantinedSample{
				Sample: types.Sample{
					Metric:      r.Metric,
					Labels:      types.ParseCanonical(r.Labels),
					Value:       r.Value,
					TimestampMs: r.TimestampMs,
					Source:      r.Source,
				},
				Reason:      r.Reason,
				Quarantined: time.UnixMilli(r.QuarantinedMs),
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// DropSegments deletes the given finished segment files, after their
// samples have been replayed through the pipeline.
func (q *QuarantineStore) DropSegments(paths []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, path := range paths {
		if q.writer != nil && path == q.currentPath {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "remove quarantine segment")
		}
	}
	return nil
}

func readQuarantineFile(path string) ([]QuarantineRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open quarantine file")
	}
	defer f.Close()

	reader := parquet.NewGenericReader[QuarantineRow](f)
	defer reader.Close()

	rows := make([]QuarantineRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && n == 0 {
		return nil, errors.Wrap(err, "read quarantine rows")
	}
	return rows[:n], nil
}
