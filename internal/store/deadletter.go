package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/types"
)

// Dead-letter segment format:
//   - Header: 8 bytes magic + 4 bytes version
//   - Records: [4 bytes length][4 bytes crc32][payload]
// The payload is one JSON-encoded batch. A truncated or corrupt tail is
// tolerated on read; everything before it is returned.
const (
	dlqMagic            = 0x44434e444c510001 // "DCNDLQ" + version 1
	dlqVersion          = 1
	dlqHeaderSize       = 12
	dlqRecordHeaderSize = 8
)

// DeadLetterBatch is one failed write batch with its failure context.
type DeadLetterBatch struct {
	Points   []types.SeriesPoint  `json:"points,omitempty"`
	Windows  []types.WindowResult `json:"windows,omitempty"`
	Reason   string               `json:"reason"`
	Attempts int                  `json:"attempts"`
	FailedMs int64                `json:"failed_ms"`
}

// DeadLetterStats holds dead-letter log counters.
type DeadLetterStats struct {
	SegmentsCreated int64
	BatchesWritten  int64
	BytesWritten    int64
	Errors          int64
}

// DeadLetterLog persists write batches that exhausted their retries.
// Batches are inspectable and replayable, never discarded silently.
type DeadLetterLog struct {
	mu sync.Mutex

	dir            string
	maxSegmentSize int64
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	segmentSeq     int64
	writer         *bufio.Writer

	stats DeadLetterStats
}

// NewDeadLetterLog creates a log under dir, rotating segments at
// maxSegmentSize bytes (default 16MB).
func NewDeadLetterLog(dir string, maxSegmentSize int64) (*DeadLetterLog, error) {
	if maxSegmentSize <= 0 {
		maxSegmentSize = 16 * 1024 * 1024
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create dead-letter dir")
	}

	l := &DeadLetterLog{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
	}

	segments, err := l.listSegments()
	if err != nil {
		return nil, errors.Wrap(err, "list dead-letter segments")
	}
	if len(segments) > 0 {
		l.segmentSeq = segments[len(segments)-1].seq + 1
	}

	if err := l.rotateLocked(); err != nil {
		return nil, errors.Wrap(err, "create initial segment")
	}
	return l, nil
}

// Append persists one failed batch. A failure here is fatal to the
// pipeline: losing dead-lettered data would be silent data loss.
func (l *DeadLetterLog) Append(batch DeadLetterBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(errors.ErrDeadLetterFailure, err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	recordSize := int64(dlqRecordHeaderSize + len(payload))
	if l.currentSize+recordSize > l.maxSegmentSize {
		if err := l.rotateLocked(); err != nil {
			l.stats.Errors++
			return errors.Wrap(errors.ErrDeadLetterFailure, err.Error())
		}
	}

	var header [dlqRecordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))

	if _, err := l.writer.Write(header[:]); err != nil {
		l.stats.Errors++
		return errors.Wrap(errors.ErrDeadLetterFailure, err.Error())
	}
	if _, err := l.writer.Write(payload); err != nil {
		l.stats.Errors++
		return errors.Wrap(errors.ErrDeadLetterFailure, err.Error())
	}
	// Dead letters are rare and precious: flush each one through.
	if err := l.writer.Flush(); err != nil {
		l.stats.Errors++
		return errors.Wrap(errors.ErrDeadLetterFailure, err.Error())
	}

	l.currentSize += recordSize
	l.stats.BatchesWritten++
	l.stats.BytesWritten += recordSize
	return nil
}

func (l *DeadLetterLog) rotateLocked() error {
	if l.currentSegment != nil {
		if l.writer != nil {
			l.writer.Flush()
		}
		l.currentSegment.Close()
	}

	name := fmt.Sprintf("%016d.dlq", l.segmentSeq)
	path := filepath.Join(l.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	var header [dlqHeaderSize]byte
	binary.LittleEndian.PutUint64(header[0:8], dlqMagic)
	binary.LittleEndian.PutUint32(header[8:12], dlqVersion)
	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	l.currentSegment = f
	l.currentPath = path
	l.currentSize = dlqHeaderSize
	l.writer = bufio.NewWriter(f)
	l.segmentSeq++
	l.stats.SegmentsCreated++
	return nil
}

// Close flushes and closes the log.
func (l *DeadLetterLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		l.writer.Flush()
	}
	if l.currentSegment != nil {
		return l.currentSegment.Close()
	}
	return nil
}

// Stats returns dead-letter counters.
func (l *DeadLetterLog) Stats() DeadLetterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

type dlqSegmentInfo struct {
	path string
	seq  int64
}

func (l *DeadLetterLog) listSegments() ([]dlqSegmentInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segments []dlqSegmentInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) != 20 || name[16:] != ".dlq" {
			continue
		}
		var seq int64
		if _, err := fmt.Sscanf(name, "%016d.dlq", &seq); err != nil {
			continue
		}
		segments = append(segments, dlqSegmentInfo{
			path: filepath.Join(l.dir, name),
			seq:  seq,
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].seq < segments[j].seq
	})
	return segments, nil
}

// ReadAll returns all dead-lettered batches across segments, oldest
// first, up to limit (0 means no limit).
func (l *DeadLetterLog) ReadAll(limit int) ([]DeadLetterBatch, error) {
	l.mu.Lock()
	if l.writer != nil {
		l.writer.Flush()
	}
	segments, err := l.listSegments()
	l.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "list dead-letter segments")
	}

	var out []DeadLetterBatch
	for _, seg := range segments {
		batches, err := readSegment(seg.path)
		if err != nil {
			return nil, err
		}
		for _, b := range batches {
			out = append(out, b)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// readSegment decodes one segment, tolerating a corrupt or truncated
// tail.
func readSegment(path string) ([]DeadLetterBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open segment")
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var header [dlqHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrapf(err, "read header of %s", path)
	}
	if binary.LittleEndian.Uint64(header[0:8]) != dlqMagic {
		return nil, errors.NewInvalidValue("segment", path, "bad magic")
	}

	var out []DeadLetterBatch
	for {
		var recHeader [dlqRecordHeaderSize]byte
		if _, err := io.ReadFull(r, recHeader[:]); err != nil {
			// Clean EOF or truncated tail ends the segment.
			break
		}
		length := binary.LittleEndian.Uint32(recHeader[0:4])
		crc := binary.LittleEndian.Uint32(recHeader[4:8])

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			break
		}
		if crc32.ChecksumIEEE(payload) != crc {
			// Corrupt record: stop at the last intact one.
			break
		}

		var batch DeadLetterBatch
		if err := json.Unmarshal(payload, &batch); err != nil {
			break
		}
		out = append(out, batch)
	}
	return out, nil
}
