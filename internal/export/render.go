package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/types"
)

// Format is a bulk export rendering.
type Format string

const (
	FormatJSON       Format = "json"
	FormatCSV        Format = "csv"
	FormatPrometheus Format = "prometheus"
)

// ParseFormat validates an export format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatPrometheus:
		return FormatPrometheus, nil
	default:
		return "", errors.NewInvalidValue("format", s, "must be json, csv or prometheus")
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatPrometheus:
		return "text/plain; version=0.0.4"
	default:
		return "application/octet-stream"
	}
}

// pointJSON is the JSON rendering of one point.
type pointJSON struct {
	Metric      string            `json:"metric"`
	Labels      map[string]string `json:"labels,omitempty"`
	TimestampMs int64             `json:"timestamp"`
	Value       float64           `json:"value"`
	Resolution  string            `json:"resolution"`
}

// Render writes points to w in the requested format.
func Render(w io.Writer, format Format, points []types.SeriesPoint) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, points)
	case FormatCSV:
		return renderCSV(w, points)
	case FormatPrometheus:
		return renderPrometheus(w, points)
	default:
		return errors.NewInvalidValue("format", string(format), "unknown")
	}
}

func renderJSON(w io.Writer, points []types.SeriesPoint) error {
	out := make([]pointJSON, len(points))
	for i, p := range points {
		out[i] = pointJSON{
			Metric:      p.Metric,
			Labels:      p.Labels,
			TimestampMs: p.TimestampMs,
			Value:       p.Value,
			Resolution:  p.Resolution.String(),
		}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func renderCSV(w io.Writer, points []types.SeriesPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"metric", "labels", "timestamp_ms", "value", "resolution"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.Metric,
			p.Labels.Canonical(),
			strconv.FormatInt(p.TimestampMs, 10),
			strconv.FormatFloat(p.Value, 'g', -1, 64),
			p.Resolution.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// renderPrometheus writes the text exposition format with millisecond
// timestamps. Series of the same metric are grouped under one TYPE line.
func renderPrometheus(w io.Writer, points []types.SeriesPoint) error {
	byMetric := make(map[string][]types.SeriesPoint)
	var names []string
	for _, p := range points {
		if _, ok := byMetric[p.Metric]; !ok {
			names = append(names, p.Metric)
		}
		byMetric[p.Metric] = append(byMetric[p.Metric], p)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := fmt.Fprintf(w, "# TYPE %s untyped\n", name); err != nil {
			return err
		}
		for _, p := range byMetric[name] {
			if _, err := fmt.Fprintf(w, "%s%s %s %d\n",
				name, promLabels(p.Labels),
				strconv.FormatFloat(p.Value, 'g', -1, 64),
				p.TimestampMs); err != nil {
				return err
			}
		}
	}
	return nil
}

func promLabels(labels types.Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(escapeLabelValue(labels[k]))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func escapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}
