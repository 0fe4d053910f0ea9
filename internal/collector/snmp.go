package collector

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/nagendra0018/dcn/internal/config"
	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
)

// snmpMaxOIDsPerGet bounds how many OIDs go into one GET request.
const snmpMaxOIDsPerGet = 25

// SNMPCollector polls a set of OIDs from one SNMPv2c agent, mapping each
// OID to a metric name from configuration.
type SNMPCollector struct {
	name   string
	cfg    config.SNMPConfig
	logger *slog.Logger

	// oids holds the poll set in a stable order; metricByOID maps each
	// polled OID back to its metric name.
	oids        []string
	metricByOID map[string]string
}

// NewSNMPCollector creates a collector for the given agent.
func NewSNMPCollector(name string, cfg config.SNMPConfig) *SNMPCollector {
	// Keys are stored without the leading dot; agents differ on whether
	// they report one.
	metricByOID := make(map[string]string, len(cfg.OIDs))
	oids := make([]string, 0, len(cfg.OIDs))
	for metric, oid := range cfg.OIDs {
		metricByOID[trimLeadingDot(oid)] = metric
		oids = append(oids, oid)
	}
	sort.Strings(oids)

	return &SNMPCollector{
		name:        name,
		cfg:         cfg,
		logger:      logging.Component("snmp"),
		oids:        oids,
		metricByOID: metricByOID,
	}
}

// Name returns the configured source name.
func (c *SNMPCollector) Name() string { return c.name }

// Collect connects to the agent and polls every configured OID.
func (c *SNMPCollector) Collect(ctx context.Context) ([]types.Sample, error) {
	client := c.createClient()
	if err := client.Connect(); err != nil {
		return nil, errors.Wrapf(err, "connect %s", c.cfg.Target)
	}
	defer client.Conn.Close()

	var samples []types.Sample
	for start := 0; start < len(c.oids); start += snmpMaxOIDsPerGet {
		select {
		case <-ctx.Done():
			return samples, ctx.Err()
		default:
		}

		end := start + snmpMaxOIDsPerGet
		if end > len(c.oids) {
			end = len(c.oids)
		}

		pdu, err := client.Get(c.oids[start:end])
		if err != nil {
			return samples, errors.Wrapf(err, "get %s", c.cfg.Target)
		}

		nowMs := time.Now().UnixMilli()
		for _, variable := range pdu.Variables {
			metric, ok := c.metricByOID[trimLeadingDot(variable.Name)]
			if !ok {
				continue
			}

			value, ok := snmpValue(variable)
			if !ok {
				c.logger.Warn("unsupported variable type skipped",
					"target", c.cfg.Target,
					"oid", variable.Name,
					"type", variable.Type.String())
				continue
			}

			samples = append(samples, types.Sample{
				Metric:      metric,
				Labels:      types.Labels{"target": c.cfg.Target},
				Value:       value,
				TimestampMs: nowMs,
				Source:      c.name,
			})
		}
	}
	return samples, nil
}

func (c *SNMPCollector) createClient() *gosnmp.GoSNMP {
	port := c.cfg.Port
	if port == 0 {
		port = 161
	}
	timeout := c.cfg.TimeoutMs
	if timeout <= 0 {
		timeout = 5000
	}

	return &gosnmp.GoSNMP{
		Target:    c.cfg.Target,
		Port:      port,
		Version:   gosnmp.Version2c,
		Community: c.cfg.Community,
		Timeout:   time.Duration(timeout) * time.Millisecond,
		Retries:   1,
	}
}

// snmpValue converts one PDU variable to a float sample value. The
// second return is false for types that cannot express a numeric value.
func snmpValue(v gosnmp.SnmpPDU) (float64, bool) {
	switch v.Type {
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.Uinteger32:
		return float64(gosnmp.ToBigInt(v.Value).Uint64()), true
	case gosnmp.Integer:
		if n, ok := v.Value.(int); ok {
			return float64(n), true
		}
		return 0, false
	case gosnmp.TimeTicks:
		if n, ok := v.Value.(uint32); ok {
			return float64(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func trimLeadingDot(oid string) string {
	if len(oid) > 0 && oid[0] == '.' {
		return oid[1:]
	}
	return oid
}
