// Package config defines the externally supplied configuration for the
// DCN pipeline daemon.
package config

import (
	"os"
	"time"

	"github.com/nagendra0018/dcn/internal/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration.
type Config struct {
	// Listen is the HTTP API listen address.
	Listen string `yaml:"listen"`

	// DataDir is the root directory for all on-disk state
	// (store database, dead-letter segments, quarantine files).
	DataDir string `yaml:"data_dir"`

	// Bus configures the message-bus ingress.
	Bus BusConfig `yaml:"bus"`

	// Intake configures the ingestion intake stage.
	Intake IntakeConfig `yaml:"intake"`

	// Schemas declares the registered metric schemas for validation.
	Schemas []SchemaConfig `yaml:"schemas"`

	// Transform configures unit normalization and deduplication.
	Transform TransformConfig `yaml:"transform"`

	// Aggregate configures windowed rollups.
	Aggregate AggregateConfig `yaml:"aggregate"`

	// Store configures the time-series store writer.
	Store StoreConfig `yaml:"store"`

	// Retention defines how long to keep data per resolution.
	Retention RetentionConfig `yaml:"retention"`

	// Collectors configures embedded collectors publishing into the intake.
	Collectors []CollectorConfig `yaml:"collectors"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// BusConfig configures the message-bus ingress.
type BusConfig struct {
	// Brokers is the list of Kafka broker addresses.
	// Empty disables the Kafka consumer (embedded collectors only).
	Brokers []string `yaml:"brokers"`

	// Topic is the metrics topic.
	Topic string `yaml:"topic"`

	// GroupID is the consumer group id.
	GroupID string `yaml:"group_id"`

	// MinBytes and MaxBytes bound fetch sizes.
	MinBytes int `yaml:"min_bytes"`
	MaxBytes int `yaml:"max_bytes"`
}

// IntakeConfig configures the ingestion intake stage.
type IntakeConfig struct {
	// CollectionInterval is the expected interval between batches from a
	// source. A source with no batch within 3x this interval is marked down.
	CollectionInterval time.Duration `yaml:"collection_interval"`

	// QueueCapacity is the bounded queue feeding the validator.
	// When full, Receive blocks the producer (BlockingBackpressure).
	QueueCapacity int `yaml:"queue_capacity"`

	// BatchSize is the preferred batch size from collectors.
	BatchSize int `yaml:"batch_size"`

	// Workers is the number of validator workers draining the intake queue.
	Workers int `yaml:"workers"`
}

// SchemaConfig declares one registered metric schema.
type SchemaConfig struct {
	// Name is the metric name.
	Name string `yaml:"name"`

	// Type is "gauge" or "counter".
	Type string `yaml:"type"`

	// Unit is the declared unit (e.g., "bytes", "milliseconds").
	Unit string `yaml:"unit"`

	// Description is free-form, surfaced on the counters endpoint.
	Description string `yaml:"description"`

	// Labels is the set of allowed label keys. Empty allows any.
	Labels []string `yaml:"labels"`

	// Min and Max bound accepted values. Nil means unbounded.
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// TransformConfig configures unit normalization and deduplication.
type TransformConfig struct {
	// DedupWindow is the trailing window within which an exact duplicate
	// sample is absorbed.
	DedupWindow time.Duration `yaml:"dedup_window"`

	// DedupCacheSize bounds the dedup cache memory (entries, LRU evicted).
	DedupCacheSize int `yaml:"dedup_cache_size"`

	// Workers is the number of transformer workers.
	Workers int `yaml:"workers"`
}

// AggregateConfig configures windowed rollups.
type AggregateConfig struct {
	// GracePeriod is the allowed lateness past window end before the
	// window closes.
	GracePeriod time.Duration `yaml:"grace_period"`

	// LateMergeTolerance keeps a closed window mergeable for this long;
	// a late sample within it merges and re-flushes. Zero (the default)
	// drops every sample arriving past window end + grace period.
	LateMergeTolerance time.Duration `yaml:"late_merge_tolerance"`

	// FlushInterval is how often the close ticker runs.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// Shards partitions window state by series-key hash.
	Shards int `yaml:"shards"`

	// Workers is the number of aggregation workers.
	Workers int `yaml:"workers"`

	// QueueCapacity is the bounded queue feeding the aggregator.
	QueueCapacity int `yaml:"queue_capacity"`

	// Percentile configures DDSketch percentile calculation.
	Percentile PercentileConfig `yaml:"percentile"`
}

// PercentileConfig configures DDSketch percentile calculation.
type PercentileConfig struct {
	// Enabled enables percentile calculation.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// StoreConfig configures the time-series store writer.
type StoreConfig struct {
	// Path is the DuckDB database file. Empty uses {DataDir}/series.db.
	Path string `yaml:"path"`

	// BatchSize is the number of points committed per batch.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval commits a partial batch after this long.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// QueueCapacity is the bounded queue feeding the store writer.
	QueueCapacity int `yaml:"queue_capacity"`

	// Retry configures write retries.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig configures bounded exponential backoff for store writes.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts before dead-lettering.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// RetentionConfig defines how long to keep data per resolution.
type RetentionConfig struct {
	Raw    time.Duration `yaml:"raw"`
	OneMin time.Duration `yaml:"one_min"`
	FiveMin time.Duration `yaml:"five_min"`
	Hourly time.Duration `yaml:"hourly"`
}

// CollectorConfig configures one embedded collector.
type CollectorConfig struct {
	// Name identifies the source.
	Name string `yaml:"name"`

	// Type is "snmp" or "simulated".
	Type string `yaml:"type"`

	// Enabled toggles the collector.
	Enabled bool `yaml:"enabled"`

	// PollInterval is the collection interval.
	PollInterval time.Duration `yaml:"poll_interval"`

	// SNMP settings (type "snmp").
	SNMP SNMPConfig `yaml:"snmp"`
}

// SNMPConfig configures an SNMP collector.
type SNMPConfig struct {
	// Target is the agent address.
	Target string `yaml:"target"`

	// Port is the agent port. Default 161.
	Port uint16 `yaml:"port"`

	// Community is the SNMPv2c community string.
	Community string `yaml:"community"`

	// TimeoutMs is the request timeout in milliseconds.
	TimeoutMs int `yaml:"timeout_ms"`

	// OIDs maps metric names to the OIDs to poll.
	OIDs map[string]string `yaml:"oids"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// JSON enables JSON output.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:  "0.0.0.0:8080",
		DataDir: "/var/lib/dcn",
		Bus: BusConfig{
			Topic:    "dcn-metrics",
			GroupID:  "dcn-pipeline",
			MinBytes: 1,
			MaxBytes: 10 * 1024 * 1024,
		},
		Intake: IntakeConfig{
			CollectionInterval: 60 * time.Second,
			QueueCapacity:      10000,
			BatchSize:          500,
			Workers:            4,
		},
		Transform: TransformConfig{
			DedupWindow:    60 * time.Second,
			DedupCacheSize: 100000,
			Workers:        4,
		},
		Aggregate: AggregateConfig{
			GracePeriod:   30 * time.Second,
			FlushInterval: 5 * time.Second,
			Shards:        16,
			Workers:       4,
			QueueCapacity: 10000,
			Percentile: PercentileConfig{
				Enabled:  true,
				Accuracy: 0.01,
			},
		},
		Store: StoreConfig{
			BatchSize:     1000,
			FlushInterval: 2 * time.Second,
			QueueCapacity: 10000,
			Retry: RetryConfig{
				MaxAttempts:    5,
				InitialBackoff: 100 * time.Millisecond,
				MaxBackoff:     5 * time.Second,
			},
		},
		Retention: RetentionConfig{
			Raw:     48 * time.Hour,
			OneMin:  7 * 24 * time.Hour,
			FiveMin: 30 * 24 * time.Hour,
			Hourly:  90 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
