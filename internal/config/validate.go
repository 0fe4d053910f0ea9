package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/types"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs errors.ValidationErrors

	if c.Listen == "" {
		errs.AddField("listen", "listen address is required")
	}
	if c.DataDir == "" {
		errs.AddField("data_dir", "data directory is required")
	}

	if c.Intake.QueueCapacity <= 0 {
		errs.AddField("intake.queue_capacity", "must be positive")
	}
	if c.Intake.CollectionInterval <= 0 {
		errs.AddField("intake.collection_interval", "must be positive")
	}
	if c.Intake.Workers <= 0 {
		errs.AddField("intake.workers", "must be positive")
	}

	if c.Transform.DedupWindow < 0 {
		errs.AddField("transform.dedup_window", "must not be negative")
	}
	if c.Transform.DedupCacheSize <= 0 {
		errs.AddField("transform.dedup_cache_size", "must be positive")
	}
	if c.Transform.Workers <= 0 {
		errs.AddField("transform.workers", "must be positive")
	}

	if c.Aggregate.GracePeriod < 0 {
		errs.AddField("aggregate.grace_period", "must not be negative")
	}
	if c.Aggregate.LateMergeTolerance < 0 {
		errs.AddField("aggregate.late_merge_tolerance", "must not be negative")
	}
	if c.Aggregate.Workers <= 0 {
		errs.AddField("aggregate.workers", "must be positive")
	}
	if c.Aggregate.FlushInterval <= 0 {
		errs.AddField("aggregate.flush_interval", "must be positive")
	}
	if c.Aggregate.Shards <= 0 {
		errs.AddField("aggregate.shards", "must be positive")
	}
	if c.Aggregate.QueueCapacity <= 0 {
		errs.AddField("aggregate.queue_capacity", "must be positive")
	}
	if c.Aggregate.Percentile.Enabled {
		if c.Aggregate.Percentile.Accuracy <= 0 || c.Aggregate.Percentile.Accuracy >= 1 {
			errs.AddField("aggregate.percentile.accuracy", "must be between 0 and 1")
		}
	}

	if c.Store.BatchSize <= 0 {
		errs.AddField("store.batch_size", "must be positive")
	}
	if c.Store.FlushInterval <= 0 {
		errs.AddField("store.flush_interval", "must be positive")
	}
	if c.Store.QueueCapacity <= 0 {
		errs.AddField("store.queue_capacity", "must be positive")
	}
	if c.Store.Retry.MaxAttempts <= 0 {
		errs.AddField("store.retry.max_attempts", "must be positive")
	}
	if c.Store.Retry.InitialBackoff <= 0 {
		errs.AddField("store.retry.initial_backoff", "must be positive")
	}
	if c.Store.Retry.MaxBackoff < c.Store.Retry.InitialBackoff {
		errs.AddField("store.retry.max_backoff", "must be at least initial_backoff")
	}

	seen := make(map[string]bool, len(c.Schemas))
	for i, s := range c.Schemas {
		field := fmt.Sprintf("schemas[%d]", i)
		if s.Name == "" {
			errs.AddField(field+".name", "metric name is required")
		}
		if seen[s.Name] {
			errs.AddField(field+".name", "duplicate metric name: "+s.Name)
		}
		seen[s.Name] = true
		if _, ok := types.ParseValueType(s.Type); !ok {
			errs.AddField(field+".type", "must be gauge or counter")
		}
		if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
			errs.AddField(field+".min", "min must not exceed max")
		}
	}

	for i, col := range c.Collectors {
		field := fmt.Sprintf("collectors[%d]", i)
		if col.Name == "" {
			errs.AddField(field+".name", "collector name is required")
		}
		if col.Type != "snmp" && col.Type != "simulated" {
			errs.AddField(field+".type", "must be snmp or simulated")
		}
		if col.Enabled && col.PollInterval <= 0 {
			errs.AddField(field+".poll_interval", "must be positive")
		}
		if col.Type == "snmp" && col.Enabled {
			if col.SNMP.Target == "" {
				errs.AddField(field+".snmp.target", "target is required")
			}
			if len(col.SNMP.OIDs) == 0 {
				errs.AddField(field+".snmp.oids", "at least one OID is required")
			}
		}
	}

	if len(c.Bus.Brokers) > 0 && c.Bus.Topic == "" {
		errs.AddField("bus.topic", "topic is required when brokers are set")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs.AddField("logging.level", "must be debug, info, warn or error")
	}

	return errs.Err()
}

// StorePath returns the store database path, defaulting under DataDir.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir, "series.db")
}

// DeadLetterDir returns the dead-letter segment directory.
func (c *Config) DeadLetterDir() string {
	return filepath.Join(c.DataDir, "deadletter")
}

// QuarantineDir returns the quarantine file directory.
func (c *Config) QuarantineDir() string {
	return filepath.Join(c.DataDir, "quarantine")
}

// RetentionFor returns the configured retention for a resolution,
// falling back to the resolution default when unset.
func (c *Config) RetentionFor(r types.Resolution) time.Duration {
	var d time.Duration
	switch r {
	case types.ResolutionRaw:
		d = c.Retention.Raw
	case types.Resolution1m:
		d = c.Retention.OneMin
	case types.Resolution5m:
		d = c.Retention.FiveMin
	case types.Resolution1h:
		d = c.Retention.Hourly
	}
	if d <= 0 {
		return r.DefaultRetention()
	}
	return d
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.DeadLetterDir(),
		c.QuarantineDir(),
		filepath.Dir(c.StorePath()),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}
	return nil
}
