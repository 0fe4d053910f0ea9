package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
)

// RetentionPolicy maps each resolution to how long its data is kept.
type RetentionPolicy func(r types.Resolution) time.Duration

// Enforcer deletes expired rows per resolution on a schedule.
type Enforcer struct {
	store  *Store
	policy RetentionPolicy
	logger *slog.Logger

	now func() time.Time
}

// NewEnforcer creates a retention enforcer.
func NewEnforcer(s *Store, policy RetentionPolicy) *Enforcer {
	return &Enforcer{
		store:  s,
		policy: policy,
		logger: logging.Component("retention"),
		now:    time.Now,
	}
}

// Sweep deletes expired rows at every resolution once. Returns the
// total rows removed.
func (e *Enforcer) Sweep(ctx context.Context) (int64, error) {
	now := e.now()
	total := int64(0)

	for _, r := range types.AllResolutions() {
		keep := e.policy(r)
		if keep <= 0 {
			continue
		}
		cutoff := now.Add(-keep)

		deleted, err := e.store.DeleteOlderThan(ctx, r, cutoff)
		if err != nil {
			return total, err
		}
		total += deleted

		if deleted > 0 {
			e.logger.Info("retention sweep removed rows",
				"resolution", r.String(),
				"cutoff", cutoff.Format(time.RFC3339),
				"rows", deleted)
		}
	}
	return total, nil
}

// Run sweeps on the given interval until ctx is cancelled.
func (e *Enforcer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Error("retention sweep failed", "error", err)
			}
		}
	}
}
