// Package pipeline assembles and runs the full processing chain:
// intake -> validate -> transform -> aggregate -> store. Stages are
// connected by bounded queues and drained in order on shutdown so no
// accepted sample is lost.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nagendra0018/dcn/internal/aggregate"
	"github.com/nagendra0018/dcn/internal/config"
	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/export"
	"github.com/nagendra0018/dcn/internal/intake"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/queue"
	"github.com/nagendra0018/dcn/internal/store"
	"github.com/nagendra0018/dcn/internal/transform"
	"github.com/nagendra0018/dcn/internal/types"
	"github.com/nagendra0018/dcn/internal/validate"
)

// Pipeline owns every stage and the queues between them.
type Pipeline struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *export.Metrics

	db         *store.Store
	dlq        *store.DeadLetterLog
	quarantine *validate.QuarantineStore

	schemas     *validate.SchemaRegistry
	sources     *intake.Registry
	in          *intake.Intake
	validator   *validate.Validator
	transformer *transform.Transformer
	aggregator  *aggregate.Manager
	writer      *store.Writer
	enforcer    *store.Enforcer

	intakeQ *queue.Queue[types.Sample]
	validQ  *queue.Queue[types.ValidationResult]
	aggQ    *queue.Queue[types.CanonicalSample]
	writeQ  *queue.Queue[store.WriteItem]

	// chain covers the staged workers whose exit cascades queue closes;
	// background covers tickers stopped by cancel after the chain drains.
	chain      *errgroup.Group
	background *errgroup.Group
	cancel     context.CancelFunc

	ready    atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// schemaUnits adapts the schema registry to the transformer's unit lookup.
type schemaUnits struct {
	schemas *validate.SchemaRegistry
}

func (u schemaUnits) UnitFor(metric string) string {
	if s, ok := u.schemas.Lookup(metric); ok {
		return s.Unit
	}
	return ""
}

// New builds the pipeline from configuration, opening all on-disk state.
func New(cfg *config.Config, metrics *export.Metrics) (*Pipeline, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	dlq, err := store.NewDeadLetterLog(cfg.DeadLetterDir(), 0)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "open dead-letter log")
	}

	quarantine, err := validate.NewQuarantineStore(cfg.QuarantineDir(), 0)
	if err != nil {
		dlq.Close()
		db.Close()
		return nil, errors.Wrap(err, "open quarantine store")
	}

	schemas := validate.NewSchemaRegistry(cfg.Schemas)
	sources := intake.NewRegistry(cfg.Intake.CollectionInterval)

	p := &Pipeline{
		cfg:        cfg,
		logger:     logging.Component("pipeline"),
		metrics:    metrics,
		db:         db,
		dlq:        dlq,
		quarantine: quarantine,
		schemas:    schemas,
		sources:    sources,
		validator:  validate.NewValidator(schemas, cfg.Aggregate.Shards),
		intakeQ:    queue.New[types.Sample](cfg.Intake.QueueCapacity),
		validQ:     queue.New[types.ValidationResult](cfg.Intake.QueueCapacity),
		aggQ:       queue.New[types.CanonicalSample](cfg.Aggregate.QueueCapacity),
		writeQ:     queue.New[store.WriteItem](cfg.Store.QueueCapacity),
	}

	p.in = intake.New(p.intakeQ, sources)

	p.transformer, err = transform.New(schemaUnits{schemas},
		cfg.Transform.DedupWindow, cfg.Transform.DedupCacheSize)
	if err != nil {
		p.closeState()
		return nil, errors.Wrap(err, "create transformer")
	}

	accuracy := 0.0
	if cfg.Aggregate.Percentile.Enabled {
		accuracy = cfg.Aggregate.Percentile.Accuracy
	}
	p.aggregator = aggregate.NewManager(aggregate.Options{
		GracePeriod:        cfg.Aggregate.GracePeriod,
		LateMergeTolerance: cfg.Aggregate.LateMergeTolerance,
		Shards:             cfg.Aggregate.Shards,
		PercentileAccuracy: accuracy,
	}, func(ctx context.Context, result types.WindowResult) error {
		return p.writeQ.Put(ctx, store.WindowItem(result))
	})

	writerOpts := store.WriterOptions{
		BatchSize:      cfg.Store.BatchSize,
		FlushInterval:  cfg.Store.FlushInterval,
		MaxAttempts:    cfg.Store.Retry.MaxAttempts,
		InitialBackoff: cfg.Store.Retry.InitialBackoff,
		MaxBackoff:     cfg.Store.Retry.MaxBackoff,
	}
	if metrics != nil {
		writerOpts.ObserveWrite = func(d time.Duration) {
			metrics.WriteDuration.Observe(d.Seconds())
		}
	}
	p.writer = store.NewWriter(db, dlq, p.writeQ, writerOpts)

	p.enforcer = store.NewEnforcer(db, cfg.RetentionFor)
	return p, nil
}

// Start launches all stage workers and background tickers.
func (p *Pipeline) Start() error {
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.chain = &errgroup.Group{}
	p.background = &errgroup.Group{}

	// Store writer: exits after the write queue closes and drains.
	p.chain.Go(func() error {
		err := p.writer.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// Aggregation workers feed both the raw point path and the windows.
	// Their own context stops the close ticker, which must be fully
	// joined before the final flush closes the write queue: a CloseDue
	// emission still in flight would otherwise race the close.
	aggCtx, aggCancel := context.WithCancel(runCtx)
	tickerDone := make(chan struct{})
	p.chain.Go(func() error {
		defer close(tickerDone)
		err := p.aggregator.Run(aggCtx, p.cfg.Aggregate.FlushInterval)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errors.ErrQueueClosed) {
			return err
		}
		return nil
	})
	var aggWorkers sync.WaitGroup
	for i := 0; i < p.cfg.Aggregate.Workers; i++ {
		aggWorkers.Add(1)
		p.chain.Go(func() error {
			defer aggWorkers.Done()
			return p.runAggregator()
		})
	}
	p.chain.Go(func() error {
		aggWorkers.Wait()
		aggCancel()
		<-tickerDone
		if _, err := p.aggregator.ForceFlushAll(context.Background()); err != nil {
			p.logger.Error("final window flush failed", "error", err)
		}
		p.writeQ.Close()
		return nil
	})

	// Transform workers.
	var transformers sync.WaitGroup
	for i := 0; i < p.cfg.Transform.Workers; i++ {
		transformers.Add(1)
		p.chain.Go(func() error {
			defer transformers.Done()
			return p.runTransformer()
		})
	}
	p.chain.Go(func() error {
		transformers.Wait()
		p.aggQ.Close()
		return nil
	})

	// Validation workers.
	var validators sync.WaitGroup
	for i := 0; i < p.cfg.Intake.Workers; i++ {
		validators.Add(1)
		p.chain.Go(func() error {
			defer validators.Done()
			return p.runValidator()
		})
	}
	p.chain.Go(func() error {
		validators.Wait()
		p.validQ.Close()
		return nil
	})

	// Background tickers: source liveness, retention, metrics pump.
	p.background.Go(func() error {
		p.sources.Watch(runCtx)
		return nil
	})
	p.background.Go(func() error {
		err := p.enforcer.Run(runCtx, time.Hour)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if p.metrics != nil {
		p.background.Go(func() error {
			p.pump(runCtx)
			return nil
		})
	}

	p.ready.Store(true)
	p.logger.Info("pipeline started",
		"validator_workers", p.cfg.Intake.Workers,
		"transform_workers", p.cfg.Transform.Workers,
		"aggregate_workers", p.cfg.Aggregate.Workers)
	return nil
}

// Stop drains the pipeline in stage order: the intake stops accepting,
// each queue closes once its producers finish, open windows force-flush,
// and the writer commits everything buffered before on-disk state closes.
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() {
		p.ready.Store(false)
		p.logger.Info("pipeline stopping, draining stages")

		p.in.Close()
		p.intakeQ.Close()

		if err := p.chain.Wait(); err != nil {
			p.stopErr = err
		}

		p.cancel()
		if err := p.background.Wait(); err != nil && p.stopErr == nil {
			p.stopErr = err
		}

		if err := p.closeState(); err != nil && p.stopErr == nil {
			p.stopErr = err
		}
		p.logger.Info("pipeline stopped")
	})
	return p.stopErr
}

func (p *Pipeline) closeState() error {
	var firstErr error
	if err := p.quarantine.Close(); err != nil {
		firstErr = err
	}
	if err := p.dlq.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// runValidator classifies samples off the intake queue. Accepted samples
// move on; rejected samples are counted; quarantined samples persist for
// reclassification. Queue closure ends the worker.
func (p *Pipeline) runValidator() error {
	ctx := context.Background()
	for {
		sample, err := p.intakeQ.Get(ctx)
		if err != nil {
			return nil
		}

		result := p.validator.Validate(sample)
		switch result.Class {
		case types.ClassAccepted:
			if err := p.validQ.Put(ctx, result); err != nil {
				return nil
			}
		case types.ClassQuarantined:
			if err := p.quarantine.Add(result); err != nil {
				p.logger.Error("quarantine write failed",
					"metric", sample.Metric,
					"error", err)
			}
		case types.ClassRejected:
			p.logger.Debug("sample rejected",
				"metric", sample.Metric,
				"reason", result.Reason)
		}
	}
}

// runTransformer canonicalizes accepted samples and absorbs duplicates.
func (p *Pipeline) runTransformer() error {
	ctx := context.Background()
	for {
		result, err := p.validQ.Get(ctx)
		if err != nil {
			return nil
		}

		canonical, ok := p.transformer.Transform(result)
		if !ok {
			continue
		}
		if err := p.aggQ.Put(ctx, canonical); err != nil {
			return nil
		}
	}
}

// runAggregator writes the raw point and folds the sample into its
// aggregation windows.
func (p *Pipeline) runAggregator() error {
	ctx := context.Background()
	for {
		canonical, err := p.aggQ.Get(ctx)
		if err != nil {
			return nil
		}

		raw := store.PointItem(types.SeriesPoint{
			Metric:      canonical.Metric,
			Labels:      canonical.Labels,
			TimestampMs: canonical.TimestampMs,
			Value:       canonical.Value,
			Resolution:  types.ResolutionRaw,
		})
		if err := p.writeQ.Put(ctx, raw); err != nil {
			return nil
		}
		if err := p.aggregator.Offer(ctx, canonical); err != nil {
			return nil
		}
	}
}

// Reclassify replays quarantined samples whose metric now has a schema
// back through the validation queue. Samples still lacking a schema are
// re-quarantined; replayed segments are removed.
func (p *Pipeline) Reclassify(ctx context.Context) (int, error) {
	if err := p.quarantine.Flush(); err != nil {
		return 0, err
	}
	files, err := p.quarantine.Files()
	if err != nil {
		return 0, err
	}
	samples, err := p.quarantine.ReadAll(0)
	if err != nil {
		return 0, err
	}

	replayed := 0
	var held []validate.QuarantinedSample
	for _, qs := range samples {
		if _, ok := p.schemas.Lookup(qs.Sample.Metric); !ok {
			held = append(held, qs)
			continue
		}
		if err := p.intakeQ.Put(ctx, qs.Sample); err != nil {
			return replayed, err
		}
		replayed++
	}

	if err := p.quarantine.DropSegments(files); err != nil {
		return replayed, err
	}
	for _, qs := range held {
		if err := p.quarantine.Add(types.Quarantined(qs.Sample, qs.Reason)); err != nil {
			return replayed, err
		}
	}

	p.logger.Info("quarantine reclassified",
		"replayed", replayed,
		"held", len(held))
	return replayed, nil
}

// Intake exposes the ingestion entry point for the bus and collectors.
func (p *Pipeline) Intake() *intake.Intake { return p.in }

// Store exposes the time-series store for the query API.
func (p *Pipeline) Store() *store.Store { return p.db }

// Schemas exposes the schema registry.
func (p *Pipeline) Schemas() *validate.SchemaRegistry { return p.schemas }

// Sources exposes the source liveness registry.
func (p *Pipeline) Sources() *intake.Registry { return p.sources }

// Quarantine exposes the quarantine store for inspection.
func (p *Pipeline) Quarantine() *validate.QuarantineStore { return p.quarantine }

// DeadLetters exposes the dead-letter log for inspection.
func (p *Pipeline) DeadLetters() *store.DeadLetterLog { return p.dlq }

// Ready reports whether the pipeline accepts and persists samples.
func (p *Pipeline) Ready() bool { return p.ready.Load() }
