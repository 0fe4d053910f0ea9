// dcnd is the data collection node daemon: it ingests metric samples
// from the bus and embedded collectors, validates and aggregates them,
// persists the series, and serves the HTTP query and scrape API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nagendra0018/dcn/internal/bus"
	"github.com/nagendra0018/dcn/internal/collector"
	"github.com/nagendra0018/dcn/internal/config"
	"github.com/nagendra0018/dcn/internal/export"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/pipeline"
	"github.com/nagendra0018/dcn/internal/server"
	"github.com/nagendra0018/dcn/internal/types"
	"github.com/nagendra0018/dcn/internal/validate"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	logJSON := flag.Bool("log-json", false, "JSON log output")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			slog.Error("load config failed", "path", *cfgPath, "error", err)
			os.Exit(1)
		}
	}

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logging.Init(parseLevel(cfg.Logging.Level), cfg.Logging.JSON || *logJSON)
	log := logging.Component("dcnd")
	log.Info("starting", "version", Version, "data_dir", cfg.DataDir)

	metrics := export.NewMetrics()

	p, err := pipeline.New(cfg, metrics)
	if err != nil {
		log.Error("pipeline init failed", "error", err)
		os.Exit(1)
	}
	if err := p.Start(); err != nil {
		log.Error("pipeline start failed", "error", err)
		os.Exit(1)
	}

	// The scrape serves the latest stored value per series alongside the
	// pipeline's own instruments.
	seriesCollector := export.NewSeriesCollector(p.Store(), schemaSource{p.Schemas()})
	if err := metrics.Register(seriesCollector); err != nil {
		log.Error("register series collector failed", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg, server.Deps{
		Store:          p.Store(),
		Schemas:        p.Schemas(),
		Sources:        p.Sources(),
		Quarantine:     p.Quarantine(),
		DeadLetters:    p.DeadLetters(),
		MetricsHandler: metrics.Handler(),
		Ready:          p.Ready,
		Reclassify:     p.Reclassify,
	})
	if err := srv.Start(); err != nil {
		log.Error("http server start failed", "error", err)
		os.Exit(1)
	}

	// Producers: the bus consumer and the embedded collectors. Both stop
	// before the pipeline drains.
	producerCtx, stopProducers := context.WithCancel(context.Background())
	var producers sync.WaitGroup

	if len(cfg.Bus.Brokers) > 0 {
		consumer := bus.NewConsumer(cfg.Bus, p.Intake(), cfg.Intake.BatchSize)
		producers.Add(1)
		go func() {
			defer producers.Done()
			if err := consumer.Run(producerCtx); err != nil && producerCtx.Err() == nil {
				log.Error("bus consumer stopped", "error", err)
			}
		}()
		log.Info("bus consumer started",
			"brokers", cfg.Bus.Brokers,
			"topic", cfg.Bus.Topic)
	}

	runner, err := collector.NewRunner(cfg.Collectors, collectorSink(cfg, p))
	if err != nil {
		log.Error("collector init failed", "error", err)
		os.Exit(1)
	}
	if runner.Len() > 0 {
		producers.Add(1)
		go func() {
			defer producers.Done()
			runner.Run(producerCtx)
		}()
		log.Info("collectors started", "count", runner.Len())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	// Stop accepting: producers first, then the HTTP surface, then drain
	// the pipeline so everything buffered is persisted.
	stopProducers()
	producers.Wait()

	if err := srv.Stop(); err != nil {
		log.Error("http server stop failed", "error", err)
	}
	if err := p.Stop(); err != nil {
		log.Error("pipeline stop failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// collectorSink routes collector batches through the bus when brokers
// are configured, otherwise directly into the intake.
func collectorSink(cfg *config.Config, p *pipeline.Pipeline) collector.Sink {
	if len(cfg.Bus.Brokers) > 0 {
		publisher := bus.NewPublisher(cfg.Bus)
		return collector.SinkFunc(func(ctx context.Context, source string, samples []types.Sample) error {
			return publisher.Publish(ctx, samples)
		})
	}
	return collector.SinkFunc(func(ctx context.Context, source string, samples []types.Sample) error {
		return p.Intake().ReceiveSamples(ctx, source, samples)
	})
}

// schemaSource adapts the schema registry to the scrape's metadata
// lookup.
type schemaSource struct {
	schemas *validate.SchemaRegistry
}

func (s schemaSource) SchemaInfo(metric string) (export.SchemaInfo, bool) {
	schema, ok := s.schemas.Lookup(metric)
	if !ok {
		return export.SchemaInfo{}, false
	}
	return export.SchemaInfo{
		Name:        schema.Name,
		Description: schema.Description,
		Counter:     schema.Type == types.ValueTypeCounter,
	}, true
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
