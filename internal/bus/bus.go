// Package bus connects the pipeline to the metrics topic: a consumer
// group feeding the intake, and a producer used by collectors that
// publish through the broker instead of in-process.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nagendra0018/dcn/internal/config"
	"github.com/nagendra0018/dcn/internal/errors"
	"github.com/nagendra0018/dcn/internal/intake"
	"github.com/nagendra0018/dcn/internal/logging"
	"github.com/nagendra0018/dcn/internal/types"
)

// batchWait bounds how long the consumer holds a partial batch before
// handing it to the intake.
const batchWait = time.Second

// EncodeSample renders a sample in the wire record format collectors
// publish to the topic.
func EncodeSample(s types.Sample) ([]byte, error) {
	v := s.Value
	return json.Marshal(types.RawRecord{
		Metric:      s.Metric,
		Labels:      s.Labels,
		Value:       &v,
		TimestampMs: s.TimestampMs,
		Source:      s.Source,
	})
}

// Consumer reads wire records from the metrics topic and hands them to
// the intake in batches. Offsets commit only after the intake accepts a
// batch, so delivery is at-least-once; the transformer's dedup absorbs
// the replays.
type Consumer struct {
	reader    *kafka.Reader
	in        *intake.Intake
	batchSize int
	logger    *slog.Logger
}

// NewConsumer creates a consumer for the configured topic.
func NewConsumer(cfg config.BusConfig, in *intake.Intake, batchSize int) *Consumer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		}),
		in:        in,
		batchSize: batchSize,
		logger:    logging.Component("bus"),
	}
}

// Run consumes until ctx is cancelled. A partial batch held when the
// context ends is delivered before returning.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	var (
		records  [][]byte
		messages []kafka.Message
	)

	flush := func() error {
		if len(records) == 0 {
			return nil
		}
		// Delivery uses a background context so the final batch still
		// lands during shutdown; the intake rejects it once closed.
		if _, err := c.in.Receive(context.Background(), "bus", records); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(context.Background(), messages...); err != nil {
			return errors.Wrap(err, "commit offsets")
		}
		records = records[:0]
		messages = messages[:0]
		return nil
	}

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, batchWait)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				if flushErr := flush(); flushErr != nil && !errors.Is(flushErr, errors.ErrIntakeClosed) {
					c.logger.Error("final batch delivery failed", "error", flushErr)
				}
				return ctx.Err()
			}
			// Batch wait elapsed: deliver what we have and keep fetching.
			if err := flush(); err != nil {
				if errors.Is(err, errors.ErrIntakeClosed) {
					return err
				}
				c.logger.Error("batch delivery failed", "error", err)
			}
			continue
		}

		records = append(records, msg.Value)
		messages = append(messages, msg)
		if len(records) >= c.batchSize {
			if err := flush(); err != nil {
				if errors.Is(err, errors.ErrIntakeClosed) {
					return err
				}
				c.logger.Error("batch delivery failed", "error", err)
			}
		}
	}
}

// Publisher writes collector samples to the metrics topic.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher creates a producer for the configured topic.
func NewPublisher(cfg config.BusConfig) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		logger: logging.Component("bus-publisher"),
	}
}

// Publish writes one batch of samples, keyed by series so a series
// always lands on the same partition.
func (p *Publisher) Publish(ctx context.Context, samples []types.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(samples))
	for i := range samples {
		data, err := EncodeSample(samples[i])
		if err != nil {
			return errors.Wrap(err, "encode sample")
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(samples[i].Key()),
			Value: data,
		})
	}
	return p.writer.WriteMessages(ctx, messages...)
}

// Close closes the producer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
