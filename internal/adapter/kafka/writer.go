package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	batchSize      = 500
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes canonical records to a Kafka topic, one message per record.
// It implements pipeline.Sink.
type Writer struct {
	writer messageWriter
	runID  string
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic, runID string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, runID: runID, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Write publishes ds in batches. A batch that fails is retried with
// exponential backoff before the write gives up.
func (w *Writer) Write(ctx context.Context, ds domain.Dataset) error {
	for start := 0; start < len(ds); start += batchSize {
		end := min(start+batchSize, len(ds))
		msgs := make([]kafkago.Message, 0, end-start)
		for i := start; i < end; i++ {
			msg, err := serializeToMessage(&ds[i], w.runID)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			msgs = append(msgs, msg)
		}
		if err := w.writeBatch(ctx, msgs); err != nil {
			return err
		}
	}
	if len(ds) > 0 {
		w.logger.Info("records published", "sink", w.Name(), "count", len(ds))
	}
	return nil
}

func (w *Writer) writeBatch(ctx context.Context, msgs []kafkago.Message) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = w.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		w.logger.Warn("publish failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("publish %d messages: %w", len(msgs), err)
}

// Close flushes and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a canonical record into a Kafka message keyed
// by station id.
func serializeToMessage(rec *domain.Record, runID string) (kafkago.Message, error) {
	data, err := rec.MarshalJSON()
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record: %w", err)
	}
	var key []byte
	if id, ok := rec.Get(domain.FieldStationID); ok && !id.IsNull() {
		key = []byte(id.String())
	}
	return kafkago.Message{
		Key:   key,
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(rec.Origin())},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
