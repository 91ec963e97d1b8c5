package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/volcano-risk-service/internal/config"
	"github.com/couchcryptid/volcano-risk-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes batch risk results to a Kafka topic.
// It implements scheduler.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured risk topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaRiskTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes all results in a single WriteMessages call.
// Messages are keyed by vnum so each volcano's results stay ordered on one partition.
func (w *Writer) Publish(ctx context.Context, results []domain.BatchResult) error {
	if len(results) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(results))
	for i := range results {
		msg, err := serializeToMessage(results[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d risk results: %w", len(msgs), err)
	}
	w.logger.Debug("risk results published", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a BatchResult into a Kafka message.
func serializeToMessage(r domain.BatchResult) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize risk result %s: %w", r.VNum, err)
	}
	return kafkago.Message{
		Key:   []byte(r.VNum),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "basis", Value: []byte(r.Basis)},
			{Key: "color", Value: []byte(r.Color)},
			{Key: "computed_at", Value: []byte(r.ComputedAt.Format(time.RFC3339))},
		},
	}, nil
}
