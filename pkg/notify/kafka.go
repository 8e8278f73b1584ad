package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RunCompletedEvent is the type header of published summaries.
const RunCompletedEvent = "run.completed"

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ParseBrokers splits a comma-separated broker string
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes the run summary as a JSON event.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger ectologger.Logger
}

func NewKafkaNotifier(cfg KafkaConfig, logger ectologger.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{
		writer: writer,
		topic:  cfg.Topic,
		logger: logger,
	}
}

func (k *KafkaNotifier) Name() string {
	return "kafka"
}

func (k *KafkaNotifier) Notify(ctx context.Context, s *report.Summary) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishSummary",
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", k.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("run_id", s.RunID),
	)
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		tracing.Fail(span, err, "failed to marshal summary")
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	headers := []kafka.Header{
		{Key: "type", Value: []byte(RunCompletedEvent)},
		{Key: "run_id", Value: []byte(s.RunID)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(s.RunID),
		Value:   data,
		Headers: headers,
	}); err != nil {
		tracing.Fail(span, err, "failed to publish summary")
		k.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish run summary to Kafka topic %s", k.topic)
		return err
	}

	span.SetStatus(codes.Ok, "summary published")
	k.logger.WithContext(ctx).Debugf("Published run summary %s to Kafka topic %s", s.RunID, k.topic)
	return nil
}

// Close closes the writer
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
