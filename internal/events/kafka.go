package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/config"
)

// KafkaSource reads one topic as a member of a consumer group.
type KafkaSource struct {
	reader *kafka.Reader
	topic  string
}

// NewKafkaSource creates a group reader for topic. Offsets are committed
// synchronously by Commit.
func NewKafkaSource(cfg config.KafkaConfig, topic config.TopicConfig, logger *zap.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if topic.Topic == "" {
		return nil, fmt.Errorf("kafka topic cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	startOffset := kafka.LastOffset
	if cfg.StartOffset == "first" {
		startOffset = kafka.FirstOffset
	}

	sugar := logger.Named("kafka").With(zap.String("topic", topic.Topic)).Sugar()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       topic.Topic,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: startOffset,
		Dialer: &kafka.Dialer{
			ClientID:  topic.ClientID,
			Timeout:   cfg.DialTimeout,
			DualStack: true,
		},
		ErrorLogger: kafka.LoggerFunc(sugar.Errorf),
	})

	return &KafkaSource{reader: reader, topic: topic.Topic}, nil
}

// Fetch implements Source.
func (s *KafkaSource) Fetch(ctx context.Context) (Message, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Topic:     m.Topic,
		Key:       string(m.Key),
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
		commit:    m,
	}, nil
}

// Commit implements Source.
func (s *KafkaSource) Commit(ctx context.Context, msg Message) error {
	m, ok := msg.commit.(kafka.Message)
	if !ok {
		return fmt.Errorf("message was not fetched from kafka")
	}
	if err := s.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("failed to commit offset %d: %w", m.Offset, err)
	}
	return nil
}

// Topic implements Source.
func (s *KafkaSource) Topic() string { return s.topic }

// Close implements Source.
func (s *KafkaSource) Close() error { return s.reader.Close() }

// KafkaDeadLetter writes dead letters to a Kafka topic.
type KafkaDeadLetter struct {
	writer *kafka.Writer
}

// NewKafkaDeadLetter creates a writer for topic.
func NewKafkaDeadLetter(brokers []string, topic string) (*KafkaDeadLetter, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("dead letter topic cannot be empty")
	}
	return &KafkaDeadLetter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// Send implements DeadLetter.
func (d *KafkaDeadLetter) Send(ctx context.Context, entry DeadLetterEntry) error {
	err := d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.Key),
		Value: entry.Value,
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(entry.Topic)},
			{Key: "source_offset", Value: []byte(strconv.FormatInt(entry.Offset, 10))},
			{Key: "source_id", Value: []byte(entry.SourceID)},
			{Key: "reason", Value: []byte(entry.Reason)},
			{Key: "error", Value: []byte(entry.Error)},
			{Key: "failed_at", Value: []byte(entry.FailedAt.UTC().Format(time.RFC3339))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write dead letter: %w", err)
	}
	return nil
}

// Close implements DeadLetter.
func (d *KafkaDeadLetter) Close() error { return d.writer.Close() }
