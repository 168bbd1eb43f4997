package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

type keyed interface {
	PartitionKey() string
}

// KafkaForwarder copies bus events onto a Kafka topic.
type KafkaForwarder struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewKafkaProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	return config
}

// NewKafkaForwarder dials the brokers with a synchronous producer.
func NewKafkaForwarder(brokers []string, topic string, logger *slog.Logger) (*KafkaForwarder, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaForwarderWithProducer(producer, topic, logger), nil
}

func NewKafkaForwarderWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaForwarder {
	return &KafkaForwarder{producer: producer, topic: topic, logger: logger}
}

// Handle satisfies Handler so the forwarder can subscribe to the bus.
func (f *KafkaForwarder) Handle(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.EventType(), err)
	}

	key := event.EventID()
	if k, ok := event.(keyed); ok && k.PartitionKey() != "" {
		key = k.PartitionKey()
	}

	msg := &sarama.ProducerMessage{
		Topic: f.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType())},
			{Key: []byte("event_id"), Value: []byte(event.EventID())},
		},
	}

	partition, offset, err := f.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send %s event to kafka: %w", event.EventType(), err)
	}

	f.logger.Debug("event forwarded to kafka",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"topic", f.topic,
		"partition", partition,
		"offset", offset)
	return nil
}

func (f *KafkaForwarder) Close() error {
	return f.producer.Close()
}
