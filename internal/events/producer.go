package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type KafkaProducer struct {
	producer *kafka.Producer
	topic    string
	logger   *zap.Logger
}

func NewKafkaProducer(brokers, topic string, logger *zap.Logger) (*KafkaProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"acks":               "all",
		"retries":            10,
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, err
	}

	// delivery reports
	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					logger.Error("Order event delivery failed",
						zap.String("key", string(ev.Key)),
						zap.Error(ev.TopicPartition.Error))
				}
			case kafka.Error:
				logger.Warn("Kafka producer error", zap.Error(ev))
			}
		}
	}()

	return &KafkaProducer{producer: p, topic: topic, logger: logger}, nil
}

// headerCarrier lets the global propagator write trace context into message headers.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}

func (p *KafkaProducer) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte("ORDER#" + event.OrderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: msg})

	if err := p.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to enqueue %s for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

func (p *KafkaProducer) HealthCheck() error {
	_, err := p.producer.GetMetadata(&p.topic, false, 5000)
	return err
}

func (p *KafkaProducer) Close() {
	if remaining := p.producer.Flush(5000); remaining > 0 {
		p.logger.Warn("Order events left unflushed", zap.Int("count", remaining))
	}
	p.producer.Close()
}
