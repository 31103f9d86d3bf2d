package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"tripkey/internal/platform/kafka/producer"
)

// MessageProducer is the subset of the Kafka producer used here.
type MessageProducer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaPublisher writes events as JSON, keyed by trip so a trip's events stay ordered.
type KafkaPublisher struct {
	producer MessageProducer
	topic    string
}

func NewKafkaPublisher(p MessageProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return k.producer.Produce(ctx, &producer.Message{
		Topic: k.topic,
		Key:   []byte(ev.TripID.String()),
		Value: value,
		Headers: map[string]string{
			"event_type": string(ev.Type),
			"event_id":   ev.ID,
		},
	})
}
