package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	appkafka "relations-go/internal/kafka"
)

// Publisher delivers a named event to a specific user's active sessions.
// Delivery is at-least-once and best-effort: the caller logs failures and
// never fails its own operation on a publish error.
type Publisher interface {
	Publish(ctx context.Context, userID uint, name string, payload interface{}) error
}

// Envelope is the wire format published to the events topic and consumed
// by the event server for session delivery.
type Envelope struct {
	UserID  uint            `json:"userId"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// kafkaPublisher publishes envelopes to a single Kafka topic, keyed by the
// recipient user ID so one user's events stay ordered on one partition.
type kafkaPublisher struct {
	producer appkafka.MessageProducer
	topic    string
}

// NewKafkaPublisher creates a Publisher backed by the given Kafka producer.
func NewKafkaPublisher(producer appkafka.MessageProducer, topic string) Publisher {
	return &kafkaPublisher{producer: producer, topic: topic}
}

// Publish marshals the payload into an envelope and sends it to the topic.
func (p *kafkaPublisher) Publish(ctx context.Context, userID uint, name string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload for %s: %w", name, err)
	}
	envelope := Envelope{
		UserID:  userID,
		Name:    name,
		Payload: raw,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope for %s: %w", name, err)
	}
	key := []byte(strconv.FormatUint(uint64(userID), 10))
	if err := p.producer.SendMessage(ctx, p.topic, key, value); err != nil {
		return fmt.Errorf("publish %s for user %d: %w", name, userID, err)
	}
	return nil
}
