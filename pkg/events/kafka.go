package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/theset/setlist-server/pkg/pubsub"
)

// KafkaClient appends setlist activity to a durable topic for downstream
// consumers (analytics, catalog ingestion). It is an event log, not the live
// fan-out path; viewers get their deltas over the show's Redis channel.
type KafkaClient struct {
	writer *kafka.Writer
}

func NewKafkaClient(brokers []string, topic string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaClient{writer: writer}
}

// Record is the envelope written to the topic.
type Record struct {
	ID        string               `json:"id"`
	Event     *pubsub.SetlistEvent `json:"event"`
	Timestamp time.Time            `json:"timestamp"`
}

// LogSetlistEvent appends one committed ledger change. Messages are keyed by
// show id so per-show ordering survives partitioning.
func (k *KafkaClient) LogSetlistEvent(ctx context.Context, event *pubsub.SetlistEvent) error {
	record := Record{
		ID:        uuid.New().String(),
		Event:     event,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ShowID),
		Value: payload,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}
