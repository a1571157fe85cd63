// Package publisher announces persisted assessments on a Kafka topic.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/models"
	"github.com/segmentio/kafka-go"
)

// EventType is carried in the event-type header of every message
const EventType = "assessment.created"

// messageWriter is the subset of *kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes assessments keyed by wallet so one wallet's
// events stay on one partition in order
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher for cfg.Topic. Returns nil when no brokers are configured.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return newKafkaPublisher(writer, cfg.Topic)
}

func newKafkaPublisher(writer messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic, now: time.Now}
}

// Topic returns the destination topic
func (p *KafkaPublisher) Topic() string {
	return p.topic
}

// Publish sends one assessment
func (p *KafkaPublisher) Publish(ctx context.Context, assessment *models.Assessment) error {
	if assessment == nil {
		return fmt.Errorf("assessment is nil")
	}
	data, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strings.ToLower(assessment.WalletAddress)),
		Value: data,
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish assessment %d to %s: %w", assessment.ID, p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
