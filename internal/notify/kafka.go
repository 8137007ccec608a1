// Package notify publishes sync lifecycle events for downstream consumers
// (plan analytics, user notifications). Delivery is best effort: a failed
// publish is logged and never fails the sync pass that produced it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// SyncCompleted is emitted after every sync pass, successful or not.
type SyncCompleted struct {
	UserID     string    `json:"user_id"`
	Provider   string    `json:"provider"`
	Direction  string    `json:"direction"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends sync events somewhere. The zero-broker deployment gets a
// NopPublisher so callers never branch on configuration.
type Publisher interface {
	PublishSyncCompleted(ctx context.Context, event SyncCompleted) error
	Close() error
}

// KafkaPublisher writes events to a single Kafka topic.
type KafkaPublisher struct {
	brokers []string
	topic   string
	logger  *zap.Logger

	mu     sync.Mutex
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{brokers: brokers, topic: topic, logger: logger}
}

// getWriter lazily constructs the writer so startup does not depend on the
// broker being reachable.
func (p *KafkaPublisher) getWriter() *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(p.brokers...),
			Topic:        p.topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return p.writer
}

// PublishSyncCompleted sends one event keyed by user id so a user's events
// stay ordered within a partition.
func (p *KafkaPublisher) PublishSyncCompleted(ctx context.Context, event SyncCompleted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	}

	if err := p.getWriter().WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("failed to publish sync event",
			zap.String("user_id", event.UserID),
			zap.String("provider", event.Provider),
			zap.Error(err))
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishSyncCompleted(context.Context, SyncCompleted) error { return nil }
func (NopPublisher) Close() error                                             { return nil }
