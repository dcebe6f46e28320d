// Package events publishes entity state transitions to Kafka. Publishing is
// fire-and-forget: a broker outage must never fail a payment operation, so
// failures are logged and dropped.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cardpay/qrpay/internal/telemetry"
)

const StateChangedTopic = "payment.state.changed"

type StateChange struct {
	Entity        string    `json:"entity"`
	EntityID      string    `json:"entity_id"`
	State         string    `json:"state"`
	PreviousState string    `json:"previous_state"`
	Timestamp     time.Time `json:"timestamp"`
}

type Publisher interface {
	StateChanged(ctx context.Context, change StateChange)
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers),
			Topic:    StateChangedTopic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) StateChanged(ctx context.Context, change StateChange) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(change)
	if err != nil {
		telemetry.Logger.Error("Error marshaling state change", zap.Error(err))
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.EntityID),
		Value: value,
	}); err != nil {
		telemetry.Logger.Error("Error publishing state change",
			zap.String("entity", change.Entity),
			zap.String("entity_id", change.EntityID),
			zap.Error(err),
		)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards state changes. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) StateChanged(context.Context, StateChange) {}
