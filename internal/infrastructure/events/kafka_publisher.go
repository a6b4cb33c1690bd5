// Package events publishes committed transitions to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/segmentio/kafka-go"
)

// EventType tags every message on the transitions topic.
const EventType = "transaction.transitioned"

// TransitionEvent is the JSON body of a published message.
type TransitionEvent struct {
	Type       string                  `json:"type"`
	OccurredAt time.Time               `json:"occurredAt"`
	Record     domain.TransitionRecord `json:"record"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per transition, keyed by transaction id
// so a transaction's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

var _ application.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(cfg config.KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.BrokerList()...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}, cfg.Topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, record domain.TransitionRecord) error {
	data, err := json.Marshal(TransitionEvent{
		Type:       EventType,
		OccurredAt: record.Timestamp,
		Record:     record,
	})
	if err != nil {
		return fmt.Errorf("encode transition event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.TransactionID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventType)},
			{Key: "to-status", Value: []byte(record.ToStatus)},
		},
	})
	if err != nil {
		return fmt.Errorf("write to topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.logger.Info("closing kafka publisher", "topic", p.topic)
	return p.writer.Close()
}
