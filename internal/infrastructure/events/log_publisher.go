package events

import (
	"context"
	"log/slog"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
)

// LogPublisher stands in for a broker when none is configured.
type LogPublisher struct {
	logger *slog.Logger
}

var _ application.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, record domain.TransitionRecord) error {
	p.logger.DebugContext(ctx, "transition event",
		"type", EventType,
		"transaction_id", record.TransactionID,
		"from", record.FromStatus,
		"to", record.ToStatus,
		"reason", record.ReasonCode,
		"actor", record.Actor,
		"version", record.Version,
	)
	return nil
}
