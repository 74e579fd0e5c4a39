package messaging

import (
	"context"

	"go.uber.org/zap"

	"stackture/domain/events"
)

// LogPublisher writes events to the log. Used when no event bus is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, domainEvents ...events.DomainEvent) error {
	for _, e := range domainEvents {
		p.logger.Info("Domain event",
			zap.String("eventID", e.GetEventID()),
			zap.String("eventType", e.GetEventType()),
			zap.String("workspaceID", e.GetAggregateID()),
			zap.Time("timestamp", e.GetTimestamp()),
		)
	}
	return nil
}
