package service

import (
	"context"

	"knowledge-assistant-be/internal/pkg/logger"
	"knowledge-assistant-be/pkg/events"
	pktNats "knowledge-assistant-be/pkg/nats"
)

// AuditService consumes the durable event stream and writes a
// structured audit trail. Runs as a background worker; any instance
// in the cluster can hold the durable consumer.
type AuditService struct {
	subscriber *pktNats.Subscriber
	logger     logger.ILogger
}

func NewAuditService(subscriber *pktNats.Subscriber, log logger.ILogger) *AuditService {
	return &AuditService{
		subscriber: subscriber,
		logger:     log,
	}
}

// Start subscribes to all domain events. Blocks only on setup; the
// consumer runs on the NATS client's goroutines.
func (s *AuditService) Start() {
	err := s.subscriber.Subscribe("rag.>", "audit-worker", s.handleEvent)
	if err != nil {
		s.logger.Error("AuditService", "Failed to subscribe to event stream", map[string]interface{}{"error": err.Error()})
		return
	}
	s.logger.Info("AuditService", "Audit worker started", nil)
}

func (s *AuditService) handleEvent(ctx context.Context, event events.Event) error {
	s.logger.Info("Audit", event.EventType(), event.Payload())
	return nil
}
