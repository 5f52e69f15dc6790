package events

import (
	"context"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
)

// LogSink writes every event to a SecurityLogger
type LogSink struct {
	logger *logger.SecurityLogger
}

// NewLogSink creates a LogSink
func NewLogSink(l *logger.SecurityLogger) *LogSink {
	return &LogSink{logger: l}
}

// Emit logs event
func (s *LogSink) Emit(event models.SecurityEvent) {
	s.logger.Log(context.Background(), logger.SecurityRecord{
		EventType: string(event.Type),
		Identity:  event.Identity,
		ClientIP:  event.ClientIP,
		UserAgent: event.UserAgent,
		RiskScore: event.RiskScore,
		Success:   event.IsSuccess(),
		Timestamp: event.Timestamp,
		Metadata:  event.Metadata,
	})
}
