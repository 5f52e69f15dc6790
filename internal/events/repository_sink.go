package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// EventStore persists security events
type EventStore interface {
	Create(ctx context.Context, event *models.SecurityEvent) error
}

// RepositorySink writes events to an EventStore. Persistence failures are
// logged and swallowed.
type RepositorySink struct {
	store   EventStore
	timeout time.Duration
	logger  *slog.Logger
}

// NewRepositorySink creates a sink with a per-write timeout
func NewRepositorySink(store EventStore, timeout time.Duration, logger *slog.Logger) *RepositorySink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RepositorySink{store: store, timeout: timeout, logger: logger}
}

// Emit persists event
func (s *RepositorySink) Emit(event models.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.store.Create(ctx, &event); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist security event",
			slog.String("event_type", string(event.Type)),
			slog.Any("error", err),
		)
	}
}
