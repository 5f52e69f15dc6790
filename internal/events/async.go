package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/BradenHooton/bastion/internal/models"
)

// DefaultBufferSize is the queue depth used when none is given
const DefaultBufferSize = 1024

// Async decouples emitters from a slow sink through a bounded queue drained
// by a single goroutine. Events are dropped, and counted, when the queue is
// full.
type Async struct {
	next    Sink
	queue   chan models.SecurityEvent
	done    chan struct{}
	logger  *slog.Logger
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the delivery goroutine
func NewAsync(next Sink, bufferSize int, logger *slog.Logger) *Async {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	a := &Async{
		next:   next,
		queue:  make(chan models.SecurityEvent, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go a.run()
	return a
}

// Emit enqueues event without blocking
func (a *Async) Emit(event models.SecurityEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.dropped.Add(1)
		return
	}

	select {
	case a.queue <- event:
	default:
		if a.dropped.Add(1)%100 == 1 {
			a.logger.Warn("security event queue full, dropping events",
				slog.String("event_type", string(event.Type)),
				slog.Int64("dropped_total", a.dropped.Load()),
			)
		}
	}
}

// Dropped returns the number of events lost to a full or closed queue
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("security event queue not drained: %w", ctx.Err())
	}
}

func (a *Async) run() {
	defer close(a.done)
	for event := range a.queue {
		a.deliver(event)
	}
}

func (a *Async) deliver(event models.SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("security event sink panicked",
				slog.String("event_type", string(event.Type)),
				slog.Any("panic", r),
			)
		}
	}()
	a.next.Emit(event)
}
