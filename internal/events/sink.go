// Package events carries security events from the engine to their sinks.
// Emitting never blocks the request path and never surfaces sink failures.
package events

import (
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Sink consumes security events. Implementations must not block and must
// not panic into the caller.
type Sink interface {
	Emit(event models.SecurityEvent)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(event models.SecurityEvent)

// Emit calls f(event)
func (f SinkFunc) Emit(event models.SecurityEvent) {
	f(event)
}

// Discard drops every event
var Discard Sink = SinkFunc(func(models.SecurityEvent) {})

// Multi fans an event out to every sink in order
type Multi []Sink

// Emit delivers event to each sink
func (m Multi) Emit(event models.SecurityEvent) {
	for _, s := range m {
		if s != nil {
			s.Emit(event)
		}
	}
}

// Filter forwards only the events keep accepts
func Filter(next Sink, keep func(models.SecurityEvent) bool) Sink {
	return SinkFunc(func(event models.SecurityEvent) {
		if keep(event) {
			next.Emit(event)
		}
	})
}

// Stamp assigns an ID and a timestamp from clk to events that lack them
// before passing them on
func Stamp(next Sink, clk clock.Clock) Sink {
	return SinkFunc(func(event models.SecurityEvent) {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = clk.Now()
		}
		next.Emit(event)
	})
}
