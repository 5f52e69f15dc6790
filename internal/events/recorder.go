package events

import (
	"sync"

	"github.com/BradenHooton/bastion/internal/models"
)

// Recorder keeps every emitted event in memory
type Recorder struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

// Emit appends event
func (r *Recorder) Emit(event models.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []models.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SecurityEvent(nil), r.events...)
}

// OfType returns the recorded events of type t
func (r *Recorder) OfType(t models.SecurityEventType) []models.SecurityEvent {
	var out []models.SecurityEvent
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
