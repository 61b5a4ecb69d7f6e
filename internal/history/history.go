// Package history records alert job state transitions for external audit and
// reporting. Recording is fire-and-forget: a failure to record never affects
// dispatch.
package history

import (
	"context"
	"sync"
	"time"
)

// Event is one alert job state transition.
type Event struct {
	JobID        string    `json:"jobId"`
	UserID       string    `json:"userId"`
	TriggerKind  string    `json:"triggerKind"`
	FromStatus   string    `json:"fromStatus"`
	ToStatus     string    `json:"toStatus"`
	AttemptCount int       `json:"attemptCount"`
	At           time.Time `json:"at"`
}

// Recorder receives job state transitions. Implementations must be safe for
// concurrent use and should return quickly; the dispatch pipeline calls Record
// on its delivery path.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// MemoryRecorder is an in-memory Recorder for tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryRecorder creates a new in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends the event.
func (r *MemoryRecorder) Record(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of all recorded events.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// EventsForJob returns recorded events for one job, in record order.
func (r *MemoryRecorder) EventsForJob(jobID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out
}

// NopRecorder discards all events.
type NopRecorder struct{}

// Record discards the event.
func (NopRecorder) Record(context.Context, Event) error { return nil }

var (
	_ Recorder = (*MemoryRecorder)(nil)
	_ Recorder = NopRecorder{}
)
