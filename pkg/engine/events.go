package engine

import (
	"time"

	"github.com/netrun/flowengine/pkg/models"
)

// EventKind names the shape of an Event, matching the event stream kinds in
// spec.md §4.7.
type EventKind string

const (
	EventProgress        EventKind = "progress"
	EventNodeStart       EventKind = "node_start"
	EventNodeComplete    EventKind = "node_complete"
	EventNodeError       EventKind = "node_error"
	EventNodeRetry       EventKind = "node_retry"
	EventNodeSkipped     EventKind = "node_skipped"
	EventRunStateChanged EventKind = "run_state_changed"
	EventComplete        EventKind = "complete"
	EventError           EventKind = "error"
)

// Event is a single message on a run's event stream. Not every field is
// populated for every Kind; see the comment on each field for which kinds
// set it.
type Event struct {
	Kind        EventKind `json:"kind"`
	ExecutionID string    `json:"execution_id"`
	Timestamp   time.Time `json:"timestamp"`

	// node_start, node_complete, node_error, node_retry, node_skipped
	NodeID string             `json:"node_id,omitempty"`
	Result *models.NodeResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
	Reason string             `json:"reason,omitempty"`

	// node_retry (Attempt is the attempt number); progress events also set
	// Attempt, to the 1-based number of the band just run
	Attempt   int  `json:"attempt,omitempty"`
	WillRetry bool `json:"will_retry,omitempty"`

	// progress
	Completed  int     `json:"completed,omitempty"`
	Total      int     `json:"total,omitempty"`
	Failed     int     `json:"failed,omitempty"`
	Skipped    int     `json:"skipped,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`

	// run_state_changed
	OldStatus models.RunStatus `json:"old_status,omitempty"`
	NewStatus models.RunStatus `json:"new_status,omitempty"`

	// complete
	Summary *models.Execution `json:"summary,omitempty"`
}

// EventSink receives events emitted by a Scheduler run, in emission order.
// A single run emits to exactly one Sink; fan-out to many subscribers is
// the Event Streamer's job (internal/observer), not the Scheduler's.
type EventSink interface {
	Emit(Event)
}

// ChannelSink is a minimal EventSink backed by a buffered channel, used by
// default and by tests. internal/observer provides the bounded,
// drop-oldest-progress, multi-subscriber Hub described in spec §4.7; this
// type only needs to not block the Scheduler.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer capacity. A full
// buffer causes Emit to drop the event rather than block the Scheduler,
// since a single unbuffered consumer falling behind must never stall a run.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity <= 0 {
		capacity = 256
	}
	return &ChannelSink{ch: make(chan Event, capacity)}
}

func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// Events returns the channel events are delivered on.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Close closes the underlying channel. Callers must stop calling Emit
// before calling Close.
func (s *ChannelSink) Close() {
	close(s.ch)
}
