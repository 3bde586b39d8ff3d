// Package observer implements the Event Streamer (spec.md §4.7): a Hub
// that fans a run's events out to every subscriber, each behind a bounded
// queue that drops the oldest pending progress event under backpressure
// rather than blocking the Scheduler or growing without bound. Grounded on
// the teacher's internal/infrastructure/websocket package (Hub/Client
// registration and indexed broadcast), adapted from its per-user fanout to
// this engine's single execution_id dimension and its unbounded
// per-client channel to a bounded, drop-aware queue.
package observer

import (
	"sync"

	"github.com/netrun/flowengine/pkg/engine"
)

// queueCapacity is the per-subscriber event budget (spec §4.7).
const queueCapacity = 1024

// eventQueue is a bounded FIFO of pending events for one subscriber. When
// full, it evicts the oldest "progress" event to make room, since a
// progress event carries running totals that the next one supersedes. When
// no progress event is queued, it drops the oldest event of any kind
// instead, node lifecycle events included.
type eventQueue struct {
	mu    sync.Mutex
	items []engine.Event
	wake  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

// push appends an event, evicting the oldest progress event first if the
// queue is at capacity.
func (q *eventQueue) push(e engine.Event) {
	q.mu.Lock()
	if len(q.items) >= queueCapacity {
		evicted := false
		for i, it := range q.items {
			if it.Kind == engine.EventProgress {
				q.items = append(q.items[:i], q.items[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			q.items = q.items[1:]
		}
	}
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain returns and clears every pending event.
func (q *eventQueue) drain() []engine.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}
