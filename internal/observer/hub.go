package observer

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/netrun/flowengine/pkg/engine"
)

// subscriber is one consumer of a single execution's event stream,
// identified by an opaque id (a websocket client id, or a synthetic id for
// a Server-Sent-Events or in-process subscriber).
type subscriber struct {
	id          string
	executionID string
	queue       *eventQueue
}

// Hub indexes live subscribers by execution id and implements
// engine.EventSink per execution, mirroring the teacher's
// websocket.Hub's byExecutionID index but scoped to this engine's single
// execution_id subscription dimension (no per-user auth layer; spec.md
// places authentication out of scope).
type Hub struct {
	mu            sync.RWMutex
	byExecutionID map[string]map[string]*subscriber

	log *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{byExecutionID: make(map[string]map[string]*subscriber), log: log}
}

// Subscribe registers a new subscriber for an execution's events and
// returns the queue to drain, plus an unsubscribe function.
func (h *Hub) Subscribe(executionID string) (*eventQueue, func()) {
	sub := &subscriber{id: newSubscriberID(), executionID: executionID, queue: newEventQueue()}

	h.mu.Lock()
	if h.byExecutionID[executionID] == nil {
		h.byExecutionID[executionID] = make(map[string]*subscriber)
	}
	h.byExecutionID[executionID][sub.id] = sub
	h.mu.Unlock()

	h.log.Debug("observer subscribed", "execution_id", executionID, "subscriber_id", sub.id)

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.byExecutionID[executionID]; ok {
			delete(subs, sub.id)
			if len(subs) == 0 {
				delete(h.byExecutionID, executionID)
			}
		}
	}
	return sub.queue, unsubscribe
}

// SinkFor returns an engine.EventSink that fans events for executionID out
// to every current and future subscriber of that execution. The Scheduler
// holds one of these per run.
func (h *Hub) SinkFor(executionID string) engine.EventSink {
	return &hubSink{hub: h, executionID: executionID}
}

// broadcast pushes an event to every subscriber of its execution id.
func (h *Hub) broadcast(executionID string, e engine.Event) {
	h.mu.RLock()
	subs := h.byExecutionID[executionID]
	targets := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.queue.push(e)
	}
}

// SubscriberCount reports how many subscribers are currently attached to
// an execution's stream.
func (h *Hub) SubscriberCount(executionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byExecutionID[executionID])
}

type hubSink struct {
	hub         *Hub
	executionID string
}

func (s *hubSink) Emit(e engine.Event) {
	if e.ExecutionID == "" {
		e.ExecutionID = s.executionID
	}
	s.hub.broadcast(s.executionID, e)
}

var subscriberSeq struct {
	mu sync.Mutex
	n  int
}

// newSubscriberID generates a small sequential id. Subscriber ids are only
// ever compared for map-key equality within one Hub, so a process-local
// counter is sufficient without pulling in a UUID generator.
func newSubscriberID() string {
	subscriberSeq.mu.Lock()
	defer subscriberSeq.mu.Unlock()
	subscriberSeq.n++
	return "sub-" + strconv.Itoa(subscriberSeq.n)
}
