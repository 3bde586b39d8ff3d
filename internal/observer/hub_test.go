package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrun/flowengine/pkg/engine"
)

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(nil)
	queue, unsubscribe := hub.Subscribe("exec-1")
	defer unsubscribe()

	assert.Equal(t, 1, hub.SubscriberCount("exec-1"))

	sink := hub.SinkFor("exec-1")
	sink.Emit(engine.Event{Kind: engine.EventNodeStart, NodeID: "n1"})
	sink.Emit(engine.Event{Kind: engine.EventNodeComplete, NodeID: "n1"})

	events := queue.drain()
	require.Len(t, events, 2)
	assert.Equal(t, "exec-1", events[0].ExecutionID, "Emit stamps the execution id when the sink didn't set one")
	assert.Equal(t, engine.EventNodeStart, events[0].Kind)
	assert.Equal(t, engine.EventNodeComplete, events[1].Kind)
}

func TestHub_BroadcastOnlyReachesMatchingExecution(t *testing.T) {
	hub := NewHub(nil)
	qA, unsubA := hub.Subscribe("exec-a")
	defer unsubA()
	qB, unsubB := hub.Subscribe("exec-b")
	defer unsubB()

	hub.SinkFor("exec-a").Emit(engine.Event{Kind: engine.EventComplete})

	assert.Len(t, qA.drain(), 1)
	assert.Empty(t, qB.drain())
}

func TestHub_UnsubscribeRemovesSubscriber(t *testing.T) {
	hub := NewHub(nil)
	_, unsubscribe := hub.Subscribe("exec-1")
	assert.Equal(t, 1, hub.SubscriberCount("exec-1"))

	unsubscribe()
	assert.Equal(t, 0, hub.SubscriberCount("exec-1"))
}

func TestHub_MultipleSubscribersEachReceiveEvents(t *testing.T) {
	hub := NewHub(nil)
	q1, unsub1 := hub.Subscribe("exec-1")
	defer unsub1()
	q2, unsub2 := hub.Subscribe("exec-1")
	defer unsub2()

	hub.SinkFor("exec-1").Emit(engine.Event{Kind: engine.EventComplete})

	assert.Len(t, q1.drain(), 1)
	assert.Len(t, q2.drain(), 1)
}

func TestEventQueue_DropsOldestProgressEventUnderBackpressure(t *testing.T) {
	q := newEventQueue()

	for i := 0; i < queueCapacity; i++ {
		q.push(engine.Event{Kind: engine.EventProgress, Completed: i})
	}
	q.push(engine.Event{Kind: engine.EventNodeComplete, NodeID: "final"})

	events := q.drain()
	require.Len(t, events, queueCapacity)
	last := events[len(events)-1]
	assert.Equal(t, engine.EventNodeComplete, last.Kind, "node lifecycle events are never dropped")
}

func TestEventQueue_DrainClearsQueue(t *testing.T) {
	q := newEventQueue()
	q.push(engine.Event{Kind: engine.EventComplete})
	require.Len(t, q.drain(), 1)
	assert.Empty(t, q.drain())
}
