package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelSink_EmitDeliversWithinCapacity(t *testing.T) {
	sink := NewChannelSink(2)
	sink.Emit(Event{Kind: EventNodeStart, NodeID: "a"})
	sink.Emit(Event{Kind: EventNodeComplete, NodeID: "a"})

	first := <-sink.Events()
	second := <-sink.Events()
	assert.Equal(t, EventNodeStart, first.Kind)
	assert.Equal(t, EventNodeComplete, second.Kind)
}

func TestChannelSink_EmitDropsWhenBufferFull(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(Event{Kind: EventNodeStart, NodeID: "a"})
	sink.Emit(Event{Kind: EventNodeStart, NodeID: "b"})

	assert.Len(t, sink.Events(), 1, "a full buffer must drop rather than block")
	got := <-sink.Events()
	assert.Equal(t, "a", got.NodeID, "the first event wins; the second is dropped")
}

func TestNewChannelSink_NonPositiveCapacityUsesDefault(t *testing.T) {
	sink := NewChannelSink(0)
	assert.Equal(t, 256, cap(sink.ch))
}

func TestChannelSink_CloseDrainsBufferedThenReportsClosed(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(Event{Kind: EventComplete})
	sink.Close()

	got, ok := <-sink.Events()
	assert.True(t, ok)
	assert.Equal(t, EventComplete, got.Kind)

	_, ok = <-sink.Events()
	assert.False(t, ok, "reading after drain of a closed channel reports closed")
}
