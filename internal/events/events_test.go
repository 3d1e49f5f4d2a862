package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublish(t *testing.T) {
	bus := NewBus()

	var got []*Event
	bus.Subscribe(EventQueueStatusChanged, func(e *Event) {
		got = append(got, e)
	})

	bus.Publish(&Event{Type: EventQueueStatusChanged})
	bus.Publish(&Event{Type: EventSyncFinished}) // no subscriber

	require.Len(t, got, 1)
	assert.Equal(t, EventQueueStatusChanged, got[0].Type)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestPublishJSON(t *testing.T) {
	bus := NewBus()

	var payload QueueStatusPayload
	bus.Subscribe(EventQueueStatusChanged, func(e *Event) {
		require.NoError(t, json.Unmarshal(e.Payload, &payload))
	})

	err := bus.PublishJSON(EventQueueStatusChanged, QueueStatusPayload{Status: "waiting_for_network"})
	require.NoError(t, err)
	assert.Equal(t, "waiting_for_network", payload.Status)
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	calls := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(EventOperationCompleted, func(*Event) { calls++ })
	}

	bus.Publish(&Event{Type: EventOperationCompleted})
	assert.Equal(t, 3, calls)
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	assert.NoError(t, bus.PublishJSON(EventSyncStarted, nil))
	bus.Publish(&Event{Type: EventSyncStarted})
}
