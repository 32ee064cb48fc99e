package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"escpos-service/internal/model"
)

func receive(t *testing.T, sub *Subscription) model.Event {
	t.Helper()
	select {
	case event, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return model.Event{}
	}
}

func TestEventBusFiltersByType(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	go bus.Start()
	defer bus.Stop()

	all := bus.Subscribe()
	captures := bus.Subscribe(model.EventCaptureCompleted)
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(model.NewEvent(model.EventInstructionDecoded, "s1", "listener", nil))
	bus.Publish(model.NewEvent(model.EventCaptureCompleted, "s1", "listener", nil))

	assert.Equal(t, model.EventInstructionDecoded, receive(t, all).EventType)
	assert.Equal(t, model.EventCaptureCompleted, receive(t, all).EventType)
	assert.Equal(t, model.EventCaptureCompleted, receive(t, captures).EventType)

	select {
	case event := <-captures.C:
		t.Fatalf("unexpected event %s", event.EventType)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBusUnsubscribeAndStop(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	go bus.Start()

	sub := bus.Subscribe()
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount())

	other := bus.Subscribe()
	bus.Stop()
	bus.Stop()

	select {
	case _, ok := <-other.C:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed on stop")
	}
}

func TestEventSeverity(t *testing.T) {
	event := model.NewEvent(model.EventDecoderFailed, "s1", "listener", nil)
	assert.Equal(t, "INFO", event.Severity)
	assert.Equal(t, "ERROR", event.WithSeverity("ERROR").Severity)
	assert.Equal(t, "INFO", event.Severity)
}
