package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/triggerkit/trigger"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBus_NotificationFanOut(t *testing.T) {
	bus := New(Deps{})
	defer bus.Close()

	var mu sync.Mutex
	var received []trigger.Notification

	for i := 0; i < 2; i++ {
		bus.SubscribeNotifications(func(n trigger.Notification) {
			mu.Lock()
			received = append(received, n)
			mu.Unlock()
		})
	}

	bus.PublishNotification(testContext(t), trigger.Notification{ID: "n1", TriggerID: "t1"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "n1", received[0].ID)
	assert.Equal(t, "n1", received[1].ID)
}

func TestBus_EventFanOut(t *testing.T) {
	bus := New(Deps{})
	defer bus.Close()

	var mu sync.Mutex
	var got *trigger.Event

	bus.SubscribeEvents(func(e trigger.Event) {
		mu.Lock()
		got = &e
		mu.Unlock()
	})

	bus.PublishEvent(testContext(t), trigger.Event{
		Type:      "memory_suggestion",
		TriggerID: "t1",
		Payload:   map[string]any{"mood": "joyful"},
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "memory_suggestion", got.Type)
	assert.Equal(t, "joyful", got.Payload["mood"])
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(Deps{})
	defer bus.Close()

	var count int
	var mu sync.Mutex

	id := bus.SubscribeNotifications(func(trigger.Notification) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(id)
	assert.Equal(t, 0, bus.SubscriberCount())

	bus.PublishNotification(testContext(t), trigger.Notification{ID: "n1"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestBus_UnsubscribeUnknownID(t *testing.T) {
	bus := New(Deps{})
	defer bus.Close()

	bus.Unsubscribe("nope")
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBus_ClearSubscribers(t *testing.T) {
	bus := New(Deps{})
	defer bus.Close()

	bus.SubscribeNotifications(func(trigger.Notification) {})
	bus.SubscribeEvents(func(trigger.Event) {})
	require.Equal(t, 2, bus.SubscriberCount())

	bus.ClearSubscribers()
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := New(Deps{})
	defer bus.Close()

	block := make(chan struct{})
	bus.SubscribeNotifications(func(trigger.Notification) {
		<-block
	})

	// Flood well past the buffer; publish must return promptly every time
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.PublishNotification(testContext(t), trigger.Notification{ID: "n"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	close(block)
}

func TestBus_CloseIdempotent(t *testing.T) {
	bus := New(Deps{})

	bus.SubscribeNotifications(func(trigger.Notification) {})
	bus.Close()
	bus.Close()

	assert.Equal(t, 0, bus.SubscriberCount())

	// Post-close operations are no-ops
	assert.Empty(t, bus.SubscribeNotifications(func(trigger.Notification) {}))
	bus.PublishNotification(testContext(t), trigger.Notification{ID: "n1"})
}
