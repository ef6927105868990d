// Package eventbus provides in-process fan-out of notifications and domain
// events to registered subscribers, optionally mirrored to NATS subjects
// for external consumers.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/triggerkit/metric"
	"github.com/c360/triggerkit/natsclient"
	"github.com/c360/triggerkit/trigger"
)

// NATS subjects mirrored by the bus
const (
	SubjectNotification = "events.trigger.notification"
	SubjectEventPrefix  = "events.trigger."
)

// subscriber queue depth; deliveries beyond this are dropped rather than
// stalling the publisher
const subscriberBuffer = 64

// NotificationHandler receives published notifications
type NotificationHandler func(trigger.Notification)

// EventHandler receives published domain events
type EventHandler func(trigger.Event)

type notificationSub struct {
	ch      chan trigger.Notification
	done    chan struct{}
	handler NotificationHandler
}

type eventSub struct {
	ch      chan trigger.Event
	done    chan struct{}
	handler EventHandler
}

// Bus fans out notifications and domain events. Publication is
// fire-and-forget: each subscriber has its own buffered queue and delivery
// goroutine, so a slow subscriber drops messages instead of stalling the
// dispatcher. When a NATS client is provided every publication is also
// mirrored to the corresponding subject.
type Bus struct {
	mu        sync.RWMutex
	notifSubs map[string]*notificationSub
	eventSubs map[string]*eventSub
	client    *natsclient.Client // may be nil
	logger    *slog.Logger
	metrics   *busMetrics
	closed    bool
	wg        sync.WaitGroup
}

// Deps holds dependencies for creating a Bus
type Deps struct {
	Client   *natsclient.Client
	Logger   *slog.Logger
	Registry *metric.MetricsRegistry
}

// New creates a bus. The NATS client may be nil for purely in-process use,
// and a nil metrics registry disables metrics.
func New(deps Deps) *Bus {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		notifSubs: make(map[string]*notificationSub),
		eventSubs: make(map[string]*eventSub),
		client:    deps.Client,
		logger:    logger.With("component", "eventbus"),
		metrics:   newBusMetrics(deps.Registry),
	}
}

// SubscribeNotifications registers a notification handler and returns a
// subscription id for later removal
func (b *Bus) SubscribeNotifications(handler NotificationHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ""
	}

	id := uuid.NewString()
	sub := &notificationSub{
		ch:      make(chan trigger.Notification, subscriberBuffer),
		done:    make(chan struct{}),
		handler: handler,
	}
	b.notifSubs[id] = sub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case n := <-sub.ch:
				sub.handler(n)
			case <-sub.done:
				return
			}
		}
	}()

	return id
}

// SubscribeEvents registers a domain event handler and returns a
// subscription id
func (b *Bus) SubscribeEvents(handler EventHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ""
	}

	id := uuid.NewString()
	sub := &eventSub{
		ch:      make(chan trigger.Event, subscriberBuffer),
		done:    make(chan struct{}),
		handler: handler,
	}
	b.eventSubs[id] = sub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case e := <-sub.ch:
				sub.handler(e)
			case <-sub.done:
				return
			}
		}
	}()

	return id
}

// Unsubscribe removes a subscription by id. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.notifSubs[id]; ok {
		close(sub.done)
		delete(b.notifSubs, id)
	}
	if sub, ok := b.eventSubs[id]; ok {
		close(sub.done)
		delete(b.eventSubs, id)
	}
}

// ClearSubscribers removes all subscriptions
func (b *Bus) ClearSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

func (b *Bus) clearLocked() {
	for id, sub := range b.notifSubs {
		close(sub.done)
		delete(b.notifSubs, id)
	}
	for id, sub := range b.eventSubs {
		close(sub.done)
		delete(b.eventSubs, id)
	}
}

// SubscriberCount returns the number of registered subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.notifSubs) + len(b.eventSubs)
}

// PublishNotification fans a notification out to all subscribers and
// mirrors it to NATS when a client is configured
func (b *Bus) PublishNotification(ctx context.Context, n trigger.Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.notifSubs {
		select {
		case sub.ch <- n:
		default:
			b.metrics.recordDropped("notification")
			b.logger.Warn("dropped notification for slow subscriber",
				"notification_id", n.ID, "trigger_id", n.TriggerID)
		}
	}

	b.metrics.recordPublished("notification")
	b.mirror(ctx, SubjectNotification, n)
}

// PublishEvent fans a domain event out to all subscribers and mirrors it
// to events.trigger.<type> when a client is configured
func (b *Bus) PublishEvent(ctx context.Context, e trigger.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.eventSubs {
		select {
		case sub.ch <- e:
		default:
			b.metrics.recordDropped(e.Type)
			b.logger.Warn("dropped event for slow subscriber",
				"event_type", e.Type, "trigger_id", e.TriggerID)
		}
	}

	b.metrics.recordPublished(e.Type)
	b.mirror(ctx, SubjectEventPrefix+e.Type, e)
}

// mirror publishes to NATS best-effort; failures are logged, never
// propagated to the dispatcher
func (b *Bus) mirror(ctx context.Context, subject string, payload any) {
	if b.client == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("failed to encode for mirroring", "subject", subject, "error", err)
		return
	}

	if err := b.client.Publish(ctx, subject, data); err != nil {
		b.logger.Warn("failed to mirror to NATS", "subject", subject, "error", err)
	}
}

// Close clears all subscribers and marks the bus closed. Safe to call
// multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.clearLocked()
	b.mu.Unlock()

	b.wg.Wait()
}
