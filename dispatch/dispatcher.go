// Package dispatch executes the ordered action list of a firing trigger.
// Actions with a delay are deferred on tracked, cancellable timers so the
// evaluation loop never blocks; a failing action is logged and the rest
// of the list still runs.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/triggerkit/eventbus"
	"github.com/c360/triggerkit/metric"
	"github.com/c360/triggerkit/trigger"
)

// Domain event types emitted by the dispatcher
const (
	EventMemorySuggestion   = "memory_suggestion"
	EventUnlockCapsule      = "unlock_capsule"
	EventContentSuggestions = "content_suggestions"
	EventPlayAudio          = "play_audio"
)

// defaultReminderSeconds applies when a remind action has no
// reminderTime in its config
const defaultReminderSeconds = 3600

// Deps holds dependencies for creating a Dispatcher
type Deps struct {
	Bus      *eventbus.Bus
	Logger   *slog.Logger
	Registry *metric.MetricsRegistry
}

// Dispatcher runs trigger actions. One Dispatcher serves all triggers;
// deferred work is tracked so Close can cancel everything pending.
type Dispatcher struct {
	bus     *eventbus.Bus
	logger  *slog.Logger
	metrics *dispatchMetrics

	// delayUnit scales DelaySeconds and reminderTime; one second in
	// production, shrunk by tests
	delayUnit time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// New creates a Dispatcher
func New(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		bus:       deps.Bus,
		logger:    logger.With("component", "dispatcher"),
		metrics:   newDispatchMetrics(deps.Registry),
		delayUnit: time.Second,
		timers:    make(map[string]*time.Timer),
	}
}

// Execute runs every action of a firing trigger in list order. Actions
// with DelaySeconds > 0 are deferred without blocking the caller.
func (d *Dispatcher) Execute(ctx context.Context, trig trigger.MemoryTrigger, fire trigger.FireContext) {
	for _, action := range trig.Actions {
		if action.DelaySeconds > 0 {
			d.schedule(ctx, trig, action, fire, time.Duration(action.DelaySeconds)*d.delayUnit)
			continue
		}
		d.runAction(ctx, trig, action, fire)
	}
}

// PendingDeferred returns the number of deferred actions waiting on
// their timer
func (d *Dispatcher) PendingDeferred() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Close cancels all pending deferred actions. Safe to call multiple
// times; Execute after Close only runs immediate actions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	for id, timer := range d.timers {
		timer.Stop()
		delete(d.timers, id)
	}
	d.metrics.setDeferredPending(0)
}

// schedule defers one action on a tracked timer
func (d *Dispatcher) schedule(
	ctx context.Context,
	trig trigger.MemoryTrigger,
	action trigger.Action,
	fire trigger.FireContext,
	delay time.Duration,
) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Debug("dropping deferred action, dispatcher closed",
			"trigger_id", trig.ID, "action", action.Type)
		return
	}

	id := uuid.NewString()
	d.timers[id] = time.AfterFunc(delay, func() {
		d.forgetTimer(id)
		d.runAction(ctx, trig, action, fire)
	})
	d.metrics.setDeferredPending(len(d.timers))
}

func (d *Dispatcher) forgetTimer(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.timers, id)
	d.metrics.setDeferredPending(len(d.timers))
}

// runAction dispatches one action by type. Errors are logged, never
// propagated; remaining actions in the same fire proceed unaffected.
func (d *Dispatcher) runAction(
	ctx context.Context,
	trig trigger.MemoryTrigger,
	action trigger.Action,
	fire trigger.FireContext,
) {
	var err error

	switch action.Type {
	case trigger.ActionNotify:
		err = d.notify(ctx, trig, fire)
	case trigger.ActionCreateMemory:
		err = d.createMemory(ctx, trig, fire)
	case trigger.ActionUnlockCapsule:
		err = d.unlockCapsule(ctx, trig, action)
	case trigger.ActionRemind:
		err = d.remind(ctx, trig, action, fire)
	case trigger.ActionSuggestContent:
		err = d.suggestContent(ctx, trig, fire)
	case trigger.ActionPlayAudio:
		err = d.playAudio(ctx, trig, action)
	default:
		d.metrics.recordSkipped(string(action.Type))
		d.logger.Warn("skipping unknown action type",
			"trigger_id", trig.ID, "action_id", action.ID, "type", action.Type)
		return
	}

	if err != nil {
		d.metrics.recordFailed(string(action.Type))
		d.logger.Error("action execution failed",
			"trigger_id", trig.ID, "action_id", action.ID, "type", action.Type, "error", err)
		return
	}

	d.metrics.recordExecuted(string(action.Type))
}

// notify builds a Notification from the fire context and publishes it
func (d *Dispatcher) notify(ctx context.Context, trig trigger.MemoryTrigger, fire trigger.FireContext) error {
	if d.bus == nil {
		return fmt.Errorf("no event bus configured")
	}

	d.bus.PublishNotification(ctx, buildNotification(trig, fire))
	d.metrics.recordNotification()
	return nil
}

// buildNotification derives title, message and payload data from the
// fire context and trigger name
func buildNotification(trig trigger.MemoryTrigger, fire trigger.FireContext) trigger.Notification {
	n := trigger.Notification{
		ID:        uuid.NewString(),
		TriggerID: trig.ID,
		UserID:    trig.OwnerID,
		Type:      string(fire.Type),
		CreatedAt: time.Now(),
	}

	switch fire.Type {
	case trigger.FireDateAnniversary:
		n.Title = fmt.Sprintf("Remembering %s", trig.Name)
		n.Message = fmt.Sprintf("Today marks %s.", trig.Name)
		n.Data = map[string]any{
			"date":         fire.Date.Format(time.RFC3339),
			"trigger_date": fire.TriggerDate.Format(time.RFC3339),
		}
	default:
		n.Title = fmt.Sprintf("You're near %s", trig.Name)
		n.Message = fmt.Sprintf("You're about %.0f meters from %s.", fire.Distance, trig.Name)
		n.Data = map[string]any{"distance_meters": fire.Distance}
		if fire.Position != nil {
			n.Data["latitude"] = fire.Position.Latitude
			n.Data["longitude"] = fire.Position.Longitude
		}
	}

	return n
}

// createMemory publishes a memory suggestion with an inferred mood and
// the trigger's tags
func (d *Dispatcher) createMemory(ctx context.Context, trig trigger.MemoryTrigger, fire trigger.FireContext) error {
	if d.bus == nil {
		return fmt.Errorf("no event bus configured")
	}

	d.bus.PublishEvent(ctx, trigger.Event{
		Type:      EventMemorySuggestion,
		TriggerID: trig.ID,
		Payload: map[string]any{
			"title":   fmt.Sprintf("Memory from %s", trig.Name),
			"mood":    inferMood(trig.Name),
			"tags":    trig.Metadata.Tags,
			"context": string(fire.Type),
		},
	})
	return nil
}

// inferMood keyword-matches the trigger name
func inferMood(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "birthday"):
		return "joyful"
	case strings.Contains(lower, "anniversary"):
		return "romantic"
	default:
		return "nostalgic"
	}
}

// unlockCapsule publishes an unlock event when config names a capsule
func (d *Dispatcher) unlockCapsule(ctx context.Context, trig trigger.MemoryTrigger, action trigger.Action) error {
	capsuleID := configString(action.Config, "capsuleId")
	if capsuleID == "" {
		d.metrics.recordSkipped(string(action.Type))
		d.logger.Warn("unlock_capsule action without capsuleId, skipping",
			"trigger_id", trig.ID, "action_id", action.ID)
		return nil
	}
	if d.bus == nil {
		return fmt.Errorf("no event bus configured")
	}

	d.bus.PublishEvent(ctx, trigger.Event{
		Type:      EventUnlockCapsule,
		TriggerID: trig.ID,
		Payload:   map[string]any{"capsule_id": capsuleID},
	})
	return nil
}

// remind schedules a deferred notify after config.reminderTime seconds
func (d *Dispatcher) remind(ctx context.Context, trig trigger.MemoryTrigger, action trigger.Action, fire trigger.FireContext) error {
	seconds := configInt(action.Config, "reminderTime", defaultReminderSeconds)
	if seconds <= 0 {
		seconds = defaultReminderSeconds
	}

	followUp := trigger.Action{
		ID:       action.ID + "-reminder",
		Type:     trigger.ActionNotify,
		Priority: action.Priority,
	}
	d.schedule(ctx, trig, followUp, fire, time.Duration(seconds)*d.delayUnit)
	return nil
}

// suggestContent publishes static prompts chosen by fire type
func (d *Dispatcher) suggestContent(ctx context.Context, trig trigger.MemoryTrigger, fire trigger.FireContext) error {
	if d.bus == nil {
		return fmt.Errorf("no event bus configured")
	}

	d.bus.PublishEvent(ctx, trigger.Event{
		Type:      EventContentSuggestions,
		TriggerID: trig.ID,
		Payload:   map[string]any{"prompts": contentPrompts(fire.Type)},
	})
	return nil
}

func contentPrompts(fireType trigger.FireType) []string {
	if fireType == trigger.FireDateAnniversary {
		return []string{
			"Look back at photos from this day",
			"Write a short reflection about what this date means to you",
		}
	}
	return []string{
		"Take a photo of this place",
		"Record a voice note about what this place means to you",
		"Write down a memory that happened here",
	}
}

// playAudio publishes an ambient audio event when config has a url
func (d *Dispatcher) playAudio(ctx context.Context, trig trigger.MemoryTrigger, action trigger.Action) error {
	url := configString(action.Config, "audioUrl")
	if url == "" {
		d.metrics.recordSkipped(string(action.Type))
		d.logger.Warn("play_audio action without audioUrl, skipping",
			"trigger_id", trig.ID, "action_id", action.ID)
		return nil
	}
	if d.bus == nil {
		return fmt.Errorf("no event bus configured")
	}

	d.bus.PublishEvent(ctx, trigger.Event{
		Type:      EventPlayAudio,
		TriggerID: trig.ID,
		Payload: map[string]any{
			"url":    url,
			"volume": configFloat(action.Config, "volume", 0.5),
			"loop":   configBool(action.Config, "loop"),
		},
	})
	return nil
}

// Config values arrive from JSON, so numbers may be float64, int, or
// json.Number depending on the decode path.

func configString(config map[string]any, key string) string {
	s, _ := config[key].(string)
	return s
}

func configBool(config map[string]any, key string) bool {
	b, _ := config[key].(bool)
	return b
}

func configInt(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return fallback
}

func configFloat(config map[string]any, key string, fallback float64) float64 {
	switch v := config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}
