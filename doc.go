// Package triggerkit is a rule-based trigger engine for location and
// date memories.
//
// # Architecture
//
// TriggerKit is built from small components connected by NATS subjects
// and an in-process event bus:
//
//   - Signal sources (input/location, input/clock) publish position
//     updates and clock ticks to signal.* subjects.
//   - The evaluator processor subscribes to those subjects, matches
//     signals against the armed triggers in the registry, and applies
//     per-trigger rate limiting (quiet hours, enabled days, daily cap).
//   - Firing triggers are stamped in the registry and handed to the
//     action dispatcher, which executes the trigger's ordered action
//     list: notifications, memory creation, capsule unlocks, reminders,
//     content suggestions, and audio playback. Deferred actions run on
//     tracked, cancellable timers.
//   - Notifications and domain events fan out through the event bus to
//     in-process subscribers, are mirrored to events.trigger.* subjects,
//     and reach external UIs through the WebSocket sink.
//
// Triggers persist in a JetStream KV bucket when available and fall
// back to memory otherwise. The engine package assembles all of this
// behind one Start/Stop lifecycle; cmd/triggerkit is the binary.
//
// # Component Model
//
// Every source, processor, and sink implements component.Discoverable
// and component.LifecycleComponent: metadata, typed ports, a config
// schema generated from struct tags, health, and data-flow metrics.
// Factories register in componentregistry and instances are created
// from the component map in config.
package triggerkit
